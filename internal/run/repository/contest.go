package repository

import (
	"context"
	"database/sql"
	"time"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

const contestColumns = "contest_id, problemset_id, acl_id, alias, start_time, finish_time, penalty_type, submissions_gap, partial_score, feedback, rerun_id, languages"

// ContestRepository reads contests.
type ContestRepository struct {
	db db.Database
}

// NewContestRepository creates a contest repository.
func NewContestRepository(database db.Database) *ContestRepository {
	return &ContestRepository{db: database}
}

// GetByAlias loads a contest by alias.
func (r *ContestRepository) GetByAlias(ctx context.Context, alias string) (*model.Contest, error) {
	if alias == "" {
		return nil, pkgrepo.ErrNotFound
	}
	query := "SELECT " + contestColumns + " FROM " + tableContests + " WHERE alias = ? LIMIT 1"
	return scanContest(r.db.QueryRow(ctx, query, alias))
}

// GetByProblemsetID loads the contest owning a problemset.
func (r *ContestRepository) GetByProblemsetID(ctx context.Context, problemsetID int64) (*model.Contest, error) {
	query := "SELECT " + contestColumns + " FROM " + tableContests + " WHERE problemset_id = ? LIMIT 1"
	return scanContest(r.db.QueryRow(ctx, query, problemsetID))
}

func scanContest(row db.Row) (*model.Contest, error) {
	var (
		c          model.Contest
		penalty    string
		gapSeconds int64
		feedback   string
		languages  sql.NullString
	)
	err := row.Scan(
		&c.ContestID,
		&c.ProblemsetID,
		&c.AclID,
		&c.Alias,
		&c.StartTime,
		&c.FinishTime,
		&penalty,
		&gapSeconds,
		&c.PartialScore,
		&feedback,
		&c.RerunID,
		&languages,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	c.PenaltyType = model.PenaltyPolicy(penalty)
	c.SubmissionsGap = time.Duration(gapSeconds) * time.Second
	c.Feedback = model.FeedbackMode(feedback)
	c.Languages = splitLanguages(languages)
	return &c, nil
}
