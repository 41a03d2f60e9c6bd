package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

// ProblemsetRepository reads problemsets, their owning containers and the
// per-identity problemset state.
type ProblemsetRepository struct {
	db       db.Database
	contests *ContestRepository
}

// NewProblemsetRepository creates a problemset repository.
func NewProblemsetRepository(database db.Database) *ProblemsetRepository {
	return &ProblemsetRepository{db: database, contests: NewContestRepository(database)}
}

// GetByID loads a problemset.
func (r *ProblemsetRepository) GetByID(ctx context.Context, problemsetID int64) (*model.Problemset, error) {
	query := "SELECT problemset_id, acl_id, type, contest_id, assignment_id, interview_id, languages FROM " +
		tableProblemsets + " WHERE problemset_id = ? LIMIT 1"
	var (
		ps           model.Problemset
		kind         string
		contestID    sql.NullInt64
		assignmentID sql.NullInt64
		interviewID  sql.NullInt64
		languages    sql.NullString
	)
	err := r.db.QueryRow(ctx, query, problemsetID).Scan(
		&ps.ProblemsetID, &ps.AclID, &kind, &contestID, &assignmentID, &interviewID, &languages,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	ps.Type = model.ContainerKind(kind)
	ps.ContestID = nullInt64Ptr(contestID)
	ps.AssignmentID = nullInt64Ptr(assignmentID)
	ps.InterviewID = nullInt64Ptr(interviewID)
	ps.Languages = splitLanguages(languages)
	return &ps, nil
}

// GetContainer loads the contest, assignment or interview owning a problemset.
func (r *ProblemsetRepository) GetContainer(ctx context.Context, problemsetID int64) (*model.ProblemsetContainer, error) {
	ps, err := r.GetByID(ctx, problemsetID)
	if err != nil {
		return nil, err
	}
	switch ps.Type {
	case model.ContainerContest:
		contest, err := r.contests.GetByProblemsetID(ctx, problemsetID)
		if err != nil {
			return nil, err
		}
		return &model.ProblemsetContainer{Contest: contest}, nil
	case model.ContainerAssignment:
		assignment, err := r.getAssignment(ctx, problemsetID)
		if err != nil {
			return nil, err
		}
		return &model.ProblemsetContainer{Assignment: assignment}, nil
	case model.ContainerInterview:
		interview, err := r.getInterview(ctx, problemsetID)
		if err != nil {
			return nil, err
		}
		return &model.ProblemsetContainer{Interview: interview}, nil
	default:
		return nil, fmt.Errorf("problemset %d has unknown container type %q", problemsetID, ps.Type)
	}
}

func (r *ProblemsetRepository) getAssignment(ctx context.Context, problemsetID int64) (*model.Assignment, error) {
	query := "SELECT assignment_id, problemset_id, alias, start_time, finish_time FROM " +
		tableAssignments + " WHERE problemset_id = ? LIMIT 1"
	var (
		a      model.Assignment
		finish sql.NullTime
	)
	if err := r.db.QueryRow(ctx, query, problemsetID).Scan(&a.AssignmentID, &a.ProblemsetID, &a.Alias, &a.StartTime, &finish); err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	a.FinishTime = nullTimePtr(finish)
	return &a, nil
}

func (r *ProblemsetRepository) getInterview(ctx context.Context, problemsetID int64) (*model.Interview, error) {
	query := "SELECT interview_id, problemset_id, alias FROM " + tableInterviews + " WHERE problemset_id = ? LIMIT 1"
	var iv model.Interview
	if err := r.db.QueryRow(ctx, query, problemsetID).Scan(&iv.InterviewID, &iv.ProblemsetID, &iv.Alias); err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	return &iv, nil
}

// HasProblem reports whether the problem belongs to the problemset.
func (r *ProblemsetRepository) HasProblem(ctx context.Context, problemsetID, problemID int64) (bool, error) {
	query := "SELECT COUNT(*) FROM " + tableProblemsetProblems + " WHERE problemset_id = ? AND problem_id = ?"
	var n int64
	if err := r.db.QueryRow(ctx, query, problemsetID, problemID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetIdentity returns nil without error when the identity never joined.
func (r *ProblemsetRepository) GetIdentity(ctx context.Context, identityID, problemsetID int64) (*model.ProblemsetIdentity, error) {
	query := "SELECT identity_id, problemset_id, access_time, end_time FROM " + tableProblemsetIdentities +
		" WHERE identity_id = ? AND problemset_id = ? LIMIT 1"
	var (
		pi     model.ProblemsetIdentity
		access sql.NullTime
		end    sql.NullTime
	)
	if err := r.db.QueryRow(ctx, query, identityID, problemsetID).Scan(&pi.IdentityID, &pi.ProblemsetID, &access, &end); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	pi.AccessTime = nullTimePtr(access)
	pi.EndTime = nullTimePtr(end)
	return &pi, nil
}

// GetProblemOpened returns nil without error when the problem was never opened.
func (r *ProblemsetRepository) GetProblemOpened(ctx context.Context, problemsetID, identityID, problemID int64) (*time.Time, error) {
	query := "SELECT open_time FROM " + tableProblemOpened +
		" WHERE problemset_id = ? AND identity_id = ? AND problem_id = ? LIMIT 1"
	var opened time.Time
	if err := r.db.QueryRow(ctx, query, problemsetID, identityID, problemID).Scan(&opened); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &opened, nil
}
