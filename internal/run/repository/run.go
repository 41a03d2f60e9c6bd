package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

const listSubmissionColumns = "s.submission_id, s.guid, s.identity_id, s.problem_id, s.problemset_id, s.language, s.time, s.submit_delay, s.type, s.disqualified, s.current_run_id"

const runColumns = "r.run_id, r.submission_id, r.version, r.commit, r.status, r.verdict, r.runtime, r.penalty, r.memory, r.score, r.contest_score, r.time, r.judged_by"

// RunFilter narrows an administrative run listing. Zero values do not filter.
type RunFilter struct {
	Status     model.Status
	Verdict    model.Verdict
	Language   string
	ProblemID  *int64
	IdentityID *int64
}

// RunListing is one row of the administrative run list.
type RunListing struct {
	Submission   model.Submission
	Run          model.Run
	ProblemAlias string
	Username     string
	ContestAlias *string
}

// RunRepository persists runs.
type RunRepository struct {
	db db.Database
}

// NewRunRepository creates a run repository.
func NewRunRepository(database db.Database) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a run and returns its id.
func (r *RunRepository) Create(ctx context.Context, tx db.Transaction, run *model.Run) (int64, error) {
	if run == nil {
		return 0, errors.New("run is nil")
	}
	if run.SubmissionID <= 0 {
		return 0, errors.New("submissionID is required")
	}
	query := "INSERT INTO " + tableRuns + `
		(submission_id, version, commit, status, verdict, runtime, penalty, memory, score, contest_score, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		run.SubmissionID,
		run.Version,
		run.Commit,
		string(run.Status),
		string(run.Verdict),
		run.Runtime,
		run.Penalty,
		run.Memory,
		run.Score,
		float64Arg(run.ContestScore),
		run.Time,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.RunID = id
	return id, nil
}

// ResetStatus puts a run back in the grading queue.
func (r *RunRepository) ResetStatus(ctx context.Context, tx db.Transaction, runID int64) error {
	query := "UPDATE " + tableRuns + " SET status = ?, verdict = ?, judged_by = NULL WHERE run_id = ?"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, string(model.StatusNew), string(model.VerdictJudgeError), runID)
	if err != nil {
		return err
	}
	return expectAffected(result, pkgrepo.ErrNotFound)
}

// Delete removes a run. A missing row is not an error.
func (r *RunRepository) Delete(ctx context.Context, tx db.Transaction, runID int64) error {
	query := "DELETE FROM " + tableRuns + " WHERE run_id = ?"
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, runID)
	return err
}

// GetByID loads a run.
func (r *RunRepository) GetByID(ctx context.Context, runID int64) (*model.Run, error) {
	query := "SELECT " + runColumns + " FROM " + tableRuns + " r WHERE r.run_id = ? LIMIT 1"
	run, err := scanRun(r.db.QueryRow(ctx, query, runID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the newest runs matching filter.
func (r *RunRepository) List(ctx context.Context, filter RunFilter, opts pkgrepo.ListOptions) ([]RunListing, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Verdict != "" {
		where = append(where, "r.verdict = ?")
		args = append(args, string(filter.Verdict))
	}
	if filter.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, filter.Language)
	}
	if filter.ProblemID != nil {
		where = append(where, "s.problem_id = ?")
		args = append(args, *filter.ProblemID)
	}
	if filter.IdentityID != nil {
		where = append(where, "s.identity_id = ?")
		args = append(args, *filter.IdentityID)
	}

	var b strings.Builder
	b.WriteString("SELECT " + listSubmissionColumns + ", ")
	b.WriteString(runColumns)
	b.WriteString(", p.alias, i.username, c.alias FROM " + tableSubmissions + " s")
	b.WriteString(" INNER JOIN " + tableRuns + " r ON r.run_id = s.current_run_id")
	b.WriteString(" INNER JOIN " + tableProblems + " p ON p.problem_id = s.problem_id")
	b.WriteString(" INNER JOIN " + tableIdentities + " i ON i.identity_id = s.identity_id")
	b.WriteString(" LEFT JOIN " + tableContests + " c ON c.problemset_id = s.problemset_id")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY s.submission_id DESC LIMIT ?, ?")
	args = append(args, opts.Offset, opts.Limit)

	rows, err := r.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunListing
	for rows.Next() {
		var (
			item         RunListing
			problemsetID sql.NullInt64
			currentRun   sql.NullInt64
			kind         string
			status       string
			verdict      string
			contestScore sql.NullFloat64
			judgedBy     sql.NullString
			contestAlias sql.NullString
		)
		s, run := &item.Submission, &item.Run
		if err := rows.Scan(
			&s.SubmissionID, &s.GUID, &s.IdentityID, &s.ProblemID, &problemsetID, &s.Language,
			&s.Time, &s.SubmitDelay, &kind, &s.Disqualified, &currentRun,
			&run.RunID, &run.SubmissionID, &run.Version, &run.Commit, &status, &verdict,
			&run.Runtime, &run.Penalty, &run.Memory, &run.Score, &contestScore, &run.Time, &judgedBy,
			&item.ProblemAlias, &item.Username, &contestAlias,
		); err != nil {
			return nil, err
		}
		s.ProblemsetID = nullInt64Ptr(problemsetID)
		s.CurrentRunID = nullInt64Ptr(currentRun)
		s.Type = model.SubmissionType(kind)
		run.Status = model.Status(status)
		run.Verdict = model.Verdict(verdict)
		run.ContestScore = nullFloat64Ptr(contestScore)
		run.JudgedBy = nullStringPtr(judgedBy)
		item.ContestAlias = nullStringPtr(contestAlias)
		out = append(out, item)
	}
	return out, rows.Err()
}

// DailyCounts returns the newest run count rows, newest first.
func (r *RunRepository) DailyCounts(ctx context.Context, days int) ([]model.RunCount, error) {
	query := "SELECT date, total, ac_count FROM " + tableRunCounts + " ORDER BY date DESC LIMIT ?"
	rows, err := r.db.Query(ctx, query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunCount
	for rows.Next() {
		var c model.RunCount
		if err := rows.Scan(&c.Date, &c.Total, &c.ACCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRun(row db.Row) (*model.Run, error) {
	var (
		run          model.Run
		status       string
		verdict      string
		contestScore sql.NullFloat64
		judgedBy     sql.NullString
	)
	if err := row.Scan(
		&run.RunID,
		&run.SubmissionID,
		&run.Version,
		&run.Commit,
		&status,
		&verdict,
		&run.Runtime,
		&run.Penalty,
		&run.Memory,
		&run.Score,
		&contestScore,
		&run.Time,
		&judgedBy,
	); err != nil {
		return nil, err
	}
	run.Status = model.Status(status)
	run.Verdict = model.Verdict(verdict)
	run.ContestScore = nullFloat64Ptr(contestScore)
	run.JudgedBy = nullStringPtr(judgedBy)
	return &run, nil
}
