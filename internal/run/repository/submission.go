package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

const submissionColumns = "submission_id, guid, identity_id, problem_id, problemset_id, language, time, submit_delay, type, disqualified, current_run_id"

// SubmissionRepository persists submissions.
type SubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *SubmissionRepository {
	return &SubmissionRepository{db: database}
}

// Create inserts a submission and returns its id.
func (r *SubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) (int64, error) {
	if submission == nil {
		return 0, errors.New("submission is nil")
	}
	if submission.GUID == "" {
		return 0, errors.New("guid is required")
	}
	if submission.IdentityID <= 0 || submission.ProblemID <= 0 {
		return 0, errors.New("identityID and problemID are required")
	}

	query := "INSERT INTO " + tableSubmissions + `
		(guid, identity_id, problem_id, problemset_id, language, time, submit_delay, type, disqualified, current_run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		submission.GUID,
		submission.IdentityID,
		submission.ProblemID,
		int64Arg(submission.ProblemsetID),
		submission.Language,
		submission.Time,
		submission.SubmitDelay,
		string(submission.Type),
		submission.Disqualified,
		int64Arg(submission.CurrentRunID),
	)
	if err != nil {
		if db.IsDuplicate(err, "uk_guid") {
			return 0, pkgrepo.ErrAlreadyExists
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	submission.SubmissionID = id
	return id, nil
}

// SetCurrentRun points a submission at its active run; nil clears it.
func (r *SubmissionRepository) SetCurrentRun(ctx context.Context, tx db.Transaction, submissionID int64, runID *int64) error {
	query := "UPDATE " + tableSubmissions + " SET current_run_id = ? WHERE submission_id = ?"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, int64Arg(runID), submissionID)
	if err != nil {
		return err
	}
	return expectAffected(result, pkgrepo.ErrNotFound)
}

// SetDisqualified flags or unflags a submission.
func (r *SubmissionRepository) SetDisqualified(ctx context.Context, tx db.Transaction, submissionID int64, disqualified bool) error {
	query := "UPDATE " + tableSubmissions + " SET disqualified = ? WHERE submission_id = ?"
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, disqualified, submissionID)
	return err
}

// Delete removes a submission. A missing row is not an error.
func (r *SubmissionRepository) Delete(ctx context.Context, tx db.Transaction, submissionID int64) error {
	query := "DELETE FROM " + tableSubmissions + " WHERE submission_id = ?"
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, submissionID)
	return err
}

// GetByGUID loads a submission by its public identifier.
func (r *SubmissionRepository) GetByGUID(ctx context.Context, guid string) (*model.Submission, error) {
	if guid == "" {
		return nil, pkgrepo.ErrInvalidInput
	}
	query := "SELECT " + submissionColumns + " FROM " + tableSubmissions + " WHERE guid = ? LIMIT 1"
	submission, err := scanSubmission(r.db.QueryRow(ctx, query, guid))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	return submission, nil
}

// LastSubmissionTime returns the newest submission time of an identity for a
// problem, scoped to a problemset or to practice when problemsetID is nil.
func (r *SubmissionRepository) LastSubmissionTime(ctx context.Context, problemsetID *int64, problemID, identityID int64) (*time.Time, error) {
	query := "SELECT MAX(time) FROM " + tableSubmissions + " WHERE identity_id = ? AND problem_id = ?"
	args := []interface{}{identityID, problemID}
	if problemsetID == nil {
		query += " AND problemset_id IS NULL"
	} else {
		query += " AND problemset_id = ?"
		args = append(args, *problemsetID)
	}
	var last sql.NullTime
	if err := r.db.QueryRow(ctx, query, args...).Scan(&last); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return nullTimePtr(last), nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	var (
		s            model.Submission
		problemsetID sql.NullInt64
		currentRun   sql.NullInt64
		kind         string
	)
	if err := row.Scan(
		&s.SubmissionID,
		&s.GUID,
		&s.IdentityID,
		&s.ProblemID,
		&problemsetID,
		&s.Language,
		&s.Time,
		&s.SubmitDelay,
		&kind,
		&s.Disqualified,
		&currentRun,
	); err != nil {
		return nil, err
	}
	s.ProblemsetID = nullInt64Ptr(problemsetID)
	s.CurrentRunID = nullInt64Ptr(currentRun)
	s.Type = model.SubmissionType(kind)
	return &s, nil
}
