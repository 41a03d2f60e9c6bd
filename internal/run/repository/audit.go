package repository

import (
	"context"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
)

// SubmissionLogRepository appends submission audit entries.
type SubmissionLogRepository struct {
	db db.Database
}

// NewSubmissionLogRepository creates a submission log repository.
func NewSubmissionLogRepository(database db.Database) *SubmissionLogRepository {
	return &SubmissionLogRepository{db: database}
}

// Append records an admitted submission.
func (r *SubmissionLogRepository) Append(ctx context.Context, entry model.SubmissionLog) error {
	query := "INSERT INTO " + tableSubmissionLog +
		" (user_id, identity_id, submission_id, problemset_id, ip, time) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := r.db.Exec(ctx, query,
		int64Arg(entry.UserID),
		entry.IdentityID,
		entry.SubmissionID,
		int64Arg(entry.ProblemsetID),
		entry.IP,
		entry.Time,
	)
	return err
}
