package repository

import (
	"context"
	"database/sql"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

// IdentityRepository resolves identities.
type IdentityRepository struct {
	db db.Database
}

// NewIdentityRepository creates an identity repository.
func NewIdentityRepository(database db.Database) *IdentityRepository {
	return &IdentityRepository{db: database}
}

// GetByUsername loads an identity by username.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*model.Identity, error) {
	return r.queryOne(ctx, "SELECT identity_id, user_id, username FROM "+tableIdentities+" WHERE username = ? LIMIT 1", username)
}

// GetByID loads an identity by id.
func (r *IdentityRepository) GetByID(ctx context.Context, identityID int64) (*model.Identity, error) {
	return r.queryOne(ctx, "SELECT identity_id, user_id, username FROM "+tableIdentities+" WHERE identity_id = ? LIMIT 1", identityID)
}

func (r *IdentityRepository) queryOne(ctx context.Context, query string, arg interface{}) (*model.Identity, error) {
	var (
		identity model.Identity
		userID   sql.NullInt64
	)
	if err := r.db.QueryRow(ctx, query, arg).Scan(&identity.IdentityID, &userID, &identity.Username); err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	identity.UserID = nullInt64Ptr(userID)
	return &identity, nil
}
