package repository

import (
	"context"
	"database/sql"

	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
)

// Role and ACL ids seeded by the platform schema.
const (
	roleAdmin      int64 = 1
	roleContestant int64 = 2
	systemACL      int64 = 1
)

// ACLAuthorizer answers permission questions from the ACL tables.
type ACLAuthorizer struct {
	db          db.Database
	problems    *ProblemRepository
	problemsets *ProblemsetRepository
}

// NewACLAuthorizer creates an authorizer.
func NewACLAuthorizer(database db.Database, problems *ProblemRepository, problemsets *ProblemsetRepository) *ACLAuthorizer {
	return &ACLAuthorizer{db: database, problems: problems, problemsets: problemsets}
}

func (a *ACLAuthorizer) isOwner(ctx context.Context, identity model.Identity, aclID int64) (bool, error) {
	if identity.UserID == nil {
		return false, nil
	}
	var owner sql.NullInt64
	err := a.db.QueryRow(ctx, "SELECT owner_id FROM "+tableACLs+" WHERE acl_id = ? LIMIT 1", aclID).Scan(&owner)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return owner.Valid && owner.Int64 == *identity.UserID, nil
}

// hasRole checks direct user grants and grants through group membership,
// on aclID or on the system ACL.
func (a *ACLAuthorizer) hasRole(ctx context.Context, identity model.Identity, aclID, roleID int64) (bool, error) {
	var userID interface{}
	if identity.UserID != nil {
		userID = *identity.UserID
	}
	query := "SELECT" +
		" (SELECT COUNT(*) FROM " + tableUserRoles + " WHERE user_id = ? AND role_id = ? AND acl_id IN (?, ?))" +
		" + (SELECT COUNT(*) FROM " + tableGroupRoles + " gr INNER JOIN " + tableGroupsIdentities + " gi ON gi.group_id = gr.group_id" +
		" WHERE gi.identity_id = ? AND gr.role_id = ? AND gr.acl_id IN (?, ?))"
	var n int64
	err := a.db.QueryRow(ctx, query,
		userID, roleID, aclID, systemACL,
		identity.IdentityID, roleID, aclID, systemACL,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *ACLAuthorizer) isAdmin(ctx context.Context, identity model.Identity, aclID int64) (bool, error) {
	if identity.Sysadmin {
		return true, nil
	}
	owner, err := a.isOwner(ctx, identity, aclID)
	if err != nil || owner {
		return owner, err
	}
	return a.hasRole(ctx, identity, aclID, roleAdmin)
}

// IsProblemAdmin reports whether identity administers the problem.
func (a *ACLAuthorizer) IsProblemAdmin(ctx context.Context, identity model.Identity, problem *model.Problem) (bool, error) {
	if problem == nil {
		return false, nil
	}
	return a.isAdmin(ctx, identity, problem.AclID)
}

// IsProblemsetAdmin reports whether identity administers the problemset.
func (a *ACLAuthorizer) IsProblemsetAdmin(ctx context.Context, identity model.Identity, problemset *model.Problemset) (bool, error) {
	if problemset == nil {
		return false, nil
	}
	return a.isAdmin(ctx, identity, problemset.AclID)
}

// CanSubmitToProblemset is true for problemset admins and identities holding
// the contestant role on the problemset.
func (a *ACLAuthorizer) CanSubmitToProblemset(ctx context.Context, identity model.Identity, problemset *model.Problemset) (bool, error) {
	if problemset == nil {
		return false, nil
	}
	admin, err := a.IsProblemsetAdmin(ctx, identity, problemset)
	if err != nil || admin {
		return admin, err
	}
	return a.hasRole(ctx, identity, problemset.AclID, roleContestant)
}

// CanViewSubmission is true for the submitter, problem admins and admins of
// the submission's problemset.
func (a *ACLAuthorizer) CanViewSubmission(ctx context.Context, identity model.Identity, submission *model.Submission, problem *model.Problem) (bool, error) {
	if submission == nil {
		return false, nil
	}
	if submission.IdentityID == identity.IdentityID {
		return true, nil
	}
	return a.administersSubmission(ctx, identity, submission, problem)
}

// CanEditSubmission is true for problem admins and admins of the
// submission's problemset.
func (a *ACLAuthorizer) CanEditSubmission(ctx context.Context, identity model.Identity, submission *model.Submission) (bool, error) {
	if submission == nil {
		return false, nil
	}
	problem, err := a.problems.GetByID(ctx, submission.ProblemID)
	if err != nil {
		return false, err
	}
	return a.administersSubmission(ctx, identity, submission, problem)
}

func (a *ACLAuthorizer) administersSubmission(ctx context.Context, identity model.Identity, submission *model.Submission, problem *model.Problem) (bool, error) {
	admin, err := a.IsProblemAdmin(ctx, identity, problem)
	if err != nil || admin {
		return admin, err
	}
	if submission.ProblemsetID == nil {
		return false, nil
	}
	problemset, err := a.problemsets.GetByID(ctx, *submission.ProblemsetID)
	if err != nil {
		return false, err
	}
	return a.IsProblemsetAdmin(ctx, identity, problemset)
}
