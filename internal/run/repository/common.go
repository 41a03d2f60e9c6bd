// Package repository holds the MySQL, Redis and object storage backed stores
// of the run service.
package repository

import (
	"database/sql"
	"strings"
	"time"

	"judgegate/internal/common/db"
)

// Tables of the run service schema.
const (
	tableSubmissions          = "submissions"
	tableRuns                 = "runs"
	tableProblems             = "problems"
	tableContests             = "contests"
	tableAssignments          = "assignments"
	tableInterviews           = "interviews"
	tableProblemsets          = "problemsets"
	tableProblemsetProblems   = "problemset_problems"
	tableProblemsetIdentities = "problemset_identities"
	tableProblemOpened        = "problemset_problem_opened"
	tableSubmissionLog        = "submission_log"
	tableRunCounts            = "run_counts"
	tableIdentities           = "identities"
	tableACLs                 = "acls"
	tableUserRoles            = "user_roles"
	tableGroupRoles           = "group_roles"
	tableGroupsIdentities     = "groups_identities"
)

// splitLanguages decodes a comma separated language list. NULL stays nil so
// that "no restriction" can be told apart from "nothing allowed".
func splitLanguages(raw sql.NullString) []string {
	if !raw.Valid {
		return nil
	}
	out := []string{}
	for _, lang := range strings.Split(raw.String, ",") {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			out = append(out, lang)
		}
	}
	return out
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func int64Arg(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func float64Arg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func expectAffected(result db.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
