package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDuplicateEntry = 1062

// Querier is the statement surface shared by a database and an open transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns tx when a transaction is in progress, otherwise database.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows reports whether err wraps sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// DuplicateKey returns the index named by a MySQL duplicate entry error.
// MySQL 8 qualifies the index with its table ("submissions.uk_guid").
func DuplicateKey(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlErrDuplicateEntry {
		return "", false
	}
	const marker = "for key "
	idx := strings.LastIndex(myErr.Message, marker)
	if idx == -1 {
		return "", true
	}
	return strings.Trim(strings.TrimSpace(myErr.Message[idx+len(marker):]), " `\"'"), true
}

// IsDuplicate reports whether err is a duplicate entry on one of the given
// indexes, compared without their table qualifier. Without indexes any
// duplicate entry matches.
func IsDuplicate(err error, indexes ...string) bool {
	key, ok := DuplicateKey(err)
	if !ok {
		return false
	}
	if len(indexes) == 0 {
		return true
	}
	if dot := strings.LastIndex(key, "."); dot != -1 {
		key = key[dot+1:]
	}
	for _, index := range indexes {
		if key == index {
			return true
		}
	}
	return false
}
