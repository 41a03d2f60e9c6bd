package db_test

import (
	"database/sql"
	"fmt"
	"testing"

	"judgegate/internal/common/db"

	"github.com/go-sql-driver/mysql"
)

func TestDuplicateKey(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantKey string
		wantOK  bool
	}{
		{"qualified", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'abc' for key 'submissions.uk_guid'"}, "submissions.uk_guid", true},
		{"wrapped", fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'abc' for key 'uk_guid'"}), "uk_guid", true},
		{"no key in message", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, "", true},
		{"foreign key", &mysql.MySQLError{Number: 1452}, "", false},
		{"plain error", fmt.Errorf("boom"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := db.DuplicateKey(tt.err)
			if key != tt.wantKey || ok != tt.wantOK {
				t.Errorf("DuplicateKey() = %q, %v; want %q, %v", key, ok, tt.wantKey, tt.wantOK)
			}
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'abc' for key 'submissions.uk_guid'"}
	if !db.IsDuplicate(dup) {
		t.Error("any duplicate should match without indexes")
	}
	if !db.IsDuplicate(dup, "uk_guid") {
		t.Error("table qualifier should be ignored")
	}
	if db.IsDuplicate(dup, "PRIMARY") {
		t.Error("other index should not match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !db.IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Error("wrapped sql.ErrNoRows should be detected")
	}
	if db.IsNoRows(fmt.Errorf("other")) {
		t.Error("unrelated error detected as no rows")
	}
}
