package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"judgegate/internal/common/db"
)

// fakeDB answers queries from canned rows keyed by a query fragment.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string][][]interface{}
	filters map[string]func(query string, args []interface{}) [][]interface{}
	queries []string
	execs   []string
	execErr error
	nextID  int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:    make(map[string][][]interface{}),
		filters: make(map[string]func(string, []interface{}) [][]interface{}),
		nextID:  1,
	}
}

func (f *fakeDB) on(fragment string, rows ...[]interface{}) {
	f.rows[fragment] = rows
}

// onQuery answers queries containing fragment with the rows computed by fn.
func (f *fakeDB) onQuery(fragment string, fn func(query string, args []interface{}) [][]interface{}) {
	f.filters[fragment] = fn
}

func (f *fakeDB) match(query string, args []interface{}) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	for fragment, fn := range f.filters {
		if strings.Contains(query, fragment) {
			return fn(query, args)
		}
	}
	for fragment, rows := range f.rows {
		if strings.Contains(query, fragment) {
			return rows
		}
	}
	return nil
}

func (f *fakeDB) queryCount(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q, fragment) {
			n++
		}
	}
	return n
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return &fakeRows{rows: f.match(query, args), pos: -1}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	rows := f.match(query, args)
	if len(rows) == 0 {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{values: rows[0]}
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, query)
	if f.execErr != nil {
		return nil, f.execErr
	}
	id := f.nextID
	f.nextID++
	return fakeResult{id: id, affected: 1}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(fakeTx{f})
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }

type fakeTx struct{ *fakeDB }

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeResult struct {
	id       int64
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(dest, r.rows[r.pos]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func assign(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(values[i]); err != nil {
				return err
			}
			continue
		}
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("scan column %d: cannot assign %T to %s", i, values[i], target.Type())
		}
		target.Set(v.Convert(target.Type()))
	}
	return nil
}
