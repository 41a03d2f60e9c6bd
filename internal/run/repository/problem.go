package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/common/db"
	"judgegate/internal/run/model"
	pkgrepo "judgegate/pkg/repository"
)

const (
	defaultProblemCacheTTL      = 10 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemAliasKeyPrefix       = "run:problem:alias:"
)

const problemColumns = "problem_id, acl_id, alias, visibility, deprecated, languages, show_diff, current_version, commit, submissions"

// ProblemRepository reads problem metadata. Lookups by alias go through the
// cache when one is configured.
type ProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository with default cache TTLs.
func NewProblemRepository(database db.Database, cacheClient cache.Cache) *ProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewProblemRepositoryWithTTL creates a problem repository with custom TTLs.
func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &ProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// GetByAlias loads a problem by alias.
func (r *ProblemRepository) GetByAlias(ctx context.Context, alias string) (*model.Problem, error) {
	if alias == "" {
		return nil, pkgrepo.ErrNotFound
	}
	if r.cache == nil {
		return r.getByAliasFromDB(ctx, alias)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemAliasKeyPrefix+alias,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getByAliasFromDB(ctx, alias)
			if pkgrepo.IsNotFoundError(err) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, pkgrepo.ErrNotFound
	}
	return problem, nil
}

// GetByID loads a problem by id.
func (r *ProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := "SELECT " + problemColumns + " FROM " + tableProblems + " WHERE problem_id = ? LIMIT 1"
	return r.queryOne(ctx, query, problemID)
}

func (r *ProblemRepository) getByAliasFromDB(ctx context.Context, alias string) (*model.Problem, error) {
	query := "SELECT " + problemColumns + " FROM " + tableProblems + " WHERE alias = ? LIMIT 1"
	return r.queryOne(ctx, query, alias)
}

func (r *ProblemRepository) queryOne(ctx context.Context, query string, arg interface{}) (*model.Problem, error) {
	var (
		p          model.Problem
		visibility int
		languages  sql.NullString
		showDiff   string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ProblemID,
		&p.AclID,
		&p.Alias,
		&visibility,
		&p.Deprecated,
		&languages,
		&showDiff,
		&p.CurrentVersion,
		&p.Commit,
		&p.Submissions,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, pkgrepo.ErrNotFound
		}
		return nil, err
	}
	p.Visibility = model.ProblemVisibility(visibility)
	p.Languages = splitLanguages(languages)
	p.ShowDiff = model.ShowDiff(showDiff)
	return &p, nil
}

// GetPracticeDeadline returns the latest finish time among the non-virtual
// contests containing the problem, nil when there is none.
func (r *ProblemRepository) GetPracticeDeadline(ctx context.Context, problemID int64) (*time.Time, error) {
	query := "SELECT MAX(c.finish_time) FROM " + tableContests + " c" +
		" INNER JOIN " + tableProblemsetProblems + " pp ON pp.problemset_id = c.problemset_id" +
		" WHERE pp.problem_id = ? AND c.rerun_id = 0"
	var deadline sql.NullTime
	if err := r.db.QueryRow(ctx, query, problemID).Scan(&deadline); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return nullTimePtr(deadline), nil
}

// IncrementSubmissions bumps the per-problem submission counter.
func (r *ProblemRepository) IncrementSubmissions(ctx context.Context, problemID int64) error {
	query := "UPDATE " + tableProblems + " SET submissions = submissions + 1 WHERE problem_id = ?"
	result, err := r.db.Exec(ctx, query, problemID)
	if err != nil {
		return err
	}
	return expectAffected(result, pkgrepo.ErrNotFound)
}

// HasSolved reports whether the identity has an accepted, qualified normal
// submission for the problem.
func (r *ProblemRepository) HasSolved(ctx context.Context, identityID, problemID int64) (bool, error) {
	query := "SELECT COUNT(*) FROM " + tableSubmissions + " s" +
		" INNER JOIN " + tableRuns + " r ON r.run_id = s.current_run_id" +
		" WHERE s.identity_id = ? AND s.problem_id = ? AND s.type = ? AND s.disqualified = 0 AND r.verdict = ?"
	var n int64
	err := r.db.QueryRow(ctx, query, identityID, problemID, string(model.SubmissionNormal), string(model.VerdictAccepted)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidateAlias drops the cached problem for alias.
func (r *ProblemRepository) InvalidateAlias(ctx context.Context, alias string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemAliasKeyPrefix+alias)
}

func marshalProblem(p *model.Problem) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalProblem(s string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
