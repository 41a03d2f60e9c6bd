// Package disclosure decides how much of a graded run a viewer may see.
package disclosure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/run/model"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/utils/logger"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	// LockdownSource replaces the source code while lockdown is engaged.
	LockdownSource = "lockdownDetailsDisabled"

	defaultDiffSizeCeiling = 4096
	defaultDetailsCacheTTL = 24 * time.Hour

	detailsFile = "details.json"
	logsFile    = "logs.txt.gz"
	filesFile   = "files.zip"

	casesDirectory    = "cases"
	examplesDirectory = "examples"
)

// Authorizer answers visibility questions.
type Authorizer interface {
	IsProblemAdmin(ctx context.Context, identity model.Identity, problem *model.Problem) (bool, error)
	// CanViewSubmission is true for problem admins, problemset admins and the submitter.
	CanViewSubmission(ctx context.Context, identity model.Identity, submission *model.Submission, problem *model.Problem) (bool, error)
}

// SolveHistory tells whether an identity ever solved a problem.
type SolveHistory interface {
	HasSolved(ctx context.Context, identityID, problemID int64) (bool, error)
}

// Resources reads per-run grading artifacts.
type Resources interface {
	Resolve(ctx context.Context, runID int64, filename string) ([]byte, bool)
	Open(ctx context.Context, runID int64, filename string) (io.ReadCloser, bool)
}

// Cases reads problem case artifacts.
type Cases interface {
	TotalSize(ctx context.Context, alias, revision string, directories ...string) (int64, error)
	ReadCaseContents(ctx context.Context, alias, revision, directory string) (map[string]model.CaseContents, error)
}

// Sources reads stored submission sources.
type Sources interface {
	Get(ctx context.Context, guid string) (string, error)
}

// Config holds disclosure policy settings.
type Config struct {
	Lockdown        bool
	DiffSizeCeiling int64
	DetailsCacheTTL time.Duration
}

// Deps wires a Policy.
type Deps struct {
	Authorizer Authorizer
	Solved     SolveHistory
	Resources  Resources
	Cases      Cases
	Sources    Sources
	Aggregates cache.AggregateStore
	Now        func() time.Time
}

// Policy builds redacted views of runs.
type Policy struct {
	authz      Authorizer
	solved     SolveHistory
	resources  Resources
	cases      Cases
	sources    Sources
	aggregates cache.AggregateStore
	cfg        Config
	now        func() time.Time
}

// NewPolicy creates a disclosure policy.
func NewPolicy(deps Deps, cfg Config) *Policy {
	if cfg.DiffSizeCeiling <= 0 {
		cfg.DiffSizeCeiling = defaultDiffSizeCeiling
	}
	if cfg.DetailsCacheTTL <= 0 {
		cfg.DetailsCacheTTL = defaultDetailsCacheTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Policy{
		authz:      deps.Authorizer,
		solved:     deps.Solved,
		resources:  deps.Resources,
		cases:      deps.Cases,
		sources:    deps.Sources,
		aggregates: deps.Aggregates,
		cfg:        cfg,
		now:        deps.Now,
	}
}

// Subject is a run together with everything needed to disclose it.
type Subject struct {
	Submission *model.Submission
	Run        *model.Run
	Problem    *model.Problem
	// Contest is set when the submission belongs to a contest problemset.
	Contest  *model.Contest
	Username string
}

func (p *Policy) authorizeView(ctx context.Context, viewer model.Identity, s Subject) error {
	ok, err := p.authz.CanViewSubmission(ctx, viewer, s.Submission, s.Problem)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "check view permission failed")
	}
	if !ok {
		return appErr.Refuse(appErr.Forbidden, appErr.ReasonUserNotAllowed)
	}
	return nil
}

func (p *Policy) isProblemAdmin(ctx context.Context, viewer model.Identity, problem *model.Problem) (bool, error) {
	admin, err := p.authz.IsProblemAdmin(ctx, viewer, problem)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "check problem admin failed")
	}
	return admin, nil
}

// Tier returns the disclosure tier of a non-admin viewer.
func (p *Policy) Tier(ctx context.Context, viewer model.Identity, s Subject) (model.FeedbackMode, error) {
	if s.Contest != nil && s.Contest.FinishTime.After(p.now()) {
		return s.Contest.Feedback, nil
	}
	if s.Problem.ShowDiff != model.ShowDiffNone && s.Problem.ShowDiff != "" {
		return model.FeedbackDetailed, nil
	}
	solved, err := p.solved.HasSolved(ctx, viewer.IdentityID, s.Problem.ProblemID)
	if err != nil {
		return model.FeedbackNone, appErr.Wrapf(err, appErr.DatabaseError, "check solved problem failed")
	}
	if solved {
		return model.FeedbackDetailed, nil
	}
	return model.FeedbackNone, nil
}

// zeroesScore reports whether the contest hides non-perfect scores.
func zeroesScore(contest *model.Contest, score float64) bool {
	return contest != nil && !contest.PartialScore && score < 1
}

func (p *Policy) source(ctx context.Context, guid string) string {
	if p.cfg.Lockdown {
		return LockdownSource
	}
	src, err := p.sources.Get(ctx, guid)
	if err != nil {
		logger.Warn(ctx, "load submission source failed", zap.String("guid", guid), zap.Error(err))
		return ""
	}
	return src
}

// runDetails returns the decoded details.json of a run. Finished runs are
// cached until the next rejudge invalidates them.
func (p *Policy) runDetails(ctx context.Context, run *model.Run) (*model.RunDetails, bool) {
	load := func(ctx context.Context) ([]byte, error) {
		raw, ok := p.resources.Resolve(ctx, run.RunID, detailsFile)
		if !ok {
			return nil, nil
		}
		return raw, nil
	}

	var (
		raw []byte
		err error
	)
	if p.aggregates != nil && run.Status == model.StatusReady {
		raw, err = p.aggregates.GetOrCompute(ctx, model.RunDetailsKey(run.RunID), p.cfg.DetailsCacheTTL, load)
	} else {
		raw, err = load(ctx)
	}
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	var details model.RunDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		logger.Warn(ctx, "decode run details failed", zap.Int64("run_id", run.RunID), zap.Error(err))
		return nil, false
	}
	return &details, true
}

func (p *Policy) gradingLogs(ctx context.Context, runID int64) (string, bool) {
	compressed, ok := p.resources.Resolve(ctx, runID, logsFile)
	if !ok {
		return "", false
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		logger.Warn(ctx, "open grading logs failed", zap.Int64("run_id", runID), zap.Error(err))
		return "", false
	}
	defer zr.Close()
	logs, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		logger.Warn(ctx, "decompress grading logs failed", zap.Int64("run_id", runID), zap.Error(err))
		return "", false
	}
	return string(logs), true
}
