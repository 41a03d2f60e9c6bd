package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/run/admission"
	"judgegate/internal/run/disclosure"
	"judgegate/internal/run/eligibility"
	"judgegate/internal/run/model"
	"judgegate/internal/run/repository"
	appErr "judgegate/pkg/errors"
	pkgrepo "judgegate/pkg/repository"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultMaxSourceBytes = 100 * 1024
	defaultCountsDays     = 90
	defaultCountsTTL      = 24 * time.Hour
)

// Validator decides whether a submission may be admitted.
type Validator interface {
	Validate(ctx context.Context, req eligibility.Request) (*eligibility.Decision, error)
}

// Coordinator persists, dispatches and edits submissions.
type Coordinator interface {
	Admit(ctx context.Context, in admission.Input) (*admission.Result, error)
	Rejudge(ctx context.Context, identity model.Identity, submission *model.Submission, run *model.Run, problemAlias string, debug bool) error
	Disqualify(ctx context.Context, identity model.Identity, submission *model.Submission) error
}

// Discloser builds redacted run views.
type Discloser interface {
	Status(ctx context.Context, viewer model.Identity, s disclosure.Subject) (*disclosure.StatusView, error)
	Details(ctx context.Context, viewer model.Identity, s disclosure.Subject) (*disclosure.DetailsView, error)
	Source(ctx context.Context, viewer model.Identity, s disclosure.Subject) (*disclosure.SourceView, error)
	Download(ctx context.Context, viewer model.Identity, s disclosure.Subject, showDiff bool) (*disclosure.Download, error)
}

// SubmissionFinder reads submissions.
type SubmissionFinder interface {
	GetByGUID(ctx context.Context, guid string) (*model.Submission, error)
}

// RunFinder reads runs and run statistics.
type RunFinder interface {
	GetByID(ctx context.Context, runID int64) (*model.Run, error)
	List(ctx context.Context, filter repository.RunFilter, opts pkgrepo.ListOptions) ([]repository.RunListing, error)
	DailyCounts(ctx context.Context, days int) ([]model.RunCount, error)
}

// ProblemFinder reads problems.
type ProblemFinder interface {
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
	GetByAlias(ctx context.Context, alias string) (*model.Problem, error)
}

// ContestFinder reads contests.
type ContestFinder interface {
	GetByProblemsetID(ctx context.Context, problemsetID int64) (*model.Contest, error)
}

// IdentityFinder reads identities.
type IdentityFinder interface {
	GetByID(ctx context.Context, identityID int64) (*model.Identity, error)
	GetByUsername(ctx context.Context, username string) (*model.Identity, error)
}

// RefusalObserver receives the reason of every refused request.
type RefusalObserver interface {
	ObserveRefusal(reason string)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB    time.Duration
	Cache time.Duration
}

// Config holds run service dependencies and settings.
type Config struct {
	Validator   Validator
	Coordinator Coordinator
	Disclosure  Discloser
	Submissions SubmissionFinder
	Runs        RunFinder
	Problems    ProblemFinder
	Contests    ContestFinder
	Identities  IdentityFinder
	Aggregates  cache.AggregateStore
	Observer    RefusalObserver

	MaxSourceBytes int
	CountsDays     int
	CountsTTL      time.Duration
	Timeouts       TimeoutConfig
}

// RunService is the public run API.
type RunService struct {
	validator   Validator
	coordinator Coordinator
	disclosure  Discloser
	submissions SubmissionFinder
	runs        RunFinder
	problems    ProblemFinder
	contests    ContestFinder
	identities  IdentityFinder
	aggregates  cache.AggregateStore
	observer    RefusalObserver

	maxSourceBytes int
	countsDays     int
	countsTTL      time.Duration
	timeouts       TimeoutConfig
}

// NewRunService creates a run service.
func NewRunService(cfg Config) (*RunService, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if cfg.Disclosure == nil {
		return nil, fmt.Errorf("disclosure policy is required")
	}
	if cfg.Submissions == nil || cfg.Runs == nil {
		return nil, fmt.Errorf("submission and run finders are required")
	}
	if cfg.Problems == nil || cfg.Contests == nil || cfg.Identities == nil {
		return nil, fmt.Errorf("problem, contest and identity finders are required")
	}
	if cfg.Aggregates == nil {
		return nil, fmt.Errorf("aggregate store is required")
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	if cfg.CountsDays <= 0 {
		cfg.CountsDays = defaultCountsDays
	}
	if cfg.CountsTTL <= 0 {
		cfg.CountsTTL = defaultCountsTTL
	}
	return &RunService{
		validator:      cfg.Validator,
		coordinator:    cfg.Coordinator,
		disclosure:     cfg.Disclosure,
		submissions:    cfg.Submissions,
		runs:           cfg.Runs,
		problems:       cfg.Problems,
		contests:       cfg.Contests,
		identities:     cfg.Identities,
		aggregates:     cfg.Aggregates,
		observer:       cfg.Observer,
		maxSourceBytes: cfg.MaxSourceBytes,
		countsDays:     cfg.CountsDays,
		countsTTL:      cfg.CountsTTL,
		timeouts:       cfg.Timeouts,
	}, nil
}

// CreateInput describes a submission request.
type CreateInput struct {
	Identity     model.Identity
	ProblemAlias string
	Language     string
	Source       string
	ProblemsetID *int64
	ContestAlias string
	ClientIP     string
}

// Create validates and admits a submission.
func (s *RunService) Create(ctx context.Context, in CreateInput) (*admission.Result, error) {
	if in.Source == "" || len(in.Source) > s.maxSourceBytes {
		return nil, s.refused(appErr.InvalidParameter("source", appErr.ReasonParameterInvalid))
	}
	decision, err := s.validator.Validate(ctx, eligibility.Request{
		Identity:     in.Identity,
		ProblemAlias: in.ProblemAlias,
		Language:     in.Language,
		ProblemsetID: in.ProblemsetID,
		ContestAlias: in.ContestAlias,
	})
	if err != nil {
		return nil, s.refused(err)
	}
	result, err := s.coordinator.Admit(ctx, admission.Input{
		Identity: in.Identity,
		Decision: decision,
		Language: in.Language,
		Source:   in.Source,
		ClientIP: in.ClientIP,
	})
	if err != nil {
		return nil, s.refused(err)
	}
	logger.Info(ctx, "submission admitted",
		zap.String("guid", result.GUID),
		zap.String("problem", in.ProblemAlias),
		zap.Int64("run_id", result.RunID),
	)
	return result, nil
}

// Status returns the run summary of a submission.
func (s *RunService) Status(ctx context.Context, viewer model.Identity, guid string) (*disclosure.StatusView, error) {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	view, err := s.disclosure.Status(ctx, viewer, subject)
	return view, s.refused(err)
}

// Details returns the disclosed run detail of a submission.
func (s *RunService) Details(ctx context.Context, viewer model.Identity, guid string) (*disclosure.DetailsView, error) {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	view, err := s.disclosure.Details(ctx, viewer, subject)
	return view, s.refused(err)
}

// Source returns the submitted source code.
func (s *RunService) Source(ctx context.Context, viewer model.Identity, guid string) (*disclosure.SourceView, error) {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	view, err := s.disclosure.Source(ctx, viewer, subject)
	return view, s.refused(err)
}

// Download opens the result archive of a submission.
func (s *RunService) Download(ctx context.Context, viewer model.Identity, guid string, showDiff bool) (*disclosure.Download, error) {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	dl, err := s.disclosure.Download(ctx, viewer, subject, showDiff)
	return dl, s.refused(err)
}

// Rejudge queues the current run of a submission for grading again.
func (s *RunService) Rejudge(ctx context.Context, viewer model.Identity, guid string, debug bool) error {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return err
	}
	err = s.coordinator.Rejudge(ctx, viewer, subject.Submission, subject.Run, subject.Problem.Alias, debug)
	return s.refused(err)
}

// Disqualify marks a submission disqualified.
func (s *RunService) Disqualify(ctx context.Context, viewer model.Identity, guid string) error {
	subject, err := s.load(ctx, guid)
	if err != nil {
		return err
	}
	return s.refused(s.coordinator.Disqualify(ctx, viewer, subject.Submission))
}

// load resolves a guid into the submission, its current run, problem,
// owning contest and submitter username.
func (s *RunService) load(ctx context.Context, guid string) (disclosure.Subject, error) {
	dbCtx := withTimeout(ctx, s.timeouts.DB)
	defer dbCtx.cancel()

	var subject disclosure.Subject
	submission, err := s.submissions.GetByGUID(dbCtx.ctx, guid)
	if err != nil {
		return subject, s.refused(notFoundOr(err, "load submission failed"))
	}
	if submission.CurrentRunID == nil {
		return subject, s.refused(appErr.Refuse(appErr.SubmissionNotFound, appErr.ReasonRunNotFound))
	}
	run, err := s.runs.GetByID(dbCtx.ctx, *submission.CurrentRunID)
	if err != nil {
		return subject, s.refused(notFoundOr(err, "load run failed"))
	}
	problem, err := s.problems.GetByID(dbCtx.ctx, submission.ProblemID)
	if err != nil {
		if pkgrepo.IsNotFoundError(err) {
			return subject, s.refused(appErr.Refuse(appErr.ProblemNotFound, appErr.ReasonProblemNotFound))
		}
		return subject, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}

	var contest *model.Contest
	if submission.ProblemsetID != nil {
		contest, err = s.contests.GetByProblemsetID(dbCtx.ctx, *submission.ProblemsetID)
		if err != nil && !pkgrepo.IsNotFoundError(err) {
			return subject, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
		}
	}

	var username string
	if identity, err := s.identities.GetByID(dbCtx.ctx, submission.IdentityID); err == nil {
		username = identity.Username
	} else if !pkgrepo.IsNotFoundError(err) {
		logger.Warn(ctx, "load submitter identity failed", zap.String("guid", guid), zap.Error(err))
	}

	return disclosure.Subject{
		Submission: submission,
		Run:        run,
		Problem:    problem,
		Contest:    contest,
		Username:   username,
	}, nil
}

func notFoundOr(err error, msg string) error {
	if pkgrepo.IsNotFoundError(err) || errors.Is(err, pkgrepo.ErrInvalidInput) {
		return appErr.Refuse(appErr.SubmissionNotFound, appErr.ReasonRunNotFound)
	}
	return appErr.Wrapf(err, appErr.DatabaseError, "%s", msg)
}

// refused records the reason of a refusal and passes err through.
func (s *RunService) refused(err error) error {
	if err == nil || s.observer == nil {
		return err
	}
	if reason := appErr.GetReason(err); reason != appErr.ReasonNone {
		s.observer.ObserveRefusal(string(reason))
	}
	return err
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
