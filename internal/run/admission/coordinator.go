// Package admission persists eligible submissions, dispatches them to the
// grading backend and undoes the persisted records when dispatch fails.
package admission

import (
	"context"
	"errors"
	"strings"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/common/db"
	"judgegate/internal/run/eligibility"
	"judgegate/internal/run/grader"
	"judgegate/internal/run/model"
	"judgegate/internal/run/penalty"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transactor runs fn atomically.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) (int64, error)
	SetCurrentRun(ctx context.Context, tx db.Transaction, submissionID int64, runID *int64) error
	SetDisqualified(ctx context.Context, tx db.Transaction, submissionID int64, disqualified bool) error
	Delete(ctx context.Context, tx db.Transaction, submissionID int64) error
}

// RunStore persists runs.
type RunStore interface {
	Create(ctx context.Context, tx db.Transaction, run *model.Run) (int64, error)
	ResetStatus(ctx context.Context, tx db.Transaction, runID int64) error
	Delete(ctx context.Context, tx db.Transaction, runID int64) error
}

// SourceStore keeps submitted source code.
type SourceStore interface {
	Put(ctx context.Context, guid, source string) error
	Delete(ctx context.Context, guid string) error
}

// Dispatcher is the grading backend.
type Dispatcher interface {
	Grade(ctx context.Context, msg grader.GradeMessage) error
	Rejudge(ctx context.Context, runIDs []int64, debug bool) error
}

// AuditLog records admitted submissions.
type AuditLog interface {
	Append(ctx context.Context, entry model.SubmissionLog) error
}

// ProblemCounter tracks the number of submissions per problem.
type ProblemCounter interface {
	IncrementSubmissions(ctx context.Context, problemID int64) error
}

// EditAuthorizer decides who may rejudge or disqualify a submission.
type EditAuthorizer interface {
	CanEditSubmission(ctx context.Context, identity model.Identity, submission *model.Submission) (bool, error)
}

// Observer receives admission outcomes.
type Observer interface {
	ObserveAdmission(outcome string)
	ObserveRollback(outcome string)
}

// Config wires a Coordinator.
type Config struct {
	DB          Transactor
	Submissions SubmissionStore
	Runs        RunStore
	Sources     SourceStore
	Grader      Dispatcher
	AuditLog    AuditLog
	Problems    ProblemCounter
	Authorizer  EditAuthorizer
	Aggregates  cache.AggregateStore
	Observer    Observer
	Now         func() time.Time
}

// Coordinator owns the admission protocol.
type Coordinator struct {
	db          Transactor
	submissions SubmissionStore
	runs        RunStore
	sources     SourceStore
	grader      Dispatcher
	auditLog    AuditLog
	problems    ProblemCounter
	authz       EditAuthorizer
	aggregates  cache.AggregateStore
	observer    Observer
	now         func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.DB == nil:
		return nil, errors.New("database is required")
	case cfg.Submissions == nil || cfg.Runs == nil:
		return nil, errors.New("submission and run stores are required")
	case cfg.Sources == nil:
		return nil, errors.New("source store is required")
	case cfg.Grader == nil:
		return nil, errors.New("grader is required")
	case cfg.Authorizer == nil:
		return nil, errors.New("authorizer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		db:          cfg.DB,
		submissions: cfg.Submissions,
		runs:        cfg.Runs,
		sources:     cfg.Sources,
		grader:      cfg.Grader,
		auditLog:    cfg.AuditLog,
		problems:    cfg.Problems,
		authz:       cfg.Authorizer,
		aggregates:  cfg.Aggregates,
		observer:    cfg.Observer,
		now:         cfg.Now,
	}, nil
}

// Input is an eligible submission.
type Input struct {
	Identity model.Identity
	Decision *eligibility.Decision
	Language string
	Source   string
	ClientIP string
}

// Result is returned to the submitter.
type Result struct {
	GUID                    string
	SubmissionID            int64
	RunID                   int64
	SubmitDelay             int
	SubmissionDeadline      time.Time
	NextSubmissionTimestamp time.Time
}

// NewGUID returns a fresh external submission identifier.
func NewGUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Admit persists and dispatches a submission.
func (c *Coordinator) Admit(ctx context.Context, in Input) (*Result, error) {
	d := in.Decision
	if d == nil || d.Problem == nil {
		return nil, appErr.New(appErr.InternalServerError).WithMessage("missing eligibility decision")
	}
	now := c.now()

	submitDelay, err := penalty.Compute(ctx, d.Penalty, now)
	if err != nil {
		if errors.Is(err, penalty.ErrProblemNotOpened) {
			return nil, appErr.NotAllowed(appErr.ReasonRunNotEvenOpened)
		}
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "compute penalty failed")
	}

	guid := NewGUID()
	if err := c.sources.Put(ctx, guid, in.Source); err != nil {
		c.observe("source_failed")
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "store source failed")
	}

	submission := &model.Submission{
		GUID:         guid,
		IdentityID:   in.Identity.IdentityID,
		ProblemID:    d.Problem.ProblemID,
		ProblemsetID: d.ProblemsetID(),
		Language:     in.Language,
		Time:         now,
		SubmitDelay:  submitDelay,
		Type:         d.Type,
	}
	run := &model.Run{
		Version: d.Problem.CurrentVersion,
		Commit:  d.Problem.Commit,
		Status:  model.StatusNew,
		Verdict: model.VerdictJudgeError,
		Penalty: submitDelay,
		Time:    now,
	}
	if submission.ProblemsetID != nil {
		zero := 0.0
		run.ContestScore = &zero
	}

	if err := c.create(ctx, submission, run); err != nil {
		c.removeSource(ctx, guid)
		c.observe("create_failed")
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	saga := newDispatchSaga()
	saga.onRollback("clear_current_run", func(ctx context.Context) error {
		return c.submissions.SetCurrentRun(ctx, nil, submission.SubmissionID, nil)
	})
	saga.onRollback("delete_run", func(ctx context.Context) error {
		return c.runs.Delete(ctx, nil, run.RunID)
	})
	saga.onRollback("delete_submission", func(ctx context.Context) error {
		return c.submissions.Delete(ctx, nil, submission.SubmissionID)
	})
	saga.onRollback("delete_source", func(ctx context.Context) error {
		return c.sources.Delete(ctx, guid)
	})

	dispatchErr := c.grader.Grade(ctx, grader.GradeMessage{
		RunID:        run.RunID,
		GUID:         guid,
		ProblemAlias: d.Problem.Alias,
		Version:      run.Version,
		Commit:       run.Commit,
		Language:     in.Language,
		Source:       in.Source,
		Type:         submission.Type,
		ProblemsetID: submission.ProblemsetID,
	})
	if dispatchErr != nil {
		return nil, c.rollback(ctx, saga, submission, run, dispatchErr)
	}
	if err := saga.transition(StateDispatched); err != nil {
		return nil, appErr.InternalError(err)
	}

	c.recordAdmission(ctx, in, submission)
	_ = saga.transition(StateConfirmed)
	c.observe("admitted")

	return &Result{
		GUID:                    guid,
		SubmissionID:            submission.SubmissionID,
		RunID:                   run.RunID,
		SubmitDelay:             submitDelay,
		SubmissionDeadline:      d.SubmissionDeadline(),
		NextSubmissionTimestamp: now.Add(d.SubmissionGap),
	}, nil
}

// create writes the submission and run and links them in one transaction.
func (c *Coordinator) create(ctx context.Context, submission *model.Submission, run *model.Run) error {
	return c.db.Transaction(ctx, func(tx db.Transaction) error {
		submissionID, err := c.submissions.Create(ctx, tx, submission)
		if err != nil {
			return err
		}
		submission.SubmissionID = submissionID
		run.SubmissionID = submissionID

		runID, err := c.runs.Create(ctx, tx, run)
		if err != nil {
			return err
		}
		run.RunID = runID

		if err := c.submissions.SetCurrentRun(ctx, tx, submissionID, &runID); err != nil {
			return err
		}
		submission.CurrentRunID = &runID
		return nil
	})
}

func (c *Coordinator) rollback(ctx context.Context, saga *dispatchSaga, submission *model.Submission, run *model.Run, dispatchErr error) error {
	_ = saga.transition(StateDispatchFailed)
	c.observe("dispatch_failed")

	rollbackCtx := context.WithoutCancel(ctx)
	if err := saga.compensate(rollbackCtx); err != nil {
		var compErr *CompensationError
		step := ""
		if errors.As(err, &compErr) {
			step = compErr.Step
		}
		logger.Error(ctx, "rollback of undispatched submission failed, records orphaned",
			zap.String("guid", submission.GUID),
			zap.Int64("submission_id", submission.SubmissionID),
			zap.Int64("run_id", run.RunID),
			zap.String("failed_step", step),
			zap.String("saga_state", string(saga.State())),
			zap.NamedError("dispatch_error", dispatchErr),
			zap.Error(err),
		)
		c.observeRollback("failed")
	} else {
		logger.Warn(ctx, "grader dispatch failed, submission rolled back",
			zap.String("guid", submission.GUID),
			zap.Int64("run_id", run.RunID),
			zap.Error(dispatchErr),
		)
		c.observeRollback("rolled_back")
	}

	return appErr.Wrapf(dispatchErr, appErr.JudgeSystemError, "dispatch to grader failed").
		WithReason(appErr.ReasonGraderUnavailable)
}

// recordAdmission runs the post-dispatch bookkeeping. The run is already in
// the grader's hands, so failures here are logged only.
func (c *Coordinator) recordAdmission(ctx context.Context, in Input, submission *model.Submission) {
	if c.auditLog != nil {
		entry := model.SubmissionLog{
			UserID:       in.Identity.UserID,
			IdentityID:   in.Identity.IdentityID,
			SubmissionID: submission.SubmissionID,
			ProblemsetID: submission.ProblemsetID,
			IP:           in.ClientIP,
			Time:         submission.Time,
		}
		if err := c.auditLog.Append(ctx, entry); err != nil {
			logger.Error(ctx, "append submission log failed", zap.String("guid", submission.GUID), zap.Error(err))
		}
	}
	if c.problems != nil {
		if err := c.problems.IncrementSubmissions(ctx, submission.ProblemID); err != nil {
			logger.Error(ctx, "increment problem submissions failed", zap.Int64("problem_id", submission.ProblemID), zap.Error(err))
		}
	}
	c.invalidate(ctx, model.ProblemsSolvedRankKey)
}

// Rejudge resets a run to new and asks the grader to grade it again.
// Runs still queued are left untouched.
func (c *Coordinator) Rejudge(ctx context.Context, identity model.Identity, submission *model.Submission, run *model.Run, problemAlias string, debug bool) error {
	if err := c.checkEdit(ctx, identity, submission); err != nil {
		return err
	}
	if run.Status.InQueue() {
		return nil
	}

	err := c.db.Transaction(ctx, func(tx db.Transaction) error {
		return c.runs.ResetStatus(ctx, tx, run.RunID)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "reset run status failed")
	}
	run.Status = model.StatusNew

	if err := c.grader.Rejudge(ctx, []int64{run.RunID}, debug); err != nil {
		logger.Error(ctx, "grader rejudge failed",
			zap.String("guid", submission.GUID), zap.Int64("run_id", run.RunID), zap.Error(err))
	}

	c.invalidate(ctx, model.RunDetailsKey(run.RunID), model.ProblemStatsKey(problemAlias), model.ProblemsSolvedRankKey)
	return nil
}

// Disqualify marks a submission disqualified without touching its runs.
func (c *Coordinator) Disqualify(ctx context.Context, identity model.Identity, submission *model.Submission) error {
	if err := c.checkEdit(ctx, identity, submission); err != nil {
		return err
	}
	err := c.db.Transaction(ctx, func(tx db.Transaction) error {
		return c.submissions.SetDisqualified(ctx, tx, submission.SubmissionID, true)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "disqualify submission failed")
	}
	submission.Disqualified = true
	c.invalidate(ctx, model.ProblemsSolvedRankKey)
	return nil
}

func (c *Coordinator) checkEdit(ctx context.Context, identity model.Identity, submission *model.Submission) error {
	allowed, err := c.authz.CanEditSubmission(ctx, identity, submission)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "check edit permission failed")
	}
	if !allowed {
		return appErr.Refuse(appErr.Forbidden, appErr.ReasonUserNotAllowed)
	}
	return nil
}

func (c *Coordinator) invalidate(ctx context.Context, keys ...string) {
	if c.aggregates == nil {
		return
	}
	if err := c.aggregates.Invalidate(ctx, keys...); err != nil {
		logger.Warn(ctx, "invalidate aggregates failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Coordinator) removeSource(ctx context.Context, guid string) {
	if err := c.sources.Delete(context.WithoutCancel(ctx), guid); err != nil {
		logger.Warn(ctx, "remove orphaned source failed", zap.String("guid", guid), zap.Error(err))
	}
}

func (c *Coordinator) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveAdmission(outcome)
	}
}

func (c *Coordinator) observeRollback(outcome string) {
	if c.observer != nil {
		c.observer.ObserveRollback(outcome)
	}
}
