// Package eligibility decides whether a submission may be admitted and how
// it is classified.
package eligibility

import (
	"context"
	"errors"
	"time"

	"judgegate/internal/run/model"
	"judgegate/internal/run/penalty"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/repository"
)

const defaultSubmissionGap = 60 * time.Second

// Mode tells practice submissions apart from problemset submissions.
type Mode string

const (
	ModePractice   Mode = "practice"
	ModeProblemset Mode = "problemset"
)

// ProblemStore reads problem metadata.
type ProblemStore interface {
	GetByAlias(ctx context.Context, alias string) (*model.Problem, error)
	// GetPracticeDeadline returns the latest finish time among the contests
	// that still hide the problem, nil when there is none.
	GetPracticeDeadline(ctx context.Context, problemID int64) (*time.Time, error)
}

// ContestStore reads contests.
type ContestStore interface {
	GetByAlias(ctx context.Context, alias string) (*model.Contest, error)
}

// ProblemsetStore reads problemsets and per-identity problemset state.
type ProblemsetStore interface {
	GetByID(ctx context.Context, problemsetID int64) (*model.Problemset, error)
	GetContainer(ctx context.Context, problemsetID int64) (*model.ProblemsetContainer, error)
	HasProblem(ctx context.Context, problemsetID, problemID int64) (bool, error)
	// GetIdentity returns nil without error when the identity never joined.
	GetIdentity(ctx context.Context, identityID, problemsetID int64) (*model.ProblemsetIdentity, error)
	// GetProblemOpened returns nil without error when the problem was never opened.
	GetProblemOpened(ctx context.Context, problemsetID, identityID, problemID int64) (*time.Time, error)
}

// SubmissionHistory reads prior submission times for the anti-spam gap.
type SubmissionHistory interface {
	// LastSubmissionTime is scoped to the problemset, or to practice when problemsetID is nil.
	LastSubmissionTime(ctx context.Context, problemsetID *int64, problemID, identityID int64) (*time.Time, error)
}

// Authorizer answers permission questions.
type Authorizer interface {
	IsProblemAdmin(ctx context.Context, identity model.Identity, problem *model.Problem) (bool, error)
	IsProblemsetAdmin(ctx context.Context, identity model.Identity, problemset *model.Problemset) (bool, error)
	CanSubmitToProblemset(ctx context.Context, identity model.Identity, problemset *model.Problemset) (bool, error)
}

// Config holds validation policy.
type Config struct {
	Lockdown             bool
	DefaultSubmissionGap time.Duration
	SupportedLanguages   []string
}

// Request is a candidate submission.
type Request struct {
	Identity     model.Identity
	ProblemAlias string
	Language     string
	ProblemsetID *int64
	ContestAlias string
}

// Decision is the classification of an admitted submission.
type Decision struct {
	Mode               Mode
	Problem            *model.Problem
	Problemset         *model.Problemset
	Container          Container
	Contest            *model.Contest
	ProblemsetIdentity *model.ProblemsetIdentity
	Type               model.SubmissionType
	Penalty            penalty.Inputs
	SubmissionGap      time.Duration
}

// ProblemsetID returns the problemset of the decision, nil for practice.
func (d *Decision) ProblemsetID() *int64 {
	if d == nil || d.Problemset == nil {
		return nil
	}
	id := d.Problemset.ProblemsetID
	return &id
}

// SubmissionDeadline is the effective deadline of the submission context.
func (d *Decision) SubmissionDeadline() time.Time {
	if d == nil || d.Mode == ModePractice {
		return time.Time{}
	}
	return SubmissionDeadline(d.Container, d.ProblemsetIdentity)
}

// Validator runs the ordered eligibility checks.
type Validator struct {
	problems    ProblemStore
	contests    ContestStore
	problemsets ProblemsetStore
	history     SubmissionHistory
	authz       Authorizer
	cfg         Config
	now         func() time.Time
}

// Option customizes a Validator.
type Option func(*Validator)

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a validator.
func NewValidator(problems ProblemStore, contests ContestStore, problemsets ProblemsetStore, history SubmissionHistory, authz Authorizer, cfg Config, opts ...Option) *Validator {
	if cfg.DefaultSubmissionGap <= 0 {
		cfg.DefaultSubmissionGap = defaultSubmissionGap
	}
	if cfg.SupportedLanguages == nil {
		cfg.SupportedLanguages = model.SupportedLanguages
	}
	v := &Validator{
		problems:    problems,
		contests:    contests,
		problemsets: problemsets,
		history:     history,
		authz:       authz,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the classification of req or the first refusal.
func (v *Validator) Validate(ctx context.Context, req Request) (*Decision, error) {
	if req.ProblemsetID != nil && req.ContestAlias != "" {
		return nil, appErr.InvalidParameter("problemset_id and contest_alias", appErr.ReasonIncompatibleArgs)
	}

	problem, err := v.loadProblem(ctx, req.ProblemAlias)
	if err != nil {
		return nil, err
	}

	allowed := model.IntersectLanguages(v.cfg.SupportedLanguages, problem.Languages)
	if !model.ContainsLanguage(allowed, req.Language) {
		return nil, appErr.InvalidParameter("language", appErr.ReasonParameterInvalid)
	}

	if req.ProblemsetID == nil && req.ContestAlias == "" {
		return v.validatePractice(ctx, req, problem)
	}
	return v.validateProblemset(ctx, req, problem, allowed)
}

func (v *Validator) loadProblem(ctx context.Context, alias string) (*model.Problem, error) {
	if alias == "" {
		return nil, appErr.InvalidParameter("problem_alias", appErr.ReasonParameterInvalid)
	}
	problem, err := v.problems.GetByAlias(ctx, alias)
	if err != nil {
		if repository.IsNotFoundError(err) {
			return nil, appErr.Refuse(appErr.ProblemNotFound, appErr.ReasonProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	if problem.Deprecated {
		return nil, appErr.Refuse(appErr.ProblemNotFound, appErr.ReasonProblemDeprecated)
	}
	if problem.Visibility.Banned() {
		return nil, appErr.Refuse(appErr.ProblemNotFound, appErr.ReasonProblemNotFound)
	}
	return problem, nil
}

func (v *Validator) validatePractice(ctx context.Context, req Request, problem *model.Problem) (*Decision, error) {
	if v.cfg.Lockdown {
		return nil, appErr.Refuse(appErr.Lockdown, appErr.ReasonLockdown)
	}

	now := v.now()
	open := problem.Visibility.Public()
	if !open {
		isAdmin, err := v.authz.IsProblemAdmin(ctx, req.Identity, problem)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "check problem admin failed")
		}
		open = isAdmin
	}
	if !open {
		deadline, err := v.problems.GetPracticeDeadline(ctx, problem.ProblemID)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "load practice deadline failed")
		}
		open = deadline == nil || now.After(*deadline)
	}
	if !open {
		return nil, appErr.NotAllowed(appErr.ReasonProblemIsNotPublic)
	}

	gap := v.cfg.DefaultSubmissionGap
	if !req.Identity.Sysadmin {
		if err := v.checkGap(ctx, nil, problem.ProblemID, req.Identity.IdentityID, gap, now); err != nil {
			return nil, err
		}
	}

	return &Decision{
		Mode:          ModePractice,
		Problem:       problem,
		Type:          model.SubmissionNormal,
		Penalty:       penalty.Inputs{Policy: model.PenaltyNone},
		SubmissionGap: gap,
	}, nil
}

func (v *Validator) validateProblemset(ctx context.Context, req Request, problem *model.Problem, allowed []string) (*Decision, error) {
	var problemsetID int64
	if req.ProblemsetID != nil {
		problemsetID = *req.ProblemsetID
	} else {
		contest, err := v.contests.GetByAlias(ctx, req.ContestAlias)
		if err != nil {
			if repository.IsNotFoundError(err) {
				return nil, appErr.Refuse(appErr.ContestNotFound, appErr.ReasonParameterNotFound).WithDetail("parameter", "contest_alias")
			}
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
		}
		problemsetID = contest.ProblemsetID
	}

	record, err := v.problemsets.GetContainer(ctx, problemsetID)
	if err != nil {
		if repository.IsNotFoundError(err) {
			return nil, appErr.Refuse(appErr.ProblemsetNotFound, appErr.ReasonProblemsetNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problemset container failed")
	}
	container, err := NewContainer(record)
	if err != nil {
		return nil, appErr.Refuse(appErr.ProblemsetNotFound, appErr.ReasonProblemsetNotFound)
	}

	problemset, err := v.problemsets.GetByID(ctx, problemsetID)
	if err != nil {
		if repository.IsNotFoundError(err) {
			return nil, appErr.Refuse(appErr.ProblemsetNotFound, appErr.ReasonProblemsetNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problemset failed")
	}

	allowed = model.IntersectLanguages(allowed, container.Languages(), problemset.Languages)
	if !model.ContainsLanguage(allowed, req.Language) {
		return nil, appErr.InvalidParameter("language", appErr.ReasonParameterInvalid)
	}

	paired, err := v.problemsets.HasProblem(ctx, problemsetID, problem.ProblemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "check problemset problem failed")
	}
	if !paired {
		return nil, appErr.InvalidParameter("problem_alias", appErr.ReasonParameterNotFound)
	}

	identity := req.Identity
	pi, err := v.problemsets.GetIdentity(ctx, identity.IdentityID, problemsetID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problemset identity failed")
	}

	now := v.now()
	if container.IsLateSubmission(pi, now) {
		return nil, appErr.NotAllowed(appErr.ReasonRunNotInsideContest)
	}

	isAdmin, err := v.authz.IsProblemsetAdmin(ctx, identity, problemset)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "check problemset admin failed")
	}

	gap := container.SubmissionGap(v.cfg.DefaultSubmissionGap)
	if !isAdmin {
		if pi == nil {
			canSubmit, err := v.authz.CanSubmitToProblemset(ctx, identity, problemset)
			if err != nil {
				return nil, appErr.Wrapf(err, appErr.DatabaseError, "check problemset access failed")
			}
			if !canSubmit {
				return nil, appErr.NotAllowed(appErr.ReasonRunNotEvenOpened)
			}
		}
		if !container.IsSubmissionWindowOpen(pi, now) {
			return nil, appErr.NotAllowed(appErr.ReasonRunNotInsideContest)
		}
		if err := v.checkGap(ctx, &problemsetID, problem.ProblemID, identity.IdentityID, gap, now); err != nil {
			return nil, err
		}
	}

	contest := container.Contest()
	decision := &Decision{
		Mode:               ModeProblemset,
		Problem:            problem,
		Problemset:         problemset,
		Container:          container,
		Contest:            contest,
		ProblemsetIdentity: pi,
		Type:               model.SubmissionNormal,
		Penalty:            penalty.Inputs{Policy: model.PenaltyNone},
		SubmissionGap:      gap,
	}
	if isAdmin && !contest.IsVirtual() {
		decision.Type = model.SubmissionTest
	}

	if contest != nil {
		decision.Penalty = penalty.Inputs{Policy: contest.PenaltyType, ContestStart: contest.StartTime}
		if contest.PenaltyType == model.PenaltyProblemOpen {
			opened, err := v.problemsets.GetProblemOpened(ctx, problemsetID, identity.IdentityID, problem.ProblemID)
			if err != nil {
				return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem opened failed")
			}
			decision.Penalty.ProblemOpened = opened
		}
		if _, _, err := penalty.Basis(ctx, decision.Penalty); errors.Is(err, penalty.ErrProblemNotOpened) {
			return nil, appErr.NotAllowed(appErr.ReasonRunNotEvenOpened)
		}
	}
	return decision, nil
}

func (v *Validator) checkGap(ctx context.Context, problemsetID *int64, problemID, identityID int64, gap time.Duration, now time.Time) error {
	last, err := v.history.LastSubmissionTime(ctx, problemsetID, problemID, identityID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "load last submission failed")
	}
	if last != nil && now.Before(last.Add(gap)) {
		return appErr.NotAllowed(appErr.ReasonRunWaitGap)
	}
	return nil
}
