package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"judgegate/internal/common/db"
	"judgegate/internal/run/admission"
	"judgegate/internal/run/eligibility"
	"judgegate/internal/run/grader"
	"judgegate/internal/run/model"
	"judgegate/internal/run/penalty"
	"judgegate/internal/testutil"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type records struct {
	nextID      int64
	submissions map[int64]model.Submission
	runs        map[int64]model.Run

	failRunCreate   bool
	failRunDelete   int
	failClearRef    bool
	resets          int
	disqualifyCalls int
}

func newRecords() *records {
	return &records{submissions: map[int64]model.Submission{}, runs: map[int64]model.Run{}}
}

func (r *records) snapshot() (map[int64]model.Submission, map[int64]model.Run) {
	subs := make(map[int64]model.Submission, len(r.submissions))
	for k, v := range r.submissions {
		subs[k] = v
	}
	runs := make(map[int64]model.Run, len(r.runs))
	for k, v := range r.runs {
		runs[k] = v
	}
	return subs, runs
}

// Transaction restores the previous state when fn fails.
func (r *records) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	subs, runs := r.snapshot()
	if err := fn(nil); err != nil {
		r.submissions, r.runs = subs, runs
		return err
	}
	return nil
}

type submissionStore struct{ r *records }

func (s submissionStore) Create(ctx context.Context, tx db.Transaction, sub *model.Submission) (int64, error) {
	s.r.nextID++
	s.r.submissions[s.r.nextID] = *sub
	return s.r.nextID, nil
}

func (s submissionStore) SetCurrentRun(ctx context.Context, tx db.Transaction, submissionID int64, runID *int64) error {
	if runID == nil && s.r.failClearRef {
		return errors.New("deadlock")
	}
	sub, ok := s.r.submissions[submissionID]
	if !ok {
		return nil
	}
	sub.CurrentRunID = runID
	s.r.submissions[submissionID] = sub
	return nil
}

func (s submissionStore) SetDisqualified(ctx context.Context, tx db.Transaction, submissionID int64, disqualified bool) error {
	s.r.disqualifyCalls++
	sub := s.r.submissions[submissionID]
	sub.Disqualified = disqualified
	s.r.submissions[submissionID] = sub
	return nil
}

func (s submissionStore) Delete(ctx context.Context, tx db.Transaction, submissionID int64) error {
	for _, run := range s.r.runs {
		if run.SubmissionID == submissionID {
			return errors.New("foreign key violation: runs reference submission")
		}
	}
	delete(s.r.submissions, submissionID)
	return nil
}

type runStore struct{ r *records }

func (s runStore) Create(ctx context.Context, tx db.Transaction, run *model.Run) (int64, error) {
	if s.r.failRunCreate {
		return 0, errors.New("disk full")
	}
	s.r.nextID++
	s.r.runs[s.r.nextID] = *run
	return s.r.nextID, nil
}

func (s runStore) ResetStatus(ctx context.Context, tx db.Transaction, runID int64) error {
	s.r.resets++
	run := s.r.runs[runID]
	run.Status = model.StatusNew
	s.r.runs[runID] = run
	return nil
}

func (s runStore) Delete(ctx context.Context, tx db.Transaction, runID int64) error {
	if s.r.failRunDelete > 0 {
		s.r.failRunDelete--
		return errors.New("lock wait timeout")
	}
	for _, sub := range s.r.submissions {
		if sub.CurrentRunID != nil && *sub.CurrentRunID == runID {
			return errors.New("foreign key violation: submission references run")
		}
	}
	delete(s.r.runs, runID)
	return nil
}

type sources struct {
	data   map[string]string
	putErr error
}

func (s *sources) Put(ctx context.Context, guid, source string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.data[guid] = source
	return nil
}

func (s *sources) Delete(ctx context.Context, guid string) error {
	delete(s.data, guid)
	return nil
}

type fakeGrader struct {
	graded     []grader.GradeMessage
	rejudged   [][]int64
	gradeErr   error
	rejudgeErr error
}

func (g *fakeGrader) Grade(ctx context.Context, msg grader.GradeMessage) error {
	if g.gradeErr != nil {
		return g.gradeErr
	}
	g.graded = append(g.graded, msg)
	return nil
}

func (g *fakeGrader) Rejudge(ctx context.Context, runIDs []int64, debug bool) error {
	g.rejudged = append(g.rejudged, runIDs)
	return g.rejudgeErr
}

type auditLog struct {
	entries []model.SubmissionLog
	err     error
}

func (a *auditLog) Append(ctx context.Context, entry model.SubmissionLog) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type counter map[int64]int

func (c counter) IncrementSubmissions(ctx context.Context, problemID int64) error {
	c[problemID]++
	return nil
}

type editors map[int64]bool

func (e editors) CanEditSubmission(ctx context.Context, identity model.Identity, submission *model.Submission) (bool, error) {
	return identity.Sysadmin || e[identity.IdentityID], nil
}

type aggregates struct{ invalidated []string }

func (a *aggregates) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	return compute(ctx)
}

func (a *aggregates) Invalidate(ctx context.Context, keys ...string) error {
	a.invalidated = append(a.invalidated, keys...)
	return nil
}

type outcomes struct{ admission, rollback []string }

func (o *outcomes) ObserveAdmission(outcome string) { o.admission = append(o.admission, outcome) }
func (o *outcomes) ObserveRollback(outcome string)  { o.rollback = append(o.rollback, outcome) }

type harness struct {
	records    *records
	sources    *sources
	grader     *fakeGrader
	audit      *auditLog
	counter    counter
	aggregates *aggregates
	outcomes   *outcomes
	c          *admission.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		records:    newRecords(),
		sources:    &sources{data: map[string]string{}},
		grader:     &fakeGrader{},
		audit:      &auditLog{},
		counter:    counter{},
		aggregates: &aggregates{},
		outcomes:   &outcomes{},
	}
	c, err := admission.NewCoordinator(admission.Config{
		DB:          h.records,
		Submissions: submissionStore{h.records},
		Runs:        runStore{h.records},
		Sources:     h.sources,
		Grader:      h.grader,
		AuditLog:    h.audit,
		Problems:    h.counter,
		Authorizer:  editors{7: true},
		Aggregates:  h.aggregates,
		Observer:    h.outcomes,
		Now:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.c = c
	return h
}

var problem = &model.Problem{ProblemID: 3, Alias: "sumas", CurrentVersion: "v1", Commit: "c0ffee"}

func contestDecision() *eligibility.Decision {
	contest := &model.Contest{ContestID: 1, ProblemsetID: 10, StartTime: now.Add(-95 * time.Minute), FinishTime: now.Add(time.Hour), PenaltyType: model.PenaltyContestStart}
	container, _ := eligibility.NewContainer(&model.ProblemsetContainer{Contest: contest})
	return &eligibility.Decision{
		Mode:          eligibility.ModeProblemset,
		Problem:       problem,
		Problemset:    &model.Problemset{ProblemsetID: 10},
		Container:     container,
		Contest:       contest,
		Type:          model.SubmissionNormal,
		Penalty:       penalty.Inputs{Policy: model.PenaltyContestStart, ContestStart: contest.StartTime},
		SubmissionGap: 2 * time.Minute,
	}
}

func practiceDecision() *eligibility.Decision {
	return &eligibility.Decision{
		Mode:          eligibility.ModePractice,
		Problem:       problem,
		Type:          model.SubmissionNormal,
		Penalty:       penalty.Inputs{Policy: model.PenaltyNone},
		SubmissionGap: time.Minute,
	}
}

func TestAdmitContestSubmission(t *testing.T) {
	h := newHarness(t)
	uid := int64(55)

	res, err := h.c.Admit(context.Background(), admission.Input{
		Identity: model.Identity{IdentityID: 5, UserID: &uid},
		Decision: contestDecision(),
		Language: "py3",
		Source:   "print(1)",
		ClientIP: "10.0.0.1",
	})
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(res.GUID), 32)
	testutil.AssertEqual(t, res.SubmitDelay, 95)
	testutil.AssertEqual(t, res.SubmissionDeadline, now.Add(time.Hour))
	testutil.AssertEqual(t, res.NextSubmissionTimestamp, now.Add(2*time.Minute))

	sub := h.records.submissions[res.SubmissionID]
	run := h.records.runs[res.RunID]
	testutil.AssertEqual(t, *sub.CurrentRunID, res.RunID)
	testutil.AssertEqual(t, *sub.ProblemsetID, int64(10))
	testutil.AssertEqual(t, run.Status, model.StatusNew)
	testutil.AssertEqual(t, run.Verdict, model.VerdictJudgeError)
	testutil.AssertEqual(t, run.Penalty, 95)
	testutil.AssertEqual(t, *run.ContestScore, 0.0)
	testutil.AssertEqual(t, run.Commit, "c0ffee")

	testutil.AssertEqual(t, h.sources.data[res.GUID], "print(1)")
	testutil.AssertEqual(t, len(h.grader.graded), 1)
	testutil.AssertEqual(t, h.grader.graded[0].RunID, res.RunID)
	testutil.AssertEqual(t, len(h.audit.entries), 1)
	testutil.AssertEqual(t, h.audit.entries[0].IP, "10.0.0.1")
	testutil.AssertEqual(t, h.counter[3], 1)
	testutil.AssertEqual(t, h.aggregates.invalidated, []string{model.ProblemsSolvedRankKey})
	testutil.AssertEqual(t, h.outcomes.admission, []string{"admitted"})
}

func TestAdmitPracticeHasNoContestScore(t *testing.T) {
	h := newHarness(t)

	res, err := h.c.Admit(context.Background(), admission.Input{
		Identity: model.Identity{IdentityID: 5},
		Decision: practiceDecision(),
		Language: "py3",
		Source:   "print(1)",
	})
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, res.SubmitDelay, 0)
	testutil.AssertTrue(t, res.SubmissionDeadline.IsZero(), "practice deadline should be zero")
	testutil.AssertNil(t, h.records.runs[res.RunID].ContestScore)
	testutil.AssertNil(t, h.records.submissions[res.SubmissionID].ProblemsetID)
}

func TestAdmitCreateFailureLeavesNothing(t *testing.T) {
	h := newHarness(t)
	h.records.failRunCreate = true

	res, err := h.c.Admit(context.Background(), admission.Input{Decision: practiceDecision(), Language: "py3", Source: "x"})
	testutil.AssertNil(t, res)
	testutil.AssertEqual(t, appErr.GetCode(err), appErr.SubmissionCreateFailed)
	testutil.AssertEqual(t, len(h.records.submissions), 0)
	testutil.AssertEqual(t, len(h.records.runs), 0)
	testutil.AssertEqual(t, len(h.sources.data), 0)
	testutil.AssertEqual(t, len(h.grader.graded), 0)
}

func TestAdmitDispatchFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.grader.gradeErr = errors.New("broker unavailable")

	res, err := h.c.Admit(context.Background(), admission.Input{Decision: contestDecision(), Language: "py3", Source: "x"})
	testutil.AssertNil(t, res)
	testutil.AssertRefusal(t, err, appErr.JudgeSystemError, appErr.ReasonGraderUnavailable)
	testutil.AssertTrue(t, errors.Is(err, h.grader.gradeErr), "original dispatch error should be preserved")

	testutil.AssertEqual(t, len(h.records.submissions), 0)
	testutil.AssertEqual(t, len(h.records.runs), 0)
	testutil.AssertEqual(t, len(h.sources.data), 0)
	testutil.AssertEqual(t, len(h.audit.entries), 0)
	testutil.AssertEqual(t, len(h.counter), 0)
	testutil.AssertEqual(t, h.outcomes.rollback, []string{"rolled_back"})
}

func TestAdmitRollbackFailureIsLoggedAndOriginalErrorSurfaced(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	prev := logger.SetGlobal(logger.NewWithZap(zap.New(core)))
	defer logger.SetGlobal(prev)

	h := newHarness(t)
	h.grader.gradeErr = errors.New("broker unavailable")
	h.records.failRunDelete = 1

	_, err := h.c.Admit(context.Background(), admission.Input{Decision: contestDecision(), Language: "py3", Source: "x"})
	testutil.AssertEqual(t, appErr.GetCode(err), appErr.JudgeSystemError)
	testutil.AssertTrue(t, errors.Is(err, h.grader.gradeErr), "dispatch error should be surfaced, not the rollback error")

	entries := logs.FilterMessage("rollback of undispatched submission failed, records orphaned").All()
	testutil.AssertEqual(t, len(entries), 1)
	testutil.AssertEqual(t, entries[0].ContextMap()["failed_step"], "delete_run")
	testutil.AssertEqual(t, len(h.records.runs), 1)
	testutil.AssertEqual(t, len(h.records.submissions), 1)
	testutil.AssertEqual(t, h.outcomes.rollback, []string{"failed"})
}

func TestAdmitSourceFailure(t *testing.T) {
	h := newHarness(t)
	h.sources.putErr = errors.New("bucket missing")

	_, err := h.c.Admit(context.Background(), admission.Input{Decision: practiceDecision(), Language: "py3", Source: "x"})
	testutil.AssertEqual(t, appErr.GetCode(err), appErr.SubmissionCreateFailed)
	testutil.AssertEqual(t, len(h.records.submissions), 0)
}

func TestAdmitBookkeepingFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.audit.err = errors.New("log table locked")

	res, err := h.c.Admit(context.Background(), admission.Input{Decision: practiceDecision(), Language: "py3", Source: "x"})
	testutil.AssertNil(t, err)
	testutil.AssertNotNil(t, res)
	testutil.AssertEqual(t, h.counter[3], 1)
}

func seedRun(h *harness, status model.Status) (*model.Submission, *model.Run) {
	runID := int64(900)
	sub := &model.Submission{SubmissionID: 800, GUID: "g", CurrentRunID: &runID, Type: model.SubmissionNormal}
	run := &model.Run{RunID: runID, SubmissionID: 800, Status: status, Verdict: model.VerdictAccepted}
	h.records.submissions[sub.SubmissionID] = *sub
	h.records.runs[run.RunID] = *run
	return sub, run
}

func TestRejudge(t *testing.T) {
	t.Run("editor resets ready run", func(t *testing.T) {
		h := newHarness(t)
		sub, run := seedRun(h, model.StatusReady)

		err := h.c.Rejudge(context.Background(), model.Identity{IdentityID: 7}, sub, run, "sumas", true)
		testutil.AssertNil(t, err)
		testutil.AssertEqual(t, h.records.runs[900].Status, model.StatusNew)
		testutil.AssertEqual(t, h.grader.rejudged, [][]int64{{900}})
		testutil.AssertEqual(t, h.aggregates.invalidated, []string{model.RunDetailsKey(900), model.ProblemStatsKey("sumas"), model.ProblemsSolvedRankKey})
	})

	t.Run("run in new status is a no-op", func(t *testing.T) {
		h := newHarness(t)
		sub, run := seedRun(h, model.StatusNew)

		err := h.c.Rejudge(context.Background(), model.Identity{IdentityID: 7}, sub, run, "sumas", false)
		testutil.AssertNil(t, err)
		testutil.AssertEqual(t, h.records.resets, 0)
		testutil.AssertEqual(t, len(h.grader.rejudged), 0)
	})

	t.Run("grader failure still invalidates", func(t *testing.T) {
		h := newHarness(t)
		h.grader.rejudgeErr = errors.New("timeout")
		sub, run := seedRun(h, model.StatusReady)

		err := h.c.Rejudge(context.Background(), model.Identity{IdentityID: 1, Sysadmin: true}, sub, run, "sumas", false)
		testutil.AssertNil(t, err)
		testutil.AssertEqual(t, len(h.aggregates.invalidated), 3)
	})

	t.Run("non editor is refused", func(t *testing.T) {
		h := newHarness(t)
		sub, run := seedRun(h, model.StatusReady)

		err := h.c.Rejudge(context.Background(), model.Identity{IdentityID: 8}, sub, run, "sumas", false)
		testutil.AssertRefusal(t, err, appErr.Forbidden, appErr.ReasonUserNotAllowed)
		testutil.AssertEqual(t, h.records.runs[900].Status, model.StatusReady)
	})
}

func TestDisqualify(t *testing.T) {
	h := newHarness(t)
	sub, run := seedRun(h, model.StatusReady)

	err := h.c.Disqualify(context.Background(), model.Identity{IdentityID: 8}, sub)
	testutil.AssertRefusal(t, err, appErr.Forbidden, appErr.ReasonUserNotAllowed)

	err = h.c.Disqualify(context.Background(), model.Identity{IdentityID: 7}, sub)
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, h.records.submissions[800].Disqualified, "submission should be disqualified")
	testutil.AssertEqual(t, h.records.runs[900].Verdict, run.Verdict)
	testutil.AssertEqual(t, h.aggregates.invalidated, []string{model.ProblemsSolvedRankKey})
}
