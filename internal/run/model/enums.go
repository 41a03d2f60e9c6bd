package model

// Status is the position of a run in the grading pipeline.
type Status string

const (
	StatusNew       Status = "new"
	StatusWaiting   Status = "waiting"
	StatusCompiling Status = "compiling"
	StatusRunning   Status = "running"
	StatusReady     Status = "ready"
)

var statuses = []Status{StatusNew, StatusWaiting, StatusCompiling, StatusRunning, StatusReady}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// InQueue reports whether the run is still waiting to be picked by a grader.
// A rejudge request on such a run is a no-op.
func (s Status) InQueue() bool {
	return s == StatusNew || s == StatusWaiting
}

// SubmissionType separates official submissions from administrator test runs.
type SubmissionType string

const (
	SubmissionNormal SubmissionType = "normal"
	SubmissionTest   SubmissionType = "test"
)

// PenaltyPolicy selects the basis used to compute a submission's time penalty.
type PenaltyPolicy string

const (
	PenaltyContestStart PenaltyPolicy = "contest_start"
	PenaltyProblemOpen  PenaltyPolicy = "problem_open"
	PenaltyNone         PenaltyPolicy = "none"
	PenaltyRuntime      PenaltyPolicy = "runtime"
)

// FeedbackMode is how much grading detail a contest exposes while running.
// Its values double as disclosure tiers.
type FeedbackMode string

const (
	FeedbackNone     FeedbackMode = "none"
	FeedbackSummary  FeedbackMode = "summary"
	FeedbackDetailed FeedbackMode = "detailed"
)

// ShowDiff controls exposure of test case contents.
type ShowDiff string

const (
	ShowDiffNone     ShowDiff = "none"
	ShowDiffExamples ShowDiff = "examples"
	ShowDiffAll      ShowDiff = "all"
)

// ProblemVisibility mirrors the stored visibility level of a problem.
type ProblemVisibility int

const (
	VisibilityPrivateBanned ProblemVisibility = -2
	VisibilityPublicBanned  ProblemVisibility = -1
	VisibilityPrivate       ProblemVisibility = 0
	VisibilityPublic        ProblemVisibility = 1
	VisibilityPromoted      ProblemVisibility = 2
)

// Banned reports whether the problem was banned publicly or privately.
func (v ProblemVisibility) Banned() bool {
	return v == VisibilityPrivateBanned || v == VisibilityPublicBanned
}

// Public reports whether anyone may see the problem.
func (v ProblemVisibility) Public() bool {
	return v >= VisibilityPublic
}

// ContainerKind identifies what owns a problemset.
type ContainerKind string

const (
	ContainerContest    ContainerKind = "contest"
	ContainerAssignment ContainerKind = "assignment"
	ContainerInterview  ContainerKind = "interview"
)
