package model

import "time"

// Identity is the acting principal of a request.
type Identity struct {
	IdentityID int64
	UserID     *int64
	Username   string
	Sysadmin   bool
}

// Problem is the subset of problem metadata the run service reads.
type Problem struct {
	ProblemID      int64
	AclID          int64
	Alias          string
	Visibility     ProblemVisibility
	Deprecated     bool
	Languages      []string
	ShowDiff       ShowDiff
	CurrentVersion string
	Commit         string
	Submissions    int64
}

// Problemset is a generic container of problems.
type Problemset struct {
	ProblemsetID int64
	AclID        int64
	Type         ContainerKind
	ContestID    *int64
	AssignmentID *int64
	InterviewID  *int64
	// Languages restricts submissions when non-nil.
	Languages []string
}

// Contest is a timed problemset container.
type Contest struct {
	ContestID      int64
	ProblemsetID   int64
	AclID          int64
	Alias          string
	StartTime      time.Time
	FinishTime     time.Time
	PenaltyType    PenaltyPolicy
	SubmissionsGap time.Duration
	PartialScore   bool
	Feedback       FeedbackMode
	// RerunID is non-zero for virtual contests replaying another contest.
	RerunID   int64
	Languages []string
}

// IsVirtual reports whether the contest replays another one.
func (c *Contest) IsVirtual() bool {
	return c != nil && c.RerunID != 0
}

// Assignment is a course problemset container.
type Assignment struct {
	AssignmentID int64
	ProblemsetID int64
	Alias        string
	StartTime    time.Time
	FinishTime   *time.Time
}

// Interview is a problemset container without a global window.
type Interview struct {
	InterviewID  int64
	ProblemsetID int64
	Alias        string
}

// ProblemsetContainer is the owning record of a problemset; exactly one field is set.
type ProblemsetContainer struct {
	Contest    *Contest
	Assignment *Assignment
	Interview  *Interview
}

// ProblemsetIdentity records that an identity has access to a problemset and
// optionally a personal end time.
type ProblemsetIdentity struct {
	IdentityID   int64
	ProblemsetID int64
	AccessTime   *time.Time
	EndTime      *time.Time
}

// Submission is the externally addressable record of a code upload.
type Submission struct {
	SubmissionID int64
	GUID         string
	IdentityID   int64
	ProblemID    int64
	ProblemsetID *int64
	Language     string
	Time         time.Time
	SubmitDelay  int
	Type         SubmissionType
	Disqualified bool
	CurrentRunID *int64
}

// Run is one grading attempt of a submission.
type Run struct {
	RunID        int64
	SubmissionID int64
	Version      string
	Commit       string
	Status       Status
	Verdict      Verdict
	Runtime      int64
	Penalty      int
	Memory       int64
	Score        float64
	ContestScore *float64
	Time         time.Time
	JudgedBy     *string
}

// SubmissionLog is the audit entry appended after a successful admission.
type SubmissionLog struct {
	UserID       *int64
	IdentityID   int64
	SubmissionID int64
	ProblemsetID *int64
	IP           string
	Time         time.Time
}

// RunCount is a daily submission counter row.
type RunCount struct {
	Date    string
	Total   int64
	ACCount int64
}
