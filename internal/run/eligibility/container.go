package eligibility

import (
	"fmt"
	"time"

	"judgegate/internal/run/model"
)

// Container is the owner of a problemset. The timing rules differ per kind
// but the validator only goes through this interface.
type Container interface {
	Kind() model.ContainerKind
	ProblemsetID() int64
	StartTime() time.Time
	// FinishTime is the global end of the container, nil when it has none.
	FinishTime() *time.Time
	Languages() []string
	// IsLateSubmission reports whether now is past the hard end applying to
	// the identity. Nobody may submit once this is true.
	IsLateSubmission(pi *model.ProblemsetIdentity, now time.Time) bool
	// IsSubmissionWindowOpen reports whether a regular participant may submit now.
	IsSubmissionWindowOpen(pi *model.ProblemsetIdentity, now time.Time) bool
	// SubmissionGap is the minimum interval between submissions to the same problem.
	SubmissionGap(fallback time.Duration) time.Duration
	// Contest returns the underlying contest, nil for other kinds.
	Contest() *model.Contest
}

// NewContainer wraps a stored container record.
func NewContainer(record *model.ProblemsetContainer) (Container, error) {
	switch {
	case record == nil:
		return nil, fmt.Errorf("nil problemset container")
	case record.Contest != nil:
		return contestContainer{c: record.Contest}, nil
	case record.Assignment != nil:
		return assignmentContainer{a: record.Assignment}, nil
	case record.Interview != nil:
		return interviewContainer{i: record.Interview}, nil
	default:
		return nil, fmt.Errorf("empty problemset container")
	}
}

// SubmissionDeadline is the effective end of the submission window for an
// identity: its personal end time, else the container finish time, else zero.
func SubmissionDeadline(c Container, pi *model.ProblemsetIdentity) time.Time {
	if pi != nil && pi.EndTime != nil {
		return *pi.EndTime
	}
	if c != nil {
		if finish := c.FinishTime(); finish != nil {
			return *finish
		}
	}
	return time.Time{}
}

func personalEnd(pi *model.ProblemsetIdentity) *time.Time {
	if pi == nil {
		return nil
	}
	return pi.EndTime
}

type contestContainer struct {
	c *model.Contest
}

func (cc contestContainer) Kind() model.ContainerKind { return model.ContainerContest }
func (cc contestContainer) ProblemsetID() int64       { return cc.c.ProblemsetID }
func (cc contestContainer) StartTime() time.Time      { return cc.c.StartTime }
func (cc contestContainer) Languages() []string       { return cc.c.Languages }
func (cc contestContainer) Contest() *model.Contest   { return cc.c }

func (cc contestContainer) FinishTime() *time.Time {
	finish := cc.c.FinishTime
	return &finish
}

func (cc contestContainer) end(pi *model.ProblemsetIdentity) time.Time {
	if end := personalEnd(pi); end != nil {
		return *end
	}
	return cc.c.FinishTime
}

func (cc contestContainer) IsLateSubmission(pi *model.ProblemsetIdentity, now time.Time) bool {
	return now.After(cc.end(pi))
}

func (cc contestContainer) IsSubmissionWindowOpen(pi *model.ProblemsetIdentity, now time.Time) bool {
	return !now.Before(cc.c.StartTime) && !now.After(cc.end(pi))
}

func (cc contestContainer) SubmissionGap(fallback time.Duration) time.Duration {
	if cc.c.SubmissionsGap > 0 {
		return cc.c.SubmissionsGap
	}
	return fallback
}

type assignmentContainer struct {
	a *model.Assignment
}

func (ac assignmentContainer) Kind() model.ContainerKind { return model.ContainerAssignment }
func (ac assignmentContainer) ProblemsetID() int64       { return ac.a.ProblemsetID }
func (ac assignmentContainer) StartTime() time.Time      { return ac.a.StartTime }
func (ac assignmentContainer) FinishTime() *time.Time    { return ac.a.FinishTime }
func (ac assignmentContainer) Languages() []string       { return nil }
func (ac assignmentContainer) Contest() *model.Contest   { return nil }

func (ac assignmentContainer) SubmissionGap(fallback time.Duration) time.Duration {
	return fallback
}

func (ac assignmentContainer) IsLateSubmission(pi *model.ProblemsetIdentity, now time.Time) bool {
	return ac.a.FinishTime != nil && now.After(*ac.a.FinishTime)
}

func (ac assignmentContainer) IsSubmissionWindowOpen(pi *model.ProblemsetIdentity, now time.Time) bool {
	return !now.Before(ac.a.StartTime) && !ac.IsLateSubmission(pi, now)
}

// Interviews have no global window; each candidate gets a personal one.
type interviewContainer struct {
	i *model.Interview
}

func (ic interviewContainer) Kind() model.ContainerKind { return model.ContainerInterview }
func (ic interviewContainer) ProblemsetID() int64       { return ic.i.ProblemsetID }
func (ic interviewContainer) StartTime() time.Time      { return time.Time{} }
func (ic interviewContainer) FinishTime() *time.Time    { return nil }
func (ic interviewContainer) Languages() []string       { return nil }
func (ic interviewContainer) Contest() *model.Contest   { return nil }

func (ic interviewContainer) SubmissionGap(fallback time.Duration) time.Duration {
	return fallback
}

func (ic interviewContainer) IsLateSubmission(pi *model.ProblemsetIdentity, now time.Time) bool {
	end := personalEnd(pi)
	return end != nil && now.After(*end)
}

func (ic interviewContainer) IsSubmissionWindowOpen(pi *model.ProblemsetIdentity, now time.Time) bool {
	if pi != nil && pi.AccessTime != nil && now.Before(*pi.AccessTime) {
		return false
	}
	return !ic.IsLateSubmission(pi, now)
}
