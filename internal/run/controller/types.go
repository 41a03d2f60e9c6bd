package controller

import "judgegate/internal/run/service"

// CreateRequest is the body of a submission request.
type CreateRequest struct {
	ProblemAlias string `json:"problem_alias" binding:"required"`
	Language     string `json:"language" binding:"required"`
	Source       string `json:"source" binding:"required"`
	ProblemsetID *int64 `json:"problemset_id"`
	ContestAlias string `json:"contest_alias"`
}

// CreateResponse is returned for an admitted submission. Timestamps are unix
// seconds; a zero deadline means there is none.
type CreateResponse struct {
	GUID                    string `json:"guid"`
	SubmitDelay             int    `json:"submit_delay"`
	SubmissionDeadline      int64  `json:"submission_deadline"`
	NextSubmissionTimestamp int64  `json:"nextSubmissionTimestamp"`
}

// StatusResponse acknowledges an edit.
type StatusResponse struct {
	Status string `json:"status"`
}

// ListRequest holds the run list query parameters.
type ListRequest struct {
	Status       string `form:"status"`
	Verdict      string `form:"verdict"`
	Language     string `form:"language"`
	ProblemAlias string `form:"problem_alias"`
	Username     string `form:"username"`
	Offset       int    `form:"offset"`
	Rowcount     int    `form:"rowcount"`
}

// ListResponse wraps the run list.
type ListResponse struct {
	Runs []service.RunSummary `json:"runs"`
}
