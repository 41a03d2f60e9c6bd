package disclosure

import (
	"context"
	"io"
	"time"

	"judgegate/internal/run/model"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
)

// StatusView is the run summary returned by status.
type StatusView struct {
	GUID         string               `json:"guid"`
	ProblemAlias string               `json:"alias"`
	Language     string               `json:"language"`
	Status       model.Status         `json:"status"`
	Verdict      model.Verdict        `json:"verdict"`
	Runtime      int64                `json:"runtime"`
	Memory       int64                `json:"memory"`
	Penalty      int                  `json:"penalty"`
	SubmitDelay  int                  `json:"submit_delay"`
	Score        float64              `json:"score"`
	ContestScore *float64             `json:"contest_score"`
	Time         time.Time            `json:"time"`
	Type         model.SubmissionType `json:"type"`
	Disqualified bool                 `json:"disqualified"`
	Username     string               `json:"username,omitempty"`
}

// Status returns the run summary.
func (p *Policy) Status(ctx context.Context, viewer model.Identity, s Subject) (*StatusView, error) {
	if err := p.authorizeView(ctx, viewer, s); err != nil {
		return nil, err
	}
	run := s.Run
	view := &StatusView{
		GUID:         s.Submission.GUID,
		ProblemAlias: s.Problem.Alias,
		Language:     s.Submission.Language,
		Status:       run.Status,
		Verdict:      run.Verdict,
		Runtime:      run.Runtime,
		Memory:       run.Memory,
		Penalty:      run.Penalty,
		SubmitDelay:  s.Submission.SubmitDelay,
		Score:        model.DisplayScore(run.Score),
		Time:         s.Submission.Time,
		Type:         s.Submission.Type,
		Disqualified: s.Submission.Disqualified,
	}
	if run.ContestScore != nil {
		cs := model.DisplayContestScore(*run.ContestScore)
		view.ContestScore = &cs
	}
	if zeroesScore(s.Contest, run.Score) {
		zero := 0.0
		view.Score = 0
		if view.ContestScore != nil {
			view.ContestScore = &zero
		}
	}
	if viewer.IdentityID == s.Submission.IdentityID {
		view.Username = s.Username
	}
	return view, nil
}

// DetailsView is the disclosed detail of a run.
type DetailsView struct {
	GUID         string                        `json:"guid"`
	ProblemAlias string                        `json:"alias"`
	Language     string                        `json:"language"`
	Admin        bool                          `json:"admin"`
	Feedback     model.FeedbackMode            `json:"feedback"`
	Source       string                        `json:"source"`
	CompileError *string                       `json:"compile_error,omitempty"`
	Details      *model.RunDetails             `json:"details,omitempty"`
	Logs         string                        `json:"logs,omitempty"`
	JudgedBy     string                        `json:"judged_by,omitempty"`
	ShowDiff     model.ShowDiff                `json:"show_diff"`
	Cases        map[string]model.CaseContents `json:"cases"`
}

// Details returns the run detail redacted for viewer.
func (p *Policy) Details(ctx context.Context, viewer model.Identity, s Subject) (*DetailsView, error) {
	if s.Run.Commit == "" || s.Run.Version == "" {
		return nil, appErr.Refuse(appErr.SubmissionNotFound, appErr.ReasonRunNotFound)
	}
	if err := p.authorizeView(ctx, viewer, s); err != nil {
		return nil, err
	}
	admin, err := p.isProblemAdmin(ctx, viewer, s.Problem)
	if err != nil {
		return nil, err
	}
	tier := model.FeedbackDetailed
	if !admin {
		if tier, err = p.Tier(ctx, viewer, s); err != nil {
			return nil, err
		}
	}

	view := &DetailsView{
		GUID:         s.Submission.GUID,
		ProblemAlias: s.Problem.Alias,
		Language:     s.Submission.Language,
		Admin:        admin,
		Feedback:     tier,
		Source:       p.source(ctx, s.Submission.GUID),
		ShowDiff:     model.ShowDiffNone,
		Cases:        map[string]model.CaseContents{},
	}

	showDetails := tier != model.FeedbackNone
	if showDetails || s.Run.Verdict == model.VerdictCompileError {
		if details, ok := p.runDetails(ctx, s.Run); ok {
			view.CompileError = details.CompileError
			if zeroesScore(s.Contest, s.Run.Score) {
				details.Score = 0
				details.ContestScore = 0
			}
			details.Score = model.DisplayScore(details.Score)
			details.ContestScore = model.DisplayContestScore(details.ContestScore)
			if !admin || p.cfg.Lockdown {
				details.JudgedBy = ""
			}
			if showDetails && !p.cfg.Lockdown {
				if tier == model.FeedbackSummary && s.Contest != nil && s.Contest.Feedback == model.FeedbackSummary {
					details.SummarizeGroups()
				}
				view.Details = details
			}
		}
	}

	if admin && !p.cfg.Lockdown {
		if logs, ok := p.gradingLogs(ctx, s.Run.RunID); ok {
			view.Logs = logs
		}
		if s.Run.JudgedBy != nil {
			view.JudgedBy = *s.Run.JudgedBy
		}
	}

	if showDetails {
		p.discloseCases(ctx, s, view)
	}
	return view, nil
}

// discloseCases fills the case contents allowed by the problem's diff
// setting. Any failure leaves the diff tier at none.
func (p *Policy) discloseCases(ctx context.Context, s Subject, view *DetailsView) {
	setting := s.Problem.ShowDiff
	if setting == model.ShowDiffNone || setting == "" {
		return
	}
	revision := s.Run.Commit
	size, err := p.cases.TotalSize(ctx, s.Problem.Alias, revision, casesDirectory, examplesDirectory)
	if err != nil {
		logger.Warn(ctx, "list case files failed", zap.String("problem", s.Problem.Alias), zap.Error(err))
		return
	}
	if size > p.cfg.DiffSizeCeiling {
		return
	}

	directory := examplesDirectory
	if setting == model.ShowDiffAll {
		directory = casesDirectory
	}
	contents, err := p.cases.ReadCaseContents(ctx, s.Problem.Alias, revision, directory)
	if err != nil {
		logger.Warn(ctx, "read case contents failed", zap.String("problem", s.Problem.Alias), zap.Error(err))
		return
	}
	view.Cases = contents
	view.ShowDiff = setting
}

// SourceView is the source of a run and its compile error, if any.
type SourceView struct {
	Source       string  `json:"source"`
	CompileError *string `json:"compile_error,omitempty"`
}

// Source returns the submitted source code.
func (p *Policy) Source(ctx context.Context, viewer model.Identity, s Subject) (*SourceView, error) {
	if err := p.authorizeView(ctx, viewer, s); err != nil {
		return nil, err
	}
	view := &SourceView{Source: p.source(ctx, s.Submission.GUID)}
	if s.Run.Verdict == model.VerdictCompileError {
		if details, ok := p.runDetails(ctx, s.Run); ok {
			view.CompileError = details.CompileError
		}
	}
	return view, nil
}

// Download is a packaged run result archive.
type Download struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// Download opens the result archive of a run. Problem admins may always
// download; with showDiff any viewer of the run may.
func (p *Policy) Download(ctx context.Context, viewer model.Identity, s Subject, showDiff bool) (*Download, error) {
	if p.cfg.Lockdown {
		return nil, appErr.Refuse(appErr.Lockdown, appErr.ReasonLockdown)
	}
	if showDiff {
		if err := p.authorizeView(ctx, viewer, s); err != nil {
			return nil, err
		}
	} else {
		admin, err := p.isProblemAdmin(ctx, viewer, s.Problem)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, appErr.Refuse(appErr.Forbidden, appErr.ReasonUserNotAllowed)
		}
	}

	body, ok := p.resources.Open(ctx, s.Run.RunID, filesFile)
	if !ok {
		return nil, appErr.Refuse(appErr.NotFound, appErr.ReasonRunNotFound)
	}
	return &Download{
		Filename:    s.Submission.GUID + ".zip",
		ContentType: "application/zip",
		Body:        body,
	}, nil
}
