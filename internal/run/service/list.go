package service

import (
	"context"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/run/model"
	"judgegate/internal/run/repository"
	appErr "judgegate/pkg/errors"
	pkgrepo "judgegate/pkg/repository"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
)

// ListInput filters the administrative run list. Empty fields do not filter.
type ListInput struct {
	Status       string
	Verdict      string
	Language     string
	ProblemAlias string
	Username     string
	Offset       int
	Rowcount     int
}

// RunSummary is one row of the administrative run list.
type RunSummary struct {
	GUID         string               `json:"guid"`
	ProblemAlias string               `json:"alias"`
	Username     string               `json:"username"`
	ContestAlias *string              `json:"contest_alias"`
	Language     string               `json:"language"`
	Status       model.Status         `json:"status"`
	Verdict      model.Verdict        `json:"verdict"`
	Runtime      int64                `json:"runtime"`
	Penalty      int                  `json:"penalty"`
	Memory       int64                `json:"memory"`
	Score        float64              `json:"score"`
	ContestScore *float64             `json:"contest_score"`
	SubmitDelay  int                  `json:"submit_delay"`
	Type         model.SubmissionType `json:"type"`
	Disqualified bool                 `json:"disqualified"`
	Time         time.Time            `json:"time"`
}

// List returns the newest runs matching in. System administrators only.
func (s *RunService) List(ctx context.Context, viewer model.Identity, in ListInput) ([]RunSummary, error) {
	if !viewer.Sysadmin {
		return nil, s.refused(appErr.Refuse(appErr.Forbidden, appErr.ReasonUserNotAllowed))
	}
	filter, err := s.buildFilter(ctx, in)
	if err != nil {
		return nil, s.refused(err)
	}
	opts := pkgrepo.ListOptions{Offset: in.Offset, Limit: in.Rowcount}
	if err := opts.Normalize(); err != nil {
		return nil, s.refused(appErr.InvalidParameter("offset", appErr.ReasonParameterInvalid).WithDetail("error", err.Error()))
	}

	dbCtx := withTimeout(ctx, s.timeouts.DB)
	defer dbCtx.cancel()
	rows, err := s.runs.List(dbCtx.ctx, filter, opts)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list runs failed")
	}

	out := make([]RunSummary, 0, len(rows))
	for _, row := range rows {
		summary := RunSummary{
			GUID:         row.Submission.GUID,
			ProblemAlias: row.ProblemAlias,
			Username:     row.Username,
			ContestAlias: row.ContestAlias,
			Language:     row.Submission.Language,
			Status:       row.Run.Status,
			Verdict:      row.Run.Verdict,
			Runtime:      row.Run.Runtime,
			Penalty:      row.Run.Penalty,
			Memory:       row.Run.Memory,
			Score:        model.DisplayScore(row.Run.Score),
			SubmitDelay:  row.Submission.SubmitDelay,
			Type:         row.Submission.Type,
			Disqualified: row.Submission.Disqualified,
			Time:         row.Submission.Time,
		}
		if row.Run.ContestScore != nil {
			cs := model.DisplayContestScore(*row.Run.ContestScore)
			summary.ContestScore = &cs
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *RunService) buildFilter(ctx context.Context, in ListInput) (repository.RunFilter, error) {
	var filter repository.RunFilter
	if in.Status != "" {
		status, ok := model.ParseStatus(in.Status)
		if !ok {
			return filter, appErr.InvalidParameter("status", appErr.ReasonParameterInvalid)
		}
		filter.Status = status
	}
	if in.Verdict != "" {
		verdict, ok := model.ParseVerdict(in.Verdict)
		if !ok {
			return filter, appErr.InvalidParameter("verdict", appErr.ReasonParameterInvalid)
		}
		filter.Verdict = verdict
	}
	if in.Language != "" {
		if !model.ContainsLanguage(model.SupportedLanguages, in.Language) {
			return filter, appErr.InvalidParameter("language", appErr.ReasonParameterInvalid)
		}
		filter.Language = in.Language
	}

	dbCtx := withTimeout(ctx, s.timeouts.DB)
	defer dbCtx.cancel()
	if in.ProblemAlias != "" {
		problem, err := s.problems.GetByAlias(dbCtx.ctx, in.ProblemAlias)
		if err != nil {
			if pkgrepo.IsNotFoundError(err) {
				return filter, appErr.Refuse(appErr.ProblemNotFound, appErr.ReasonProblemNotFound)
			}
			return filter, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
		}
		id := problem.ProblemID
		filter.ProblemID = &id
	}
	if in.Username != "" {
		identity, err := s.identities.GetByUsername(dbCtx.ctx, in.Username)
		switch {
		case err == nil:
			id := identity.IdentityID
			filter.IdentityID = &id
		case pkgrepo.IsNotFoundError(err):
			logger.Debug(ctx, "ignoring unknown username filter", zap.String("username", in.Username))
		default:
			return filter, appErr.Wrapf(err, appErr.DatabaseError, "load identity failed")
		}
	}
	return filter, nil
}

// Counts is the daily number of runs and accepted runs.
type Counts struct {
	Total map[string]int64 `json:"total"`
	AC    map[string]int64 `json:"ac"`
}

// Counts returns the daily run counts of the most recent days.
func (s *RunService) Counts(ctx context.Context) (*Counts, error) {
	cacheCtx := withTimeout(ctx, s.timeouts.Cache)
	defer cacheCtx.cancel()
	rows, err := cache.GetOrComputeJSON(cacheCtx.ctx, s.aggregates, model.RunCountsKey, s.countsTTL,
		func(ctx context.Context) ([]model.RunCount, error) {
			return s.runs.DailyCounts(ctx, s.countsDays)
		})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load run counts failed")
	}
	counts := &Counts{Total: make(map[string]int64, len(rows)), AC: make(map[string]int64, len(rows))}
	for _, row := range rows {
		counts.Total[row.Date] = row.Total
		counts.AC[row.Date] = row.ACCount
	}
	return counts, nil
}
