// Package penalty computes the time penalty charged to a contest submission.
package penalty

import (
	"context"
	"errors"
	"time"

	"judgegate/internal/run/model"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
)

// ErrProblemNotOpened is returned for the problem_open policy when the
// identity never opened the problem. Callers must refuse the submission.
var ErrProblemNotOpened = errors.New("problem was never opened")

// Inputs are the timing facts a penalty depends on.
type Inputs struct {
	Policy        model.PenaltyPolicy
	ContestStart  time.Time
	ProblemOpened *time.Time
}

// Compute returns the penalty, in whole minutes, of a submission made at at.
func Compute(ctx context.Context, in Inputs, at time.Time) (int, error) {
	basis, ok, err := Basis(ctx, in)
	if err != nil || !ok {
		return 0, err
	}
	return Minutes(basis, at), nil
}

// Basis returns the instant the penalty is measured from. ok is false when the
// policy charges no time penalty.
func Basis(ctx context.Context, in Inputs) (basis time.Time, ok bool, err error) {
	switch in.Policy {
	case model.PenaltyContestStart:
		return in.ContestStart, true, nil
	case model.PenaltyProblemOpen:
		if in.ProblemOpened == nil {
			return time.Time{}, false, ErrProblemNotOpened
		}
		return *in.ProblemOpened, true, nil
	case model.PenaltyNone, model.PenaltyRuntime:
		return time.Time{}, false, nil
	default:
		logger.Warn(ctx, "unknown penalty policy, charging no penalty", zap.String("policy", string(in.Policy)))
		return time.Time{}, false, nil
	}
}

// Minutes returns the whole minutes elapsed from basis to at, never negative.
func Minutes(basis, at time.Time) int {
	elapsed := at.Sub(basis)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}
