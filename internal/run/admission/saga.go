package admission

import (
	"context"
	"fmt"
)

// SagaState is a state of the create-then-dispatch protocol.
type SagaState string

const (
	StateCreated        SagaState = "created"
	StateDispatched     SagaState = "dispatched"
	StateConfirmed      SagaState = "confirmed"
	StateDispatchFailed SagaState = "dispatch_failed"
	StateRolledBack     SagaState = "rolled_back"
	StateRollbackFailed SagaState = "rollback_failed"
)

var sagaTransitions = map[SagaState][]SagaState{
	StateCreated:        {StateDispatched, StateDispatchFailed},
	StateDispatched:     {StateConfirmed},
	StateDispatchFailed: {StateRolledBack, StateRollbackFailed},
	StateRollbackFailed: {StateRolledBack, StateRollbackFailed},
}

// compensation undoes one step of the admission. Steps must be idempotent.
type compensation struct {
	name string
	undo func(ctx context.Context) error
	done bool
}

// CompensationError reports the compensation step that could not be applied.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation %q failed: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// dispatchSaga tracks one admission after its records were committed.
type dispatchSaga struct {
	state SagaState
	steps []*compensation
}

func newDispatchSaga() *dispatchSaga {
	return &dispatchSaga{state: StateCreated}
}

// State returns the current state.
func (s *dispatchSaga) State() SagaState {
	return s.state
}

func (s *dispatchSaga) transition(to SagaState) error {
	for _, allowed := range sagaTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid saga transition %s -> %s", s.state, to)
}

// onRollback registers a compensation. Compensations run in registration order.
func (s *dispatchSaga) onRollback(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, &compensation{name: name, undo: undo})
}

// compensate applies the pending compensations in order and stops at the
// first failure, since later steps depend on earlier ones. Calling it again
// resumes from the failed step.
func (s *dispatchSaga) compensate(ctx context.Context) error {
	if s.state != StateDispatchFailed && s.state != StateRollbackFailed {
		return fmt.Errorf("cannot compensate from state %s", s.state)
	}
	for _, step := range s.steps {
		if step.done {
			continue
		}
		if err := step.undo(ctx); err != nil {
			_ = s.transition(StateRollbackFailed)
			return &CompensationError{Step: step.name, Err: err}
		}
		step.done = true
	}
	return s.transition(StateRolledBack)
}
