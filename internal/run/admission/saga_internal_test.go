package admission

import (
	"context"
	"errors"
	"testing"
)

func TestSagaHappyPath(t *testing.T) {
	s := newDispatchSaga()
	if err := s.transition(StateDispatched); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := s.transition(StateConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := s.transition(StateDispatchFailed); err == nil {
		t.Fatal("confirmed saga must not fail afterwards")
	}
}

func TestSagaCompensatesInOrderAndResumes(t *testing.T) {
	var order []string
	attempts := 0
	s := newDispatchSaga()
	s.onRollback("clear_current_run", func(ctx context.Context) error {
		order = append(order, "clear")
		return nil
	})
	s.onRollback("delete_run", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("lock wait timeout")
		}
		order = append(order, "run")
		return nil
	})
	s.onRollback("delete_submission", func(ctx context.Context) error {
		order = append(order, "submission")
		return nil
	})

	if err := s.compensate(context.Background()); err == nil {
		t.Fatal("compensate before dispatch failure should be rejected")
	}
	if err := s.transition(StateDispatchFailed); err != nil {
		t.Fatalf("fail: %v", err)
	}

	err := s.compensate(context.Background())
	var compErr *CompensationError
	if !errors.As(err, &compErr) || compErr.Step != "delete_run" {
		t.Fatalf("expected delete_run compensation error, got %v", err)
	}
	if s.State() != StateRollbackFailed {
		t.Fatalf("state = %s", s.State())
	}

	if err := s.compensate(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.State() != StateRolledBack {
		t.Fatalf("state = %s", s.State())
	}
	want := []string{"clear", "run", "submission"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
