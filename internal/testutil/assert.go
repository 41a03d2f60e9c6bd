package testutil

import (
	"encoding/json"
	"reflect"
	"testing"

	pkgerrors "judgegate/pkg/errors"
)

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNil checks if a value is nil, including typed nil pointers
func AssertNil(t *testing.T, value interface{}) {
	t.Helper()
	if !isNil(value) {
		t.Errorf("expected nil, got %v", value)
	}
}

// AssertNotNil checks if a value is not nil
func AssertNotNil(t *testing.T, value interface{}) {
	t.Helper()
	if isNil(value) {
		t.Error("expected non-nil value, got nil")
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse checks if a condition is false
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertRefusal checks that err carries the given code and reason.
func AssertRefusal(t *testing.T, err error, code pkgerrors.ErrorCode, reason pkgerrors.Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected refusal %d/%s, got nil", code, reason)
	}
	if got := pkgerrors.GetCode(err); got != code {
		t.Errorf("code = %d, want %d (%v)", got, code, err)
	}
	if got := pkgerrors.GetReason(err); got != reason {
		t.Errorf("reason = %q, want %q", got, reason)
	}
}

// MustUnmarshalJSON unmarshals JSON data or fails the test
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
