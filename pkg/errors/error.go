package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error is an API error. Refusals carry a Reason the client can switch on;
// failures carry the underlying Err and a Stack for the logs.
type Error struct {
	Code    ErrorCode
	Message string
	Reason  Reason
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRefusal reports whether the error declines a request rather than reports a failure.
func (e *Error) IsRefusal() bool {
	return e.Reason != ReasonNone
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
		Details: make(map[string]interface{}),
		Stack:   callers(3),
	}
}

// New creates an error carrying the default message of code.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil)
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. An *Error already in the chain keeps its
// reason and details under the new code.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e := asError(err); e != nil {
		wrapped := *e
		wrapped.Code = code
		wrapped.Err = err
		return &wrapped
	}
	return newError(code, err.Error(), err)
}

// Wrapf wraps err with code and a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

// WithMessage replaces the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithReason attaches a machine-readable refusal cause.
func (e *Error) WithReason(reason Reason) *Error {
	e.Reason = reason
	return e
}

// WithDetail adds a key-value detail.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func asError(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

// GetCode extracts the code of the first *Error in the chain, InternalServerError otherwise.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e := asError(err); e != nil {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the first *Error in the chain, wrapping foreign errors as internal.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e := asError(err); e != nil {
		return e
	}
	return newError(InternalServerError, err.Error(), err)
}

// Is reports whether the chain holds an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	e := asError(err)
	return e != nil && e.Code == code
}

func callers(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var builder strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&builder, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// Refuse creates a refusal with the given code and reason.
func Refuse(code ErrorCode, reason Reason) *Error {
	return newError(code, code.Message(), nil).WithReason(reason)
}

// NotAllowed refuses a submission.
func NotAllowed(reason Reason) *Error {
	return newError(NotAllowedToSubmit, NotAllowedToSubmit.Message(), nil).WithReason(reason)
}

// InvalidParameter refuses a request naming the offending field.
func InvalidParameter(field string, reason Reason) *Error {
	return newError(InvalidParams, InvalidParams.Message(), nil).WithReason(reason).WithDetail("parameter", field)
}

// BadRequest creates an invalid parameters error with msg.
func BadRequest(msg string) *Error {
	return newError(InvalidParams, msg, nil)
}

// UnauthorizedError creates an unauthorized error, with the default message when msg is empty.
func UnauthorizedError(msg string) *Error {
	if msg == "" {
		msg = Unauthorized.Message()
	}
	return newError(Unauthorized, msg, nil)
}

// InternalError wraps err as an internal server error.
func InternalError(err error) *Error {
	if err == nil {
		return New(InternalServerError)
	}
	return Wrap(err, InternalServerError)
}
