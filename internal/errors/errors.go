// Package errors defines the error taxonomy used across ltq.
//
// It mirrors the teacher's internal/errors contract (referenced from
// internal/base/base.go as errors.E(errors.Code, msg)): a small typed error
// with a Code, constructed through a single E function.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error so callers can branch on failure kind without
// string matching.
type Code int

const (
	Unspecified Code = iota
	// FailedPrecondition indicates the operation is not allowed in the
	// current state (e.g. registering a task after the worker has started).
	FailedPrecondition
	// InvalidArgument indicates a malformed configuration value, such as a
	// max_rate string that does not match the "N/u" grammar.
	InvalidArgument
	// NotFound indicates a task name, queue, or registry entry was not
	// registered.
	NotFound
	// Unavailable indicates the broker could not be reached.
	Unavailable
	// Internal indicates an unexpected, non-user-facing failure.
	Internal
)

func (c Code) String() string {
	switch c {
	case FailedPrecondition:
		return "failed_precondition"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal"
	default:
		return "unspecified"
	}
}

// Error is ltq's typed error. It carries a Code plus a message and
// optionally wraps an underlying error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error. The final argument may be an error to wrap; all
// other arguments are formatted as the message, asynq-style.
func E(code Code, args ...interface{}) *Error {
	e := &Error{Code: code}
	for _, a := range args {
		switch v := a.(type) {
		case string:
			e.Message += v
		case error:
			e.Err = v
		default:
			e.Message += fmt.Sprint(v)
		}
	}
	return e
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, and
// Unspecified otherwise.
func CodeOf(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return Unspecified
}

// As is a thin re-export so callers of this package don't need a separate
// import of the standard errors package just to unwrap ltq errors.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
