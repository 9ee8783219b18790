// Package errors provides coded domain errors. Services return these so
// transport can map outcomes to HTTP statuses and callers can branch on the
// code instead of matching error strings.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeBadRequest marks a caller precondition violation. No retry, no
	// state change.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing entity (device, key, receipt).
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness or state-machine violation
	// (day already open, key already exists, duplicate global number).
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks a failed or missing authentication.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnavailable marks a dependency that could not be reached. The
	// local operation may still have partially succeeded in a degraded mode.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything the caller cannot fix.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and a human-readable message.
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

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for plain
// errors so transport never leaks raw internals as client faults.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
