// Package errors provides error handling for hookwatch.
//
// It re-exports github.com/cockroachdb/errors so call sites get stack
// traces, wrapping, and errors.Is/As without importing two packages.
//
// Usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New       = crdb.New
	Newf      = crdb.Newf
	Wrap      = crdb.Wrap
	Wrapf     = crdb.Wrapf
	WithStack = crdb.WithStack
)

// Error inspection
var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors shared across hookwatch packages.
// Use with errors.Is() for type-safe checking; wrap with errors.Wrap()
// to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")

	// ErrJobInactive indicates an execution was requested for a job that
	// is disabled or expired
	ErrJobInactive = New("job inactive")

	// ErrNotLeader indicates a scheduler operation was attempted by a
	// process that does not hold the leadership lock
	ErrNotLeader = New("not scheduling leader")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequest checks if an error is or wraps ErrInvalidRequest.
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
