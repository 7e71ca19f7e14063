// Package errors provides error handling for strata.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// It also defines the error taxonomy used across the scheduler and the
// versioned stores: configuration errors are fatal and never retried,
// storage errors propagate out of the database-backed layers, and
// anything else raised by a job body is contained at the dispatch
// boundary.
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check the taxonomy
//	if errors.IsConfiguration(err) {
//	    // broken deployment, do not retry
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Stack trace inspection
var (
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the ingestion pipeline.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrConfiguration indicates a broken deployment: an unknown job name,
	// a malformed schedule entry, a missing recurrence field, or a cron
	// policy configured without an evaluator. Fatal, never retried.
	ErrConfiguration = New("configuration error")

	// ErrStorage indicates a database failure in the schedule store, the
	// temporal upsert engine, or the history ledger.
	ErrStorage = New("storage error")

	// ErrNotFound indicates the requested row or resource does not exist
	ErrNotFound = New("not found")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")
)

// IsConfiguration checks if an error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsStorage checks if an error is or wraps ErrStorage
func IsStorage(err error) bool {
	return err != nil && Is(err, ErrStorage)
}

// IsFatal reports whether an error must terminate the run loop rather
// than be recorded as a failed job.
func IsFatal(err error) bool {
	return IsConfiguration(err) || IsStorage(err)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
// Also provides backward compatibility with string-based "not found" errors.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrNotFound) {
		return true
	}
	errMsg := err.Error()
	return len(errMsg) >= 9 && (errMsg == "not found" ||
		errMsg[len(errMsg)-9:] == "not found" ||
		len(errMsg) > 10 && errMsg[:10] == "not found:")
}

// NewConfigurationf creates a configuration error with a formatted message
func NewConfigurationf(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// WrapConfiguration wraps an error as a configuration error with context
func WrapConfiguration(err error, context string) error {
	return Wrap(Wrap(ErrConfiguration, err.Error()), context)
}

// NewStoragef creates a storage error with a formatted message
func NewStoragef(format string, args ...interface{}) error {
	return Wrap(ErrStorage, Newf(format, args...).Error())
}

// WrapStorage wraps an error as a storage error with context
func WrapStorage(err error, context string) error {
	return Wrap(Wrap(ErrStorage, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
