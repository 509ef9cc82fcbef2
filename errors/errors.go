// Package errors provides error handling for the datastore.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
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
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
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
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetReportableStackTrace extracts a stack trace from an error, if present.
var GetReportableStackTrace = crdb.GetReportableStackTrace

// Sentinel errors for the versioned store.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested key/version does not exist as of
	// the given date
	ErrNotFound = New("not found")

	// ErrAlreadyExists indicates an item with the same identity is already
	// persisted
	ErrAlreadyExists = New("already exists")

	// ErrConstraint indicates a value violates its attribute's
	// min/max/validator/choice constraint
	ErrConstraint = New("constraint violation")

	// ErrInvalidEntitySchema indicates an entity was attached to a draft or
	// retracted schema
	ErrInvalidEntitySchema = New("entity schema is not published")

	// ErrMultipleBases indicates a schema declares more than one base
	ErrMultipleBases = New("schema has multiple bases")

	// ErrNonExistentUser indicates the resolved actor is not a registered user
	ErrNonExistentUser = New("user does not exist")

	// ErrUnsafeOperation indicates an operation that cannot be undone was
	// refused (e.g. retiring a published schema lineage)
	ErrUnsafeOperation = New("unsafe operation")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConstraint checks if an error is or wraps ErrConstraint
func IsConstraint(err error) bool {
	return err != nil && Is(err, ErrConstraint)
}

// NewNotFoundf creates a not-found error with a formatted message
func NewNotFoundf(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewConstraintf creates a constraint-violation error with a formatted message
func NewConstraintf(format string, args ...interface{}) error {
	return Wrap(ErrConstraint, Newf(format, args...).Error())
}
