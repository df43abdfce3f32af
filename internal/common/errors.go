// Package common holds the error taxonomy, logging and retry helpers shared by
// the import pipeline, the store adapters and the CLI.
package common

import (
	"errors"
	"fmt"
)

// Store adapters map driver failures onto these so callers never inspect
// driver-specific codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTransient         = errors.New("transient store error")
	ErrConstraint        = errors.New("constraint violation")
	ErrDatabaseCorrupted = errors.New("database corrupted")
	ErrRunNotActive      = errors.New("import run is not active")
)

// Request and configuration failures.
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrMissingConfig   = errors.New("missing configuration")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// UserError is printed to the terminal as-is, with an optional hint on how to
// fix the invocation.
type UserError struct {
	Err     error
	Message string
	Hint    string
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err (which may be nil) with a message meant for the
// person running the command.
func NewUserError(message string, err error) error {
	return &UserError{Message: message, Err: err}
}

// NewUserErrorWithHint is NewUserError plus a suggested fix.
func NewUserErrorWithHint(message, hint string, err error) error {
	return &UserError{Message: message, Hint: hint, Err: err}
}
