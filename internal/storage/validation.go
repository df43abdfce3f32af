// Package storage provides the persistence layer for import runs, executions
// and instruments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidRun       = errors.New("invalid import run")
	ErrInvalidExecution = errors.New("invalid execution")
	ErrInvalidStatus    = errors.New("invalid run status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRun validates a run before it is created.
func validateRun(run *model.ImportRun) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	if run.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidRun)
	}
	if run.JobID == "" {
		return fmt.Errorf("%w: missing job ID", ErrInvalidRun)
	}
	return validateStatus(run.Status)
}

func validateStatus(status model.RunStatus) error {
	switch status {
	case model.RunProcessing, model.RunComplete, model.RunFailed:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}

// validateExecution checks the keys every stored execution must carry. Value
// rules live in table constraints.
func validateExecution(e *model.Execution) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidExecution)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidExecution)
	}
	return nil
}
