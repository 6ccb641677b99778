package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input the caller must correct before resubmitting.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks a storage or transport failure. The input was valid.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound is returned by adapters for missing records.
	ErrNotFound = errors.New("record not found")
)

// ValidationError describes a rejected field of an evaluation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a failed read or write against the store.
// Result is set when a score was computed but could not be recorded,
// so the caller can show it and prompt a retry.
type PersistenceError struct {
	Op     string
	Result *Result
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
