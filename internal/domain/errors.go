package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed or out-of-domain input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEngineUnavailable means no model artifact is loaded.
	ErrEngineUnavailable = errors.New("inference engine unavailable")

	// ErrBusy means the scoring queue is full; the caller may retry.
	ErrBusy = errors.New("scoring pool busy")

	// ErrTransientStorage marks storage failures worth retrying
	// (connectivity, timeouts, serialization conflicts).
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrPersistenceFailure is returned alongside a verdict when the audit
	// write could not be completed.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrNotFound means no fraud record exists for the transaction id.
	ErrNotFound = errors.New("fraud record not found")
)

// ValidationError names the field that made a request invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidRequest) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
