package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrScriptNotFound indicates the lesson script could not be loaded.
	ErrScriptNotFound = errors.New("lesson script not found")
	// ErrSessionNotFound is returned when a lesson session has not been started.
	ErrSessionNotFound = errors.New("lesson session not found")
	// ErrStepNotFound indicates a step pointer that does not address a task in the script.
	ErrStepNotFound = errors.New("step not found in lesson script")
	// ErrInvalidSubmission is returned for a submission that does not fit the active step.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrMessageNotFound is returned when a chat message cannot be located.
	ErrMessageNotFound = errors.New("chat message not found")
	// ErrRemoteUnavailable indicates the remote answer validator is not configured or failed.
	ErrRemoteUnavailable = errors.New("remote validator unavailable")
	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("validation error")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}
