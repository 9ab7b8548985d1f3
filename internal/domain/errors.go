package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound record not found
	ErrNotFound = errors.New("record not found")

	// ErrConflict operation conflicts with current state
	ErrConflict = errors.New("conflict")

	// ErrValidation invalid input
	ErrValidation = errors.New("validation failed")

	// ErrInvalidOperation operation not allowed in current state
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrSignatureVerification webhook signature could not be verified
	ErrSignatureVerification = errors.New("webhook signature verification failed")

	// ErrExternalProvider external provider call failed
	ErrExternalProvider = errors.New("external provider error")
)

// NotFoundError carries the entity kind and id of a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is matches the ErrNotFound sentinel
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError signals that an operation conflicts with existing state:
// duplicate active subscription, downgrade attempt, circular pack hierarchy.
type ConflictError struct {
	Entity string
	Reason string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

// Is matches the ErrConflict sentinel
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError creates a new ConflictError
func NewConflictError(entity, reason string) *ConflictError {
	return &ConflictError{Entity: entity, Reason: reason}
}

// ValidationError reports a single invalid field or request shape, e.g.
// attempting to purchase a free pack.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// Is matches the ErrValidation sentinel
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExternalServiceError wraps a failure from the payment or messaging
// provider.
type ExternalServiceError struct {
	Service     string
	Operation   string
	OriginalErr error
}

// Error implements the error interface
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s error during %s: %v", e.Service, e.Operation, e.OriginalErr)
	}
	return fmt.Sprintf("%s error during %s", e.Service, e.Operation)
}

// Unwrap returns the original error
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the ErrExternalProvider sentinel
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalProvider
}

// NewExternalServiceError creates a new ExternalServiceError
func NewExternalServiceError(service, operation string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Operation: operation, OriginalErr: err}
}
