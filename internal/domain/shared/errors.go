// Package shared contains the error taxonomy used across the progression
// domain, its application handlers and the storage adapters.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNegativeValue = errors.New("value cannot be negative")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrConflict               = errors.New("conflict")

	// Storage errors
	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "ledger"
	Op      string // Operation that failed, e.g., "RecordAction", "Commit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Progression domain errors. The engine and the readers return these (or
// DomainErrors wrapping them) so callers can branch with errors.Is.
var (
	// ErrUserNotFound is soft for writers: the triggering business action
	// still succeeds and the reward is skipped.
	ErrUserNotFound = NewDomainError("progression", "LoadUser", ErrNotFound, "user not found")

	// ErrUserAlreadyExists is returned when registering an ID twice.
	ErrUserAlreadyExists = NewDomainError("progression", "CreateUser", ErrAlreadyExists, "user already exists")

	// ErrInvalidActionType means the caller passed a type outside the closed
	// enumeration. This is a wiring bug and is never swallowed silently.
	ErrInvalidActionType = NewDomainError("progression", "ResolveRule", ErrInvalidInput, "invalid action type")

	// ErrPersistenceConflict is returned after the bounded retry budget for
	// version conflicts is spent.
	ErrPersistenceConflict = NewDomainError("progression", "Commit", ErrConflict, "persistence conflict")

	// ErrPersistenceFailure is fatal for the current call. Nothing was committed.
	ErrPersistenceFailure = NewDomainError("progression", "Commit", ErrStorage, "persistence failure")

	// ErrDuplicateAction signals that an entry with the same idempotency key
	// already exists for the user.
	ErrDuplicateAction = NewDomainError("ledger", "Append", ErrAlreadyExists, "action already recorded")

	// ErrVersionMismatch is the storage-level optimistic lock failure.
	ErrVersionMismatch = NewDomainError("progression", "Commit", ErrConcurrentModification, "state version mismatch")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue)
}

// IsConflict reports whether err is an optimistic concurrency failure that
// may succeed when retried against fresh state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
