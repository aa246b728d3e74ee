// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "catalog", "progression", "stats"
	Op      string // Operation that failed, e.g., "TryUnlock", "Equip"
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

// Is implements errors.Is() matching.
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

// ═══════════════════════════════════════════════════════════════════════════
// Progression engine error taxonomy
// ═══════════════════════════════════════════════════════════════════════════

// Catalog errors
var (
	// ErrUnknownAchievement - the referenced id is not in the loaded catalog.
	// A programming or data error, fatal to the operation: it must propagate
	// to the caller and never be absorbed.
	ErrUnknownAchievement = NewDomainError("catalog", "Resolve", ErrNotFound, "achievement not in catalog")

	// ErrDuplicateAchievement - the catalog contains two definitions with the
	// same id. Rejected at load time.
	ErrDuplicateAchievement = NewDomainError("catalog", "Load", ErrAlreadyExists, "duplicate achievement definition")

	// ErrEmptyCatalog - the catalog contains no definitions.
	ErrEmptyCatalog = NewDomainError("catalog", "Load", ErrEmptyValue, "catalog has no definitions")
)

// Title equip errors. Expected, recoverable, user-facing: the caller needs
// the specific precondition that failed to render a specific message.
var (
	// ErrNotUnlocked - equip attempted on an achievement the user has not unlocked.
	ErrNotUnlocked = NewDomainError("titles", "Equip", ErrForbidden, "achievement not unlocked")

	// ErrNoTitleForAchievement - equip attempted on an achievement whose
	// definition grants no title.
	ErrNoTitleForAchievement = NewDomainError("titles", "Equip", ErrInvalidInput, "achievement grants no title")
)

// Persistence errors
var (
	// ErrPersistenceUnavailable - the opaque store collaborator failed. The
	// engine must not treat this as "not unlocked": it propagates so the
	// caller can retry, rather than caching a false-negative unlock state.
	ErrPersistenceUnavailable = NewDomainError("persistence", "Access", ErrServiceUnavailable, "persistence collaborator unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsEquipRejection checks if the error is one of the expected, user-facing
// equip precondition failures (as opposed to a persistence fault).
func IsEquipRejection(err error) bool {
	return errors.Is(err, ErrNotUnlocked) || errors.Is(err, ErrNoTitleForAchievement)
}

// IsPersistenceFault checks if the error came from the persistence collaborator.
func IsPersistenceFault(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
