package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for retry and transport decisions.
type ErrorKind string

const (
	// KindValidation marks malformed or out-of-range input. Never retried.
	KindValidation ErrorKind = "VALIDATION"
	// KindAuthorization marks credential, ownership or entitlement failures. Never retried.
	KindAuthorization ErrorKind = "AUTHORIZATION"
	// KindBusinessRule marks rule violations that need caller action (e.g. insufficient balance).
	KindBusinessRule ErrorKind = "BUSINESS_RULE"
	// KindConflict marks concurrent-modification conflicts.
	KindConflict ErrorKind = "CONFLICT"
	// KindNotFound marks missing resources.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Kind    ErrorKind      `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so sentinel values survive copies with details.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error carrying the given details
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindBusinessRule,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindValidation}
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindAuthorization}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindNotFound}
}

// KindOf returns the kind of a domain error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = &DomainError{Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process", Kind: KindConflict}
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "Insufficient balance available")
)

// TransientError wraps a storage failure that is safe to retry because the
// surrounding transaction was rolled back as a whole.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
