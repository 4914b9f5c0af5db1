// Package apperr provides coded errors shared across the service. Handlers
// map codes to transport status; the engine uses them to classify outcomes.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	ErrCodeInvalidInput        Code = "invalid_input"
	ErrCodeNotFound            Code = "not_found"
	ErrCodeUnauthorized        Code = "unauthorized"
	ErrCodeConflict            Code = "conflict"
	ErrCodeValidationFailed    Code = "validation_failed"
	ErrCodeUnknownDomain       Code = "unknown_domain"
	ErrCodeNoEligibleApprovers Code = "no_eligible_approvers"
	ErrCodeAuditWriteFailed    Code = "audit_write_failed"
	ErrCodeUnavailable         Code = "unavailable"
	ErrCodeInternal            Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound creates a not_found error for a resource.
func NotFound(resource, id string) error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// InvalidInput creates an invalid_input error for a field.
func InvalidInput(field, message string) error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// CodeOf extracts the code from an error, or internal when uncoded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
