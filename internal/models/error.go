package models

import (
	"errors"
	"fmt"
)

// ==============================================
// CUSTOM ERROR TYPES
// ==============================================

// AppError represents a structured application error
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error (for logging)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ==============================================
// PREDEFINED ERRORS
// ==============================================

var (
	// ErrValidation covers unchanged, malformed or already-taken target values.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is also returned on owner mismatch so callers cannot probe
	// for the existence of other users' records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOrExpired is the only failure verify ever reports.
	ErrInvalidOrExpired = errors.New("verification failed")

	ErrAlreadyInState  = errors.New("already in requested state")
	ErrDispatchFailure = errors.New("notification dispatch failed")
)

// Session Errors
var (
	ErrSessionConflict   = errors.New("another session is active")
	ErrSessionTerminated = errors.New("session terminated")
)

// ErrUnauthorized is deliberately indistinguishable from ErrNotFound.
var ErrUnauthorized = ErrNotFound

// ==============================================
// ERROR CODES (for API responses)
// ==============================================
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeVerificationFailed = "VERIFICATION_FAILED"
	ErrCodeAlreadyInState     = "ALREADY_IN_STATE"
	ErrCodeDispatchFailed     = "DISPATCH_FAILED"
	ErrCodeSessionConflict    = "SESSION_CONFLICT"
	ErrCodeSessionTerminated  = "SESSION_TERMINATED"
	ErrCodeStorefrontLocked   = "STOREFRONT_LOCKED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
)

// ==============================================
// HELPER FUNCTIONS
// ==============================================

// Validationf wraps ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return NewAppError(ErrCodeValidationFailed, fmt.Sprintf(format, args...), ErrValidation)
}

// DispatchFailed wraps a channel error as a non-fatal dispatch failure.
func DispatchFailed(err error) error {
	return NewAppError(ErrCodeDispatchFailed, "code could not be delivered, use resend", errors.Join(ErrDispatchFailure, err))
}

// IsNotFoundError checks if error is a "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if error is validation-related
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDispatchFailure reports whether the persisted state is intact and only
// delivery failed.
func IsDispatchFailure(err error) bool {
	return errors.Is(err, ErrDispatchFailure)
}
