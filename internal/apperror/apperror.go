// Package apperror defines the application's error taxonomy.
//
// Services return these typed errors; the HTTP layer maps them to status
// codes in one place (handler.writeError). Each sentinel below is a distinct
// failure kind a caller may branch on with errors.Is. None of them are
// retryable from the caller's side — transient transaction conflicts are
// retried inside the repository layer and never surface as one of these.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Purchase / inventory
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyOwned      = errors.New("already owned")
	ErrAlreadyInUse      = errors.New("already in use")

	// Powerups
	ErrPowerupAlreadyActive = errors.New("powerup already active")

	// Snipe lifecycle
	ErrNotTarget       = errors.New("not the target")
	ErrAlreadyResolved = errors.New("already resolved")
	ErrWindowExpired   = errors.New("dodge window expired")

	// Membership & accusations
	ErrNotMember            = errors.New("not a member")
	ErrInvalidMember        = errors.New("invalid member")
	ErrAccusationInProgress = errors.New("accusation in progress")
	ErrNoActiveAccusation   = errors.New("no active accusation")
	ErrAccusedCannotVote    = errors.New("accused cannot vote")
)

type AppError struct {
	Err     error  // sentinel classifying the failure
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a formatted message. Most domain failures are
// built with this; the named constructors below cover the common shapes.
func New(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
