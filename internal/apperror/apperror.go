// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return *AppError values wrapping one of the
// sentinel errors below. The HTTP layer never inspects messages; it matches
// the sentinel with errors.Is and picks a status code from it:
//
//	ErrValidation         → 400
//	ErrInvalidToken       → 400
//	ErrTokenExpired       → 400
//	ErrInvalidCredentials → 401
//	ErrUnauthorized       → 401
//	ErrForbidden          → 403
//	ErrNotFound           → 404
//	ErrConflict           → 409
//
// ErrDeliveryFailure never reaches a client. Mail is sent in the background,
// so delivery failures are only logged and counted.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrDeliveryFailure    = errors.New("delivery failure")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // human-readable, safe to show to a client
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// AlreadyExists reports a uniqueness violation on field. It matches
// ErrConflict, so callers that only care about "conflict" keep working.
func AlreadyExists(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
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

// Unauthorized means the request carries no usable session.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "valid authentication required",
	}
}

// InvalidCredentials is deliberately the same for an unknown username, a wrong
// password, and an unverified account.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

func InvalidToken() *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "Invalid verification link",
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:     ErrTokenExpired,
		Message: "Verification link expired",
	}
}

// DeliveryFailure wraps cause so the transport error stays inspectable.
func DeliveryFailure(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrDeliveryFailure, cause),
		Message: "mail delivery failed: " + cause.Error(),
	}
}
