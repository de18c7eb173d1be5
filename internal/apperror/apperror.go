// Package apperror defines the domain errors shared by every layer.
//
// Services return these; handlers map them to HTTP status codes with
// errors.Is. Remote transport and decode failures are NOT AppErrors: they
// stay plain wrapped errors so callers can tell "the backend misbehaved"
// apart from "the user submitted something we refuse".
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
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

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for bad credentials or a missing session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// DuplicateName rejects a roster save because two horses share a name.
// The name is reported as the user typed it (trimmed).
func DuplicateName(name string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: fmt.Sprintf("You already have a horse named %q.", name),
		Field:   "name",
	}
}

// InvalidStall rejects a roster save because a stall number is outside
// the barn.
func InvalidStall(n, total int) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: fmt.Sprintf("Stall %d does not exist. Stalls are numbered 1 to %d.", n, total),
		Field:   "stall",
	}
}

// InvalidPhone rejects a roster save because some contact number is not
// 10 digits. It deliberately does not say which record or field.
func InvalidPhone() *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: "Phone numbers must be 10 digits.",
		Field:   "contact",
	}
}
