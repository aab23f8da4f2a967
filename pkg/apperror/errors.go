package apperror

import (
	"errors"
	"net/http"
)

// Error kinds. Every error surfaced to a caller wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("state conflict")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal server error")
)

// AppError carries a human readable message on top of an error kind.
type AppError struct {
	Kind    error
	Message string
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *AppError) Unwrap() error {
	return e.Kind
}

// New creates a new AppError of the given kind
func New(kind error, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Validation(message string) *AppError   { return New(ErrValidation, message) }
func NotFound(message string) *AppError     { return New(ErrNotFound, message) }
func Forbidden(message string) *AppError    { return New(ErrForbidden, message) }
func Unauthorized(message string) *AppError { return New(ErrUnauthorized, message) }
func Conflict(message string) *AppError     { return New(ErrConflict, message) }

// MapErrorToStatus maps error kinds to HTTP status codes.
// State conflicts (transition guards, duplicates) are reported as 400 and
// told apart from validation failures by KindName.
func MapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// KindName returns the stable, machine readable name of the error kind.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "state_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
