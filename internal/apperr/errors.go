package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the store, the services and the HTTP layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidParent = errors.New("invalid parent")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrIntegrity     = errors.New("data integrity")
)

// AppError carries a machine readable code and a message that is safe to show to the user.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for the named resource.
func NotFound(resource string, id uint) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %d not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Missing creates a 404 error with a custom message.
func Missing(message string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidParent creates a 422 error for a reply whose parent belongs to another review.
func InvalidParent(message string) *AppError {
	return &AppError{
		Code:    "INVALID_PARENT",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInvalidParent,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Upstream wraps a failed call to an external service.
func Upstream(message string, err error) *AppError {
	return &AppError{
		Code:    "UPSTREAM_ERROR",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Unavailable creates a 503 error for a feature that is not configured.
func Unavailable(message string) *AppError {
	return &AppError{
		Code:    "UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
	}
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidParent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// From converts any error into an AppError, keeping existing ones untouched.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return &AppError{Code: "NOT_FOUND", Message: "resource not found", Status: http.StatusNotFound, Err: err}
	case http.StatusConflict:
		return &AppError{Code: "CONFLICT", Message: "conflict", Status: http.StatusConflict, Err: err}
	case http.StatusBadRequest:
		return &AppError{Code: "INVALID_INPUT", Message: "invalid input", Status: http.StatusBadRequest, Err: err}
	case http.StatusUnprocessableEntity:
		return &AppError{Code: "INVALID_PARENT", Message: "invalid parent", Status: http.StatusUnprocessableEntity, Err: err}
	case http.StatusForbidden:
		return &AppError{Code: "FORBIDDEN", Message: "forbidden", Status: http.StatusForbidden, Err: err}
	case http.StatusUnauthorized:
		return &AppError{Code: "UNAUTHORIZED", Message: "unauthorized", Status: http.StatusUnauthorized, Err: err}
	}
	return Internal(err)
}
