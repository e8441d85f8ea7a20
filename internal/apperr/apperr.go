// Package apperr carries a coded application error across layers so the HTTP
// edge can choose a status without knowing each package's sentinels.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dontdude/markcheck/internal/domain"
)

// Code categorizes an application error.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeUnauthorized Code = "unauthorized"
	CodeUnavailable  Code = "unavailable"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal"
)

// AppError is a structured error with a code, a client-safe message and an optional cause.
type AppError struct {
	Code    Code
	Message string
	// Field names the offending input for validation errors.
	Field string
	Cause error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ValidationField reports invalid input for field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Field: field}
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(message string, cause error) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Cause: cause}
}

// Unavailable reports a dependency that could not serve the request.
func Unavailable(message string, cause error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Cause: cause}
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// Wrap attaches code and message to err. A nil err stays nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// CodeOf classifies err. AppErrors report their own code; known domain
// sentinels map to the closest code; everything else is internal.
func CodeOf(err error) Code {
	var appErr *AppError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &appErr):
		return appErr.Code
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrTokenExpired):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrUserNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrDispatch),
		errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrConnection),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch CodeOf(err) {
	case CodeUnauthorized:
		return "invalid token"
	case CodeNotFound:
		return "not found"
	case CodeUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}
