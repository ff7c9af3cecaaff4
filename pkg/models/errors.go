package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable code surfaced in tool responses
type ErrorCode string

// Error codes
const (
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidFormat      ErrorCode = "INVALID_FORMAT"
	ErrCodeMissingField       ErrorCode = "MISSING_FIELD"
	ErrCodeUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// AppError is the domain error carried from services up to the dispatcher.
// It keeps the stable code, a human message, and a details map listing
// offending fields and accepted formats.
type AppError struct {
	Code    ErrorCode              `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error { return e.cause }

// WithDetail adds a detail entry and returns the error for chaining
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// NewAppError creates an AppError with the given code and message
func NewAppError(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Convenience constructors for the common kinds

func NewValidationError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodeValidation, format, args...)
}

func NewInvalidFormatError(field, value string) *AppError {
	return NewAppError(ErrCodeInvalidFormat, "invalid identifier format for %s", field).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("accepted_formats", []string{"canonical UUID", "32-char hex"})
}

func NewMissingFieldError(field string) *AppError {
	return NewAppError(ErrCodeMissingField, "required field %q is missing", field).
		WithDetail("field", field)
}

func NewNotFoundError(entity, id string) *AppError {
	return NewAppError(ErrCodeNotFound, "%s not found: %s", entity, id).
		WithDetail("entity", entity).
		WithDetail("id", id)
}

func NewConflictError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodeConflict, format, args...)
}

func NewUnauthenticatedError(reason string) *AppError {
	return NewAppError(ErrCodeUnauthenticated, "authentication failed: %s", reason).
		WithDetail("reason", reason)
}

func NewForbiddenError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodeForbidden, format, args...)
}

func NewPreconditionFailedError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodePreconditionFailed, format, args...)
}

func NewInternalError(err error) *AppError {
	return NewAppError(ErrCodeInternal, "internal error").WithCause(err)
}

// AsAppError extracts an AppError from an error chain. The second return is
// false when the error is not an AppError anywhere in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the stable code for err, defaulting to INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
