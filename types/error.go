package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a unified error code across the hive.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// Scheduling error codes
const (
	ErrResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	ErrRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrAlreadyStarted    ErrorCode = "ALREADY_STARTED"
	ErrAgentNotReady     ErrorCode = "AGENT_NOT_READY"
)

// Server error codes
const (
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
// Field/Reason are set for validation errors, Resource for exhaustion,
// Operation/DurationMs for timeouts.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Field      string    `json:"field,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewValidationError reports a malformed request or an unmet requirement.
// Never retried.
func NewValidationError(field, reason string) *Error {
	e := NewError(ErrValidation, fmt.Sprintf("validation failed for %s: %s", field, reason)).
		WithHTTPStatus(http.StatusBadRequest)
	e.Field = field
	e.Reason = reason
	return e
}

// NewResourceExhaustedError reports that a resource is over its safety threshold.
func NewResourceExhaustedError(resource string) *Error {
	e := NewError(ErrResourceExhausted, fmt.Sprintf("resource exhausted: %s", resource)).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)
	e.Resource = resource
	return e
}

// NewTimeoutError reports that an operation exceeded its bound.
func NewTimeoutError(operation string, d time.Duration) *Error {
	e := NewError(ErrTimeout, fmt.Sprintf("%s timed out after %dms", operation, d.Milliseconds())).
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true)
	e.Operation = operation
	e.DurationMs = d.Milliseconds()
	return e
}

// NewNotFoundError reports an unknown agent or task id.
func NewNotFoundError(kind, id string) *Error {
	e := NewError(ErrNotFound, fmt.Sprintf("%s not found: %s", kind, id)).
		WithHTTPStatus(http.StatusNotFound)
	e.Resource = kind
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
