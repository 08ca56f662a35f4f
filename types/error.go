package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across the bridge.
type ErrorCode string

// Engine error codes. Retryable codes cover failures the send loop can
// recover from by reloading the page or waiting out a rate limit.
const (
	ErrConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrStartFailed      ErrorCode = "START_FAILED"
	ErrInputNotFound    ErrorCode = "INPUT_NOT_FOUND"
	ErrNoResponse       ErrorCode = "NO_RESPONSE"
	ErrCapacity         ErrorCode = "CAPACITY"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrTimeout          ErrorCode = "TIMEOUT"
)

// Request error codes.
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidModel   ErrorCode = "INVALID_MODEL"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// ResetAt is the server-advertised resumption time for RATE_LIMITED
	// errors. Zero when the limit payload carried no reset timestamp.
	ResetAt time.Time `json:"reset_at,omitempty"`
	Cause   error     `json:"-"`
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

// WithResetAt records the rate-limit resumption time.
func (e *Error) WithResetAt(t time.Time) *Error {
	e.ResetAt = t
	return e
}

// AsError extracts a *Error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}
