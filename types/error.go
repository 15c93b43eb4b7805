package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across cardflow.
type ErrorCode string

// Generation error codes
const (
	ErrConfigurationUnavailable ErrorCode = "CONFIGURATION_UNAVAILABLE"
	ErrProviderRequest          ErrorCode = "PROVIDER_REQUEST"
	ErrProviderResponseFormat   ErrorCode = "PROVIDER_RESPONSE_FORMAT"
	ErrAsyncTaskFailed          ErrorCode = "ASYNC_TASK_FAILED"
	ErrAsyncTaskTimeout         ErrorCode = "ASYNC_TASK_TIMEOUT"
	ErrRecoveryParse            ErrorCode = "RECOVERY_PARSE"
)

// Request error codes
const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedModel      ErrorCode = "UNSUPPORTED_MODEL"
	ErrUnsupportedCapability ErrorCode = "UNSUPPORTED_CAPABILITY"
	ErrNotFound              ErrorCode = "NOT_FOUND"
	ErrCancelled             ErrorCode = "CANCELLED"
	ErrRateLimited           ErrorCode = "RATE_LIMITED"
	ErrInternalError         ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
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
// HTTPStatus is pre-filled from the code and can be overridden.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: HTTPStatusOf(code)}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail attaches diagnostic text that is safe to show to operators.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
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

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError finds the first *Error in err's chain.
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

// IsErrorCode reports whether err carries one of the given codes.
func IsErrorCode(err error, codes ...ErrorCode) bool {
	got := GetErrorCode(err)
	if got == "" {
		return false
	}
	for _, c := range codes {
		if got == c {
			return true
		}
	}
	return false
}

// HTTPStatusOf returns the default HTTP status for an error code.
func HTTPStatusOf(code ErrorCode) int {
	switch code {
	case ErrConfigurationUnavailable:
		return http.StatusServiceUnavailable
	case ErrProviderRequest, ErrProviderResponseFormat, ErrAsyncTaskFailed:
		return http.StatusBadGateway
	case ErrAsyncTaskTimeout:
		return http.StatusGatewayTimeout
	case ErrRecoveryParse:
		return http.StatusUnprocessableEntity
	case ErrInvalidRequest, ErrUnsupportedModel, ErrUnsupportedCapability:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrCancelled:
		return http.StatusRequestTimeout
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FromContext converts a context error into a CANCELLED error.
func FromContext(err error) *Error {
	return NewError(ErrCancelled, "request cancelled").WithCause(err)
}
