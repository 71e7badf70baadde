// Package errors defines the service's sentinel errors and maps them to HTTP
// status codes. The matcher core itself has no error values; these cover the
// service around it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSourceUnavailable = errors.New("haystack source unavailable")
	ErrHaystackEmpty     = errors.New("haystack not loaded")
	ErrCacheDisabled     = errors.New("result cache disabled")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError attaches a user-facing message and HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalid is shorthand for a 400 wrapping ErrInvalidInput.
func Invalid(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

// HTTPStatusCode returns the status carried by an AppError, or the status
// associated with the sentinel err wraps.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSourceUnavailable), errors.Is(err, ErrHaystackEmpty), errors.Is(err, ErrCacheDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, ErrInternal) || HTTPStatusCode(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
