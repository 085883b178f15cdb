// Package errors defines the sentinel errors shared by the indexing and search
// components, plus an AppError type that pairs a sentinel with an HTTP status
// code and an optional underlying cause.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSchema       = errors.New("schema error")
	ErrRead         = errors.New("record read error")
	ErrWrite        = errors.New("postings write error")
	ErrNotActivated = errors.New("index not activated")
	ErrBuildHalted  = errors.New("index build halted")
	ErrNotReady     = errors.New("index not ready")
	ErrInvalidInput = errors.New("invalid input")
	ErrJobInFlight  = errors.New("index job already in flight")
	ErrUnavailable  = errors.New("dependency unavailable")
	ErrInternal     = errors.New("internal error")
)

// AppError ties a sentinel error to a status code and a human readable
// message. Cause, when set, is the lower-level error that triggered it.
type AppError struct {
	Err        error
	Cause      error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
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

// Wrap attaches cause to a new AppError built from sentinel. The status code
// is derived from the sentinel.
func Wrap(sentinel error, cause error, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Cause:      cause,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusFor(sentinel),
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return statusFor(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrNotActivated), errors.Is(err, ErrNotReady), errors.Is(err, ErrBuildHalted),
		errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
