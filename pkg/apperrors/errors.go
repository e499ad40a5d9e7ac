// Package apperrors defines the error taxonomy of the embedding engine.
// Precondition violations (operating on missing state) surface as hard
// errors; degenerate inputs are handled by defined fallback values at the
// point of use and never reach this package.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidState  = errors.New("invalid session state")
	ErrUnknownTerm   = errors.New("term not in vocabulary")
	ErrEmptyCorpus   = errors.New("corpus is empty")
	ErrInvalidInput  = errors.New("invalid input")
	ErrStoreDisabled = errors.New("store not configured")
	ErrInternal      = errors.New("internal error")
)

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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrEmptyCorpus):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownTerm):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
