package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	// ErrTxConflict is returned by a Ledger when a transaction could not
	// commit after exhausting its conflict-retry budget.
	ErrTxConflict = errors.New("transaction conflict")
)

// APIError is an error with an HTTP-equivalent status code. Validation and
// permission failures carry 4xx codes and are never retried; invariant
// violations carry 500 and indicate a bug, not a user mistake.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewAPIError creates an APIError with the given status code and message.
func NewAPIError(code int, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// Errorf creates an APIError with a formatted message.
func Errorf(code int, format string, args ...any) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the HTTP status for an error: the APIError code when
// present, 404 for ErrNotFound, 401 for ErrUnauthorized, 429 for
// ErrRateLimited, 503 for an exhausted transaction retry, and 500 otherwise.
func StatusCode(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTxConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
