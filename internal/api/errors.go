package api

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a 404 from the backend so callers can render a
	// distinct "not found" state instead of an endless spinner.
	ErrNotFound = errors.New("resource not found")

	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Error is a non-2xx response. Message holds the server-provided message
// when the error payload had one, else a generic fallback, so it is always
// safe to show to the user.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// UserMessage extracts a human-readable message from any error produced by
// this package, falling back to a generic one.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrNotFound) {
		return "We couldn't find that. It may have been removed."
	}
	return "Something went wrong. Please try again."
}
