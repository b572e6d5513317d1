package internal

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("not found")

// ValidationError reports bad caller input. The operation was not started.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

// UpstreamError reports a failed request to the feed source, either a
// non-success status or a transport failure (StatusCode is 0 then).
type UpstreamError struct {
	Url        string
	StatusCode int
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream request failed: %s (%d)", e.Url, e.StatusCode)
	}
	return fmt.Sprintf("upstream request failed: %s: %v", e.Url, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

func (e *UpstreamError) HTTPStatus() int {
	return http.StatusBadGateway
}

// PersistenceError wraps a failed store write.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

func (e *PersistenceError) HTTPStatus() int {
	return http.StatusInternalServerError
}

// HTTPStatus maps any error produced by this module to a response status.
func HTTPStatus(err error) int {
	var coder interface{ HTTPStatus() int }
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
