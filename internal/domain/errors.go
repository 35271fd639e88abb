package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the state layer.

// ErrRemote is a structured failure returned by the remote boundary
// (PostgREST or the identity service). Message is the human-readable text
// parsed from the response body, suitable for display.
type ErrRemote struct {
	Service string
	Status  int
	Message string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("remote error [%s] status=%d: %s", e.Service, e.Status, e.Message)
}

// ErrExternalService wraps a transport-level failure (connection refused,
// timeout, malformed response) talking to the remote boundary.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a resource was not found on the remote store.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized indicates missing or invalid session state.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrCircuitOpen indicates the circuit breaker rejected the call.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// RemoteMessage extracts the display message from a recognized remote error
// shape, or returns fallback. Used by the record cache to populate its
// advisory error string.
func RemoteMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var re *ErrRemote
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}
