package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the engine.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
// Rejected before any persistence happens.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidState indicates an operation that is illegal in the
// resource's current state, e.g. a user turn on an ended conversation
// or a negotiation turn on a terminal negotiation. Nothing is mutated.
type ErrInvalidState struct {
	Resource string
	ID       string
	State    string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("%s %s is in state %q and accepts no further turns", e.Resource, e.ID, e.State)
}

// ErrRateLimited indicates the embedding provider (or another external
// service) refused the call with a rate-limit response. Recoverable,
// but never silently retried; the caller decides whether to retry or
// degrade.
type ErrRateLimited struct {
	Service    string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.Service)
}

// ErrConfiguration indicates missing or invalid configuration
// (embedding dimension, credentials). Fatal, never retried.
type ErrConfiguration struct {
	Setting string
	Message string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Setting, e.Message)
}

// ErrExternalService indicates a failure in an external service call.
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

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
