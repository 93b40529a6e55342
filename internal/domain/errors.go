package domain

import (
	"fmt"
	"time"
)

// ErrNotFound is returned by a Repository lookup that misses; the engine
// treats it as non-retryable (spec §4.2, §7).
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found with ID: %s", e.Entity, e.ID)
}

// ErrRateLimited is returned when the RateLimiter or provider denies a call;
// policy is to defer to the next window, never to count it against retries
// (spec §7).
type ErrRateLimited struct {
	DomainID string
	RetryAt  time.Time
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited for domain %s", e.DomainID)
}

// ErrInvalidSettings is returned by Presets & Validation (spec §4.7, §7) and
// is never retried.
type ErrInvalidSettings struct {
	Reason string
}

func (e *ErrInvalidSettings) Error() string {
	return fmt.Sprintf("invalid settings: %s", e.Reason)
}

// ErrConflict signals an optimistic-concurrency collision on a conditional
// repository update (spec §4.2, §7). The repository implementations in this
// module serialize UpdateConditional with a lock and do not return it.
type ErrConflict struct {
	Entity string
	ID     string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("conflict updating %s %s", e.Entity, e.ID)
}

// ErrTransient wraps a network/provider failure that should be retried with
// backoff (spec §7).
type ErrTransient struct {
	Op  string
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *ErrTransient) Unwrap() error {
	return e.Err
}

// ErrFatal signals an invariant violation or unknown job type. JobQueue logs
// the error and drops the job without retrying; the worker keeps running and
// no notification is published for it.
type ErrFatal struct {
	Reason string
}

func (e *ErrFatal) Error() string {
	return fmt.Sprintf("fatal: %s", e.Reason)
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError builds a ValidationError as an error.
func NewValidationError(message string) error {
	return ValidationError{Message: message}
}
