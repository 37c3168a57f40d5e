package worker

import (
	"errors"
	"fmt"

	"github.com/draftpress/draftpress/internal/domain"
)

// === Retry Classification ===

// RetryableError wraps transient errors that should be retried with backoff.
//
// Use for: network timeouts, database connection lost, rate limits, 5xx-style
// provider errors. Don't use for: validation errors, missing entities,
// payload schema failures.
type RetryableError struct {
	Category domain.FailureCategory
	Err      error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Transient wraps an error to signal it should be retried. The concrete
// category is inferred from the error text during classification.
//
//	if err := repo.SaveDraft(ctx, ...); err != nil {
//	    return worker.Transient(err) // retried with exponential backoff
//	}
func Transient(err error) error {
	return RetryableError{Err: err}
}

// RateLimited wraps a provider rate-limit error.
func RateLimited(err error) error {
	return RetryableError{Category: domain.FailureRateLimit, Err: err}
}

// IsRetryable returns true if the error should be retried.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// FatalError wraps errors that must never be retried; the job dead-letters
// immediately regardless of remaining attempts.
type FatalError struct {
	Category domain.FailureCategory
	Err      error
}

func (e FatalError) Error() string { return e.Err.Error() }
func (e FatalError) Unwrap() error { return e.Err }

// Fatal marks an error as non-retryable with an explicit category.
func Fatal(category domain.FailureCategory, err error) error {
	return FatalError{Category: category, Err: err}
}

// IsFatal returns true if the error was explicitly marked non-retryable.
func IsFatal(err error) bool {
	var fatal FatalError
	return errors.As(err, &fatal)
}

// === Panic Handling ===

// PanicError indicates a panic occurred during job processing. Panics are
// programming errors, not transient issues; the job dead-letters immediately.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic returns true if the error indicates a panic occurred.
func IsPanic(err error) bool {
	var panicErr PanicError
	return errors.As(err, &panicErr)
}

// ErrWorkerDisabled is returned by the supervisor when bootstrap is skipped
// (test mode or DISABLE_SERVER_QUEUE_WORKER).
var ErrWorkerDisabled = errors.New("queue worker disabled")
