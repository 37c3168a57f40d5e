package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// Backoff returns the in-band retry delay for the given attempt count
// (1-based): 60s doubled per attempt, capped at 30 minutes, no jitter so
// retries stay deterministic.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Minute
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}

// Classify turns a handler error into a structured failure. Typed errors
// (RetryableError, FatalError, PanicError, context deadline) are matched
// first; string matching on the message is the last-resort fallback.
func Classify(err error) *domain.Failure {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.Failure{
			Category:        domain.FailureTimeout,
			Confidence:      1,
			Retryable:       true,
			HumanReadable:   "job exceeded its execution timeout",
			SuggestedAction: "retry; investigate if timeouts persist",
		}
	}

	var panicErr PanicError
	if errors.As(err, &panicErr) {
		return &domain.Failure{
			Category:      domain.FailureDeadLetter,
			Confidence:    1,
			Retryable:     false,
			HumanReadable: panicErr.Error(),
			ExtractedDetails: map[string]string{
				"stackTrace": panicErr.StackTrace,
			},
			SuggestedAction: "fix the underlying bug before retrying",
		}
	}

	var fatal FatalError
	if errors.As(err, &fatal) {
		return &domain.Failure{
			Category:      fatal.Category,
			Confidence:    0.9,
			Retryable:     false,
			HumanReadable: fatal.Error(),
		}
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		cat := retryable.Category
		if cat == "" {
			cat = inferCategory(err.Error())
			if !cat.Retryable() {
				cat = domain.FailureProvider
			}
		}
		return &domain.Failure{
			Category:      cat,
			Confidence:    0.8,
			Retryable:     true,
			HumanReadable: retryable.Error(),
		}
	}

	if errors.Is(err, domain.ErrArticleNotFound) ||
		errors.Is(err, domain.ErrDomainNotFound) ||
		errors.Is(err, domain.ErrCampaignNotFound) ||
		errors.Is(err, domain.ErrResearchNotFound) ||
		errors.Is(err, domain.ErrNotFound) {
		return &domain.Failure{
			Category:      domain.FailureMissingEntity,
			Confidence:    0.95,
			Retryable:     false,
			HumanReadable: err.Error(),
		}
	}

	cat := inferCategory(err.Error())
	return &domain.Failure{
		Category:        cat,
		Confidence:      0.5,
		Retryable:       cat.Retryable(),
		HumanReadable:   err.Error(),
		SuggestedAction: "inspect logs; requeue via retryFailedJobs if transient",
	}
}

// inferCategory string-matches an error message against known shapes.
func inferCategory(msg string) domain.FailureCategory {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "rate limit", "rate_limit", "too many requests", "429"):
		return domain.FailureRateLimit
	case containsAny(m, "timeout", "timed out", "deadline exceeded"):
		return domain.FailureTimeout
	case containsAny(m, "connection reset", "connection refused", "econnreset", "broken pipe", "no such host", "network"):
		return domain.FailureNetwork
	case containsAny(m, "502", "503", "504", "bad gateway", "gateway", "service unavailable", "overloaded", "internal server error"):
		return domain.FailureProvider
	case containsAny(m, "invalid payload", "payload schema", "unmarshal", "cannot parse payload"):
		return domain.FailurePayloadSchema
	case containsAny(m, "validation", "invalid"):
		return domain.FailureValidation
	case containsAny(m, "not found", "missing"):
		return domain.FailureMissingEntity
	case containsAny(m, "feature flag", "flag disabled"):
		return domain.FailureFlagDisabled
	default:
		return domain.FailureUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Transient sweep patterns (§ auto-retry). An error message is eligible when
// it matches a transient pattern and none of the non-transient ones.
var transientPatterns = []string{
	"rate limit", "rate_limit", "429", "too many requests",
	"timeout", "timed out", "deadline exceeded",
	"connection reset", "connection refused", "econnreset", "broken pipe",
	"gateway", "502", "503", "504", "service unavailable", "overloaded",
	"temporarily",
}

var nonTransientPatterns = []string{
	"invalid payload", "payload schema", "not found", "validation", "invalid",
}

// IsTransientMessage reports whether a stored error message looks like a
// transient failure the auto-retry sweep may requeue.
func IsTransientMessage(msg string) bool {
	m := strings.ToLower(msg)
	if !containsAny(m, transientPatterns...) {
		return false
	}
	return !containsAny(m, nonTransientPatterns...)
}
