package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// RetryMode selects which failed jobs an administrative retry touches.
type RetryMode string

const (
	// RetryAll re-queues any failed job, resetting attempts to 0.
	RetryAll RetryMode = "all"
	// RetryTransient re-queues only failures whose stored error message
	// matches the transient patterns; attempts are preserved.
	RetryTransient RetryMode = "transient"
)

// RetryFailedOptions tunes the administrative retry sweeps.
type RetryFailedOptions struct {
	Mode RetryMode
	// MinFailedAge skips failures younger than this; clamped to [0, 24h].
	MinFailedAge time.Duration
}

const (
	defaultMinFailedAge = 2 * time.Minute
	maxMinFailedAge     = 24 * time.Hour

	// The sweep scans up to this multiple of limit to fill limit eligible rows.
	retryScanMultiplier = 8
)

// Admin exposes the operational surface of the queue: retries, cancellation,
// purges, stats, and health.
type Admin struct {
	queue QueueRepository
}

// NewAdmin creates the admin facade over a queue repository.
func NewAdmin(queue QueueRepository) *Admin {
	return &Admin{queue: queue}
}

// RetryFailedJobs re-queues up to limit failed jobs according to opts and
// returns how many were moved back to pending.
func (a *Admin) RetryFailedJobs(ctx context.Context, limit int, opts RetryFailedOptions) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	if opts.Mode == "" {
		opts.Mode = RetryAll
	}
	minAge := opts.MinFailedAge
	if minAge <= 0 {
		minAge = defaultMinFailedAge
	}
	if minAge > maxMinFailedAge {
		minAge = maxMinFailedAge
	}

	cutoff := time.Now().UTC().Add(-minAge)
	candidates, err := a.queue.ListFailed(ctx, limit*retryScanMultiplier, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	retried := 0
	for _, job := range candidates {
		if retried >= limit {
			break
		}

		switch opts.Mode {
		case RetryAll:
			if err := a.queue.ResetForRetry(ctx, job.ID, true, time.Now().UTC(), 0); err != nil {
				slog.ErrorContext(ctx, "failed to reset job for retry", "job_id", job.ID, "error", err)
				continue
			}

		case RetryTransient:
			if !eligibleForTransientRetry(job) {
				continue
			}
			autoCount := 0
			if job.Result != nil && job.Result.Failure != nil {
				autoCount = job.Result.Failure.AutoRetryTransientCount
			}
			autoCount++
			runAt := time.Now().UTC().Add(Backoff(autoCount))
			if err := a.queue.ResetForRetry(ctx, job.ID, false, runAt, autoCount); err != nil {
				slog.ErrorContext(ctx, "failed to auto-retry transient job", "job_id", job.ID, "error", err)
				continue
			}

		default:
			return retried, fmt.Errorf("unknown retry mode %q", opts.Mode)
		}

		retried++
	}

	if retried > 0 {
		slog.InfoContext(ctx, "failed jobs re-queued", "count", retried, "mode", opts.Mode)
	}
	return retried, nil
}

// RetryTransientFailedJobs is the periodic auto-retry sweep over transient
// failures.
func (a *Admin) RetryTransientFailedJobs(ctx context.Context, limit int) (int, error) {
	return a.RetryFailedJobs(ctx, limit, RetryFailedOptions{Mode: RetryTransient})
}

// eligibleForTransientRetry applies the auto-retry gate: transient message,
// attempts below the cap, and no explicit non-retryable classification.
func eligibleForTransientRetry(job *domain.Job) bool {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	if job.Attempts >= maxAttempts {
		return false
	}
	msg := ""
	if job.ErrorMessage != nil {
		msg = *job.ErrorMessage
	}
	if msg == "" && job.Result != nil && job.Result.Failure != nil {
		msg = job.Result.Failure.HumanReadable
	}
	return IsTransientMessage(msg)
}

// CancelJob cancels a pending job. Running jobs are not cancellable; they are
// superseded by the execution timeout.
func (a *Admin) CancelJob(ctx context.Context, id string) error {
	return a.queue.Cancel(ctx, id)
}

// PurgeOldJobs deletes terminal rows older than the retention window.
func (a *Admin) PurgeOldJobs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := a.queue.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old jobs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "purged terminal jobs", "count", n, "older_than_days", days)
	}
	return n, nil
}

// QueueStats returns per-status counts.
func (a *Admin) QueueStats(ctx context.Context) (*QueueStats, error) {
	return a.queue.Stats(ctx)
}

// QueueHealth returns stats plus latency/throughput signals.
func (a *Admin) QueueHealth(ctx context.Context) (*QueueHealth, error) {
	return a.queue.Health(ctx)
}
