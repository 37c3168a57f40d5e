package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// EnqueueParams describes a job to insert into the queue.
type EnqueueParams struct {
	Type         domain.JobType
	Payload      any // marshalled to the JSON payload column
	Priority     int
	MaxAttempts  int        // 0 = domain.DefaultMaxAttempts
	ScheduledFor *time.Time // nil = immediately claimable

	ArticleID *string
	DomainID  *string
	Channel   *string
}

// QueueRepository is the persistence contract for the queue table.
// All methods are safe for concurrent use by many workers; claiming is
// atomic via row-level locks with skip-locked semantics.
type QueueRepository interface {
	// Enqueue inserts a pending job and returns its id.
	Enqueue(ctx context.Context, params EnqueueParams) (string, error)

	// Acquire atomically claims up to limit ready jobs ordered by
	// priority DESC, created_at ASC. Concurrent acquirers never claim the
	// same row. Empty slice when nothing is ready.
	Acquire(ctx context.Context, limit int, lease time.Duration, allowedTypes []domain.JobType) ([]*domain.Job, error)

	// AcquireByIDs is Acquire restricted to a candidate id set, used when a
	// dispatch cache hands out hints.
	AcquireByIDs(ctx context.Context, ids []string, limit int, lease time.Duration, allowedTypes []domain.JobType) ([]*domain.Job, error)

	// RecoverStale resets every processing row whose lease has expired back
	// to pending with an auto-recovery note. Returns the number recovered.
	RecoverStale(ctx context.Context) (int64, error)

	// Get fetches a job by id.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Complete marks a job completed and clears its lease.
	Complete(ctx context.Context, id string, result *domain.JobResult) error

	// FailTerminal dead-letters a job: status failed, attempts written,
	// failure classification stored in result.
	FailTerminal(ctx context.Context, id string, attempts int, failure *domain.Failure, errMsg string) error

	// ScheduleRetry re-queues a failed attempt: pending, incremented
	// attempts, lease cleared, scheduled_for set to the backoff time.
	ScheduleRetry(ctx context.Context, id string, attempts int, runAt time.Time, failure *domain.Failure, errMsg string) error

	// Cancel flips a pending job to cancelled; running jobs are not
	// cancellable and return domain.ErrJobNotCancellable.
	Cancel(ctx context.Context, id string) error

	// PurgeTerminal deletes completed/cancelled rows older than the cutoff.
	PurgeTerminal(ctx context.Context, completedBefore time.Time) (int64, error)

	// ListFailed returns failed jobs that finished before the cutoff,
	// oldest first, up to limit. Used by the retry sweeps.
	ListFailed(ctx context.Context, limit int, failedBefore time.Time) ([]*domain.Job, error)

	// ResetForRetry moves a failed job back to pending. resetAttempts
	// distinguishes administrative retry (attempts back to 0) from the
	// transient auto-retry sweep (attempts preserved, autoRetryCount
	// recorded in result.failure).
	ResetForRetry(ctx context.Context, id string, resetAttempts bool, scheduledFor time.Time, autoRetryCount int) error

	// Stats returns per-status counts.
	Stats(ctx context.Context) (*QueueStats, error)

	// Health returns stats plus latency and throughput derived in SQL.
	Health(ctx context.Context) (*QueueHealth, error)
}

// ArticleResetter lets the executor put an article back into draft when its
// job dead-letters, so a user can retry from the UI.
type ArticleResetter interface {
	ResetArticleToDraft(ctx context.Context, articleID string) error
}

// PromotionJobMirror keeps the growth side-record in sync with the queue job
// driving it. Implementations no-op when the queue job has no paired row.
type PromotionJobMirror interface {
	MirrorPromotionJobStatus(ctx context.Context, queueJobID, status string) error
}

// QueueStats is the per-status snapshot behind getQueueStats.
type QueueStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
	Cancelled  int64
	ByType     map[domain.JobType]int64
}

// QueueHealth extends stats with the derived signals behind getQueueHealth.
type QueueHealth struct {
	Stats QueueStats

	OldestPendingAge    time.Duration
	AvgProcessingTimeMs float64
	ThroughputPerHour   float64
	ErrorRate24h        float64

	LatestStartedAt        *time.Time
	LatestCompletedAt      *time.Time
	LatestQueuedAt         *time.Time
	LatestWorkerActivityAt *time.Time

	LatestStartedAge        *time.Duration
	LatestCompletedAge      *time.Duration
	LatestQueuedAge         *time.Duration
	LatestWorkerActivityAge *time.Duration
}

// MarshalPayload encodes a stage payload for EnqueueParams. nil stays nil so
// the payload column can be NULL.
func MarshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
