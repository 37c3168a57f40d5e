package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

// jobColumns is the select list shared by every job query.
const jobColumns = `
	id, type, status, priority, payload, result, attempts, max_attempts,
	scheduled_for, locked_until, started_at, completed_at, created_at,
	error_message, article_id, domain_id, channel`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		payload   []byte
		rawResult []byte
	)
	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &job.Priority, &payload, &rawResult,
		&job.Attempts, &job.MaxAttempts, &job.ScheduledFor, &job.LockedUntil,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.ErrorMessage,
		&job.ArticleID, &job.DomainID, &job.Channel,
	)
	if err != nil {
		return nil, err
	}
	job.Payload = payload
	if len(rawResult) > 0 {
		var result domain.JobResult
		if err := json.Unmarshal(rawResult, &result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Enqueue inserts a pending job and returns its id.
func (s *Store) Enqueue(ctx context.Context, params worker.EnqueueParams) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()

	payload, err := worker.MarshalPayload(params.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO queue_jobs (
			id, type, status, priority, payload, attempts, max_attempts,
			scheduled_for, created_at, article_id, domain_id, channel
		) VALUES ($1, $2, 'pending', $3, $4, 0, $5, $6, NOW(), $7, $8, $9)
	`, id, params.Type, params.Priority, []byte(payload), maxAttempts,
		params.ScheduledFor, params.ArticleID, params.DomainID, params.Channel)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// Acquire claims up to limit ready jobs under FOR UPDATE SKIP LOCKED so
// concurrent workers never claim the same row.
func (s *Store) Acquire(ctx context.Context, limit int, lease time.Duration, allowedTypes []domain.JobType) ([]*domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	types := jobTypeStrings(allowedTypes)

	rows, err := s.db.Query(ctx, `
		UPDATE queue_jobs SET
			status = 'processing',
			locked_until = NOW() + $2,
			started_at = NOW()
		WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE status = 'pending'
			  AND (scheduled_for IS NULL OR scheduled_for <= NOW())
			  AND (locked_until IS NULL OR locked_until <= NOW())
			  AND ($3::text[] IS NULL OR type = ANY($3))
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		limit, lease, types)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire jobs: %w", err)
	}
	return collectJobs(rows)
}

// AcquireByIDs is Acquire restricted to a candidate id set.
func (s *Store) AcquireByIDs(ctx context.Context, ids []string, limit int, lease time.Duration, allowedTypes []domain.JobType) ([]*domain.Job, error) {
	if len(ids) == 0 || limit <= 0 {
		return nil, nil
	}
	types := jobTypeStrings(allowedTypes)

	rows, err := s.db.Query(ctx, `
		UPDATE queue_jobs SET
			status = 'processing',
			locked_until = NOW() + $3,
			started_at = NOW()
		WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE id = ANY($1)
			  AND status = 'pending'
			  AND (scheduled_for IS NULL OR scheduled_for <= NOW())
			  AND (locked_until IS NULL OR locked_until <= NOW())
			  AND ($4::text[] IS NULL OR type = ANY($4))
			ORDER BY priority DESC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		ids, limit, lease, types)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire jobs by id: %w", err)
	}
	return collectJobs(rows)
}

// RecoverStale resets processing rows with expired leases back to pending.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_jobs SET
			status = 'pending',
			locked_until = NULL,
			error_message = 'auto-recovered: worker lease expired'
		WHERE status = 'processing'
		  AND locked_until IS NOT NULL
		  AND locked_until <= NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Complete marks a job completed and clears its lease.
func (s *Store) Complete(ctx context.Context, id string, result *domain.JobResult) error {
	raw, err := marshalResult(result)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_jobs SET
			status = 'completed',
			result = $2,
			completed_at = NOW(),
			locked_until = NULL,
			error_message = NULL
		WHERE id = $1
	`, id, raw)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}

// FailTerminal dead-letters a job with its failure classification.
func (s *Store) FailTerminal(ctx context.Context, id string, attempts int, failure *domain.Failure, errMsg string) error {
	raw, err := marshalResult(&domain.JobResult{Failure: failure})
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_jobs SET
			status = 'failed',
			attempts = $2,
			result = $3,
			error_message = $4,
			completed_at = NOW(),
			locked_until = NULL
		WHERE id = $1
	`, id, attempts, raw, errMsg)
	if err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}

// ScheduleRetry re-queues a failed attempt at the backoff time.
func (s *Store) ScheduleRetry(ctx context.Context, id string, attempts int, runAt time.Time, failure *domain.Failure, errMsg string) error {
	raw, err := marshalResult(&domain.JobResult{Failure: failure})
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_jobs SET
			status = 'pending',
			attempts = $2,
			scheduled_for = $3,
			result = $4,
			error_message = $5,
			locked_until = NULL
		WHERE id = $1
	`, id, attempts, runAt, raw, errMsg)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}

// Cancel flips a pending job to cancelled. Non-pending jobs return
// domain.ErrJobNotCancellable; running jobs are superseded by the timeout.
func (s *Store) Cancel(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_jobs SET
			status = 'cancelled',
			completed_at = NOW(),
			locked_until = NULL
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.db.QueryRow(ctx, `SELECT status FROM queue_jobs WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to check job status: %w", err)
		}
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobNotCancellable, id, status)
	}
	return nil
}

// PurgeTerminal deletes completed/cancelled rows older than the cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, completedBefore time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM queue_jobs
		WHERE status IN ('completed', 'cancelled')
		  AND completed_at < $1
	`, completedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListFailed returns failed jobs that finished before the cutoff, oldest
// first.
func (s *Store) ListFailed(ctx context.Context, limit int, failedBefore time.Time) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM queue_jobs
		WHERE status = 'failed' AND completed_at < $2
		ORDER BY completed_at ASC
		LIMIT $1
	`, limit, failedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	return collectJobs(rows)
}

// ResetForRetry moves a failed job back to pending. resetAttempts
// distinguishes administrative retry from the transient auto-retry sweep.
func (s *Store) ResetForRetry(ctx context.Context, id string, resetAttempts bool, scheduledFor time.Time, autoRetryCount int) error {
	var err error
	if resetAttempts {
		_, err = s.db.Exec(ctx, `
			UPDATE queue_jobs SET
				status = 'pending',
				attempts = 0,
				scheduled_for = $2,
				result = NULL,
				error_message = NULL,
				completed_at = NULL,
				locked_until = NULL
			WHERE id = $1 AND status = 'failed'
		`, id, scheduledFor)
	} else {
		// The auto-retry sweep preserves attempts and records its pass count
		// inside the stored failure for observability.
		_, execErr := s.db.Exec(ctx, `
			UPDATE queue_jobs SET
				status = 'pending',
				scheduled_for = $2,
				result = jsonb_set(
					COALESCE(result, '{}'::jsonb),
					'{failure,autoRetryTransientCount}',
					to_jsonb($3::int),
					true
				),
				completed_at = NULL,
				locked_until = NULL
			WHERE id = $1 AND status = 'failed'
		`, id, scheduledFor, autoRetryCount)
		err = execErr
	}
	if err != nil {
		return fmt.Errorf("failed to reset job for retry: %w", err)
	}
	return nil
}

// Stats returns per-status and per-type counts in two aggregate queries.
func (s *Store) Stats(ctx context.Context) (*worker.QueueStats, error) {
	stats := &worker.QueueStats{ByType: map[domain.JobType]int64{}}

	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM queue_jobs
	`).Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT type, COUNT(*) FROM queue_jobs GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobType domain.JobType
		var count int64
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		stats.ByType[jobType] = count
	}
	return stats, rows.Err()
}

// Health returns stats plus latency and throughput signals derived in SQL.
func (s *Store) Health(ctx context.Context) (*worker.QueueHealth, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	health := &worker.QueueHealth{Stats: *stats}

	var oldestPendingSec *float64
	err = s.db.QueryRow(ctx, `
		SELECT
			(EXTRACT(EPOCH FROM NOW() - MIN(created_at) FILTER (WHERE status = 'pending')))::float8,
			(COALESCE(AVG(EXTRACT(EPOCH FROM completed_at - started_at) * 1000)
				FILTER (WHERE status = 'completed' AND completed_at > NOW() - INTERVAL '24 hours'), 0))::float8,
			(COUNT(*) FILTER (WHERE status = 'completed' AND completed_at > NOW() - INTERVAL '1 hour'))::float8,
			MAX(started_at),
			MAX(completed_at),
			MAX(created_at)
		FROM queue_jobs
	`).Scan(&oldestPendingSec, &health.AvgProcessingTimeMs, &health.ThroughputPerHour,
		&health.LatestStartedAt, &health.LatestCompletedAt, &health.LatestQueuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive queue health: %w", err)
	}
	if oldestPendingSec != nil {
		health.OldestPendingAge = time.Duration(*oldestPendingSec * float64(time.Second))
	}

	var failed, finished int64
	err = s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'completed'))
		FROM queue_jobs
		WHERE completed_at > NOW() - INTERVAL '24 hours'
	`).Scan(&failed, &finished)
	if err != nil {
		return nil, fmt.Errorf("failed to derive error rate: %w", err)
	}
	if finished > 0 {
		health.ErrorRate24h = float64(failed) / float64(finished)
	}

	now := time.Now().UTC()
	health.LatestStartedAge = ageOf(health.LatestStartedAt, now)
	health.LatestCompletedAge = ageOf(health.LatestCompletedAt, now)
	health.LatestQueuedAge = ageOf(health.LatestQueuedAt, now)

	health.LatestWorkerActivityAt = latestOf(health.LatestStartedAt, health.LatestCompletedAt)
	health.LatestWorkerActivityAge = ageOf(health.LatestWorkerActivityAt, now)
	return health, nil
}

// HasInFlightCampaignJob reports a pending or processing job of the given
// type whose payload carries the campaign id.
func (s *Store) HasInFlightCampaignJob(ctx context.Context, jobType domain.JobType, campaignID string) (bool, error) {
	return s.hasInFlightPayloadJob(ctx, jobType, "campaignId", campaignID)
}

// HasInFlightResearchJob is the underwriting analogue keyed on the domain
// research id.
func (s *Store) HasInFlightResearchJob(ctx context.Context, jobType domain.JobType, domainResearchID string) (bool, error) {
	return s.hasInFlightPayloadJob(ctx, jobType, "domainResearchId", domainResearchID)
}

// HasInFlightMediaReviewJob keys the escalation sweep on the user id.
func (s *Store) HasInFlightMediaReviewJob(ctx context.Context, userID string) (bool, error) {
	return s.hasInFlightPayloadJob(ctx, domain.JobMediaReviewEscalation, "userId", userID)
}

func (s *Store) hasInFlightPayloadJob(ctx context.Context, jobType domain.JobType, key, value string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM queue_jobs
			WHERE type = $1
			  AND status IN ('pending', 'processing')
			  AND payload->>$2 = $3
			LIMIT 1
		)
	`, jobType, key, value).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check in-flight jobs: %w", err)
	}
	return exists, nil
}

// EnqueueWithPromotionJob inserts the queue row and its paired promotion_jobs
// mirror in one transaction.
func (s *Store) EnqueueWithPromotionJob(ctx context.Context, params worker.EnqueueParams, campaignID string) (string, error) {
	var jobID string
	err := s.executeInTransaction(ctx, "enqueue_with_promotion_job", func(txStore *Store) error {
		id, err := txStore.Enqueue(ctx, params)
		if err != nil {
			return err
		}
		jobID = id

		_, err = txStore.db.Exec(ctx, `
			INSERT INTO promotion_jobs (id, queue_job_id, campaign_id, type, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		`, uuid.Must(uuid.NewV7()).String(), id, campaignID, params.Type)
		if err != nil {
			return fmt.Errorf("failed to insert promotion job mirror: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// MirrorPromotionJobStatus propagates a queue job's terminal status to its
// paired promotion_jobs row. No-op when the job has no mirror.
func (s *Store) MirrorPromotionJobStatus(ctx context.Context, queueJobID, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE promotion_jobs SET status = $2, updated_at = NOW()
		WHERE queue_job_id = $1
	`, queueJobID, status)
	if err != nil {
		return fmt.Errorf("failed to mirror promotion job status: %w", err)
	}
	return nil
}

// BusyDomainIDs returns domains with an in-flight job or a job completed
// since the cutoff, in one query.
func (s *Store) BusyDomainIDs(ctx context.Context, completedSince time.Time) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT domain_id FROM queue_jobs
		WHERE domain_id IS NOT NULL
		  AND (
			status IN ('pending', 'processing')
			OR (status = 'completed' AND completed_at >= $1)
		  )
	`, completedSince)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy domains: %w", err)
	}
	defer rows.Close()

	busy := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy[id] = struct{}{}
	}
	return busy, rows.Err()
}

func marshalResult(result *domain.JobResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return raw, nil
}

// jobTypeStrings converts the allowed-type filter for ANY(); nil disables the
// filter in SQL.
func jobTypeStrings(types []domain.JobType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func ageOf(t *time.Time, now time.Time) *time.Duration {
	if t == nil {
		return nil
	}
	age := now.Sub(*t)
	return &age
}

func latestOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	}
	return b
}
