package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// QueueAdmin is the slice of the queue admin facade the tick drives.
type QueueAdmin interface {
	PurgeOldJobs(ctx context.Context, days int) (int64, error)
	RetryTransientFailedJobs(ctx context.Context, limit int) (int, error)
}

// Queue covers the idempotent per-user escalation enqueue.
type Queue interface {
	Enqueue(ctx context.Context, params worker.EnqueueParams) (string, error)

	// HasInFlightMediaReviewJob reports whether a media_review_escalation job
	// for the user is already pending or processing.
	HasInFlightMediaReviewJob(ctx context.Context, userID string) (bool, error)
}

// PreviewPurger removes acquisition preview builds past their TTL.
type PreviewPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// MediaPurger removes growth media assets that were soft-deleted.
type MediaPurger interface {
	PurgeDeleted(ctx context.Context) (int64, error)
}

// ModerationReader lists users who still have pending moderation tasks.
type ModerationReader interface {
	UsersWithPendingModeration(ctx context.Context, limit int) ([]string, error)
}

// Hook is an external sweep invoked fire-and-forget on every tick. Name is
// only used for logging.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// EscalationPayload is the media_review_escalation job payload.
type EscalationPayload struct {
	UserID string `json:"userId"`
}

// Tick runs the periodic maintenance fan-out: the built-in queue and storage
// sweeps plus any registered hooks. Every sweep is error-contained so one
// failure never starves the rest.
type Tick struct {
	admin      QueueAdmin
	queue      Queue
	previews   PreviewPurger
	media      MediaPurger
	moderation ModerationReader
	cfg        config.WorkerConfig
	hooks      []Hook

	now func() time.Time
}

// New wires the maintenance tick. previews, media, and moderation may be nil
// when the corresponding subsystem is not deployed.
func New(admin QueueAdmin, queue Queue, previews PreviewPurger, media MediaPurger, moderation ModerationReader, cfg config.WorkerConfig) *Tick {
	return &Tick{
		admin:      admin,
		queue:      queue,
		previews:   previews,
		media:      media,
		moderation: moderation,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AddHook registers an external sweep. Hooks run after the built-in sweeps,
// in registration order.
func (t *Tick) AddHook(name string, run func(ctx context.Context) error) {
	t.hooks = append(t.hooks, Hook{Name: name, Run: run})
}

// Run performs one tick at startup and then one per MaintenanceInterval until
// the context ends.
func (t *Tick) Run(ctx context.Context) {
	t.RunOnce(ctx)

	ticker := time.NewTicker(t.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}

// RunOnce executes every sweep exactly once. Individual failures are logged
// and swallowed.
func (t *Tick) RunOnce(ctx context.Context) {
	start := t.now()
	t.sweep(ctx, "purge_old_jobs", t.purgeOldJobs)
	t.sweep(ctx, "retry_transient_failures", t.retryTransientFailures)
	t.sweep(ctx, "purge_expired_preview_builds", t.purgeExpiredPreviews)
	t.sweep(ctx, "purge_deleted_media", t.purgeDeletedMedia)
	t.sweep(ctx, "media_review_escalation", t.escalateMediaReviews)

	for _, h := range t.hooks {
		t.sweep(ctx, h.Name, h.Run)
	}

	slog.InfoContext(ctx, "maintenance tick complete",
		"sweeps", 5+len(t.hooks), "duration", t.now().Sub(start))
}

func (t *Tick) sweep(ctx context.Context, name string, run func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "maintenance sweep panicked", "sweep", name, "panic", r)
		}
	}()
	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "maintenance sweep failed", "sweep", name, "error", err)
	}
}

func (t *Tick) purgeOldJobs(ctx context.Context) error {
	_, err := t.admin.PurgeOldJobs(ctx, t.cfg.PurgeAfterDays)
	return err
}

func (t *Tick) retryTransientFailures(ctx context.Context) error {
	_, err := t.admin.RetryTransientFailedJobs(ctx, 50)
	return err
}

func (t *Tick) purgeExpiredPreviews(ctx context.Context) error {
	if t.previews == nil {
		return nil
	}
	n, err := t.previews.PurgeExpired(ctx, t.now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired preview builds purged", "count", n)
	}
	return nil
}

func (t *Tick) purgeDeletedMedia(ctx context.Context) error {
	if t.media == nil {
		return nil
	}
	n, err := t.media.PurgeDeleted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "deleted media assets purged", "count", n)
	}
	return nil
}

// escalateMediaReviews queues one escalation job per user with pending
// moderation work. The in-flight check makes re-runs idempotent.
func (t *Tick) escalateMediaReviews(ctx context.Context) error {
	if t.moderation == nil {
		return nil
	}
	users, err := t.moderation.UsersWithPendingModeration(ctx, t.cfg.MediaReviewSweepUserLimit)
	if err != nil {
		return fmt.Errorf("failed to list users with pending moderation: %w", err)
	}

	queued := 0
	for _, userID := range users {
		inFlight, err := t.queue.HasInFlightMediaReviewJob(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check in-flight escalation", "user_id", userID, "error", err)
			continue
		}
		if inFlight {
			continue
		}
		raw, err := worker.MarshalPayload(EscalationPayload{UserID: userID})
		if err != nil {
			return err
		}
		if _, err := t.queue.Enqueue(ctx, worker.EnqueueParams{
			Type:    domain.JobMediaReviewEscalation,
			Payload: raw,
		}); err != nil {
			slog.ErrorContext(ctx, "failed to enqueue media review escalation", "user_id", userID, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		slog.InfoContext(ctx, "media review escalations queued", "count", queued)
	}
	return nil
}
