package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// Handler processes one claimed job. The context carries the per-job timeout;
// handlers must respect cancellation at their suspension points.
type Handler func(ctx context.Context, job *domain.Job) error

// Executor routes claimed jobs to handlers, enforces the per-job timeout,
// classifies failures, and drives retry / dead-letter transitions.
type Executor struct {
	queue    QueueRepository
	articles ArticleResetter
	promos   PromotionJobMirror
	timeout  time.Duration

	mu       sync.Mutex
	handlers map[domain.JobType]Handler

	activeN  int64
	activeMu sync.Mutex
}

// NewExecutor creates an executor. articles and promos may be nil when the
// deployment has no article pipeline or growth engine wired.
func NewExecutor(queue QueueRepository, articles ArticleResetter, promos PromotionJobMirror, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Executor{
		queue:    queue,
		articles: articles,
		promos:   promos,
		timeout:  timeout,
		handlers: make(map[domain.JobType]Handler),
	}
}

// Register binds a handler to a job type. Later registrations win, which
// lets tests stub individual stages.
func (e *Executor) Register(t domain.JobType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = h
}

// HandlerCount returns the number of registered handlers.
func (e *Executor) HandlerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// ActiveJobs returns the number of jobs currently in-flight in this process.
func (e *Executor) ActiveJobs() int64 {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	return e.activeN
}

// WaitForIdle blocks until no jobs are in-flight or the timeout elapses.
// Returns true when idle was reached. Used by graceful shutdown.
func (e *Executor) WaitForIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if e.ActiveJobs() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (e *Executor) enterJob() {
	e.activeMu.Lock()
	e.activeN++
	e.activeMu.Unlock()
}

func (e *Executor) exitJob() {
	e.activeMu.Lock()
	e.activeN--
	e.activeMu.Unlock()
}

// Process executes one claimed job to a terminal or retry state. It never
// returns handler errors; only infrastructure failures (queue writes)
// propagate so the loop can decide whether the store is down.
func (e *Executor) Process(ctx context.Context, job *domain.Job) error {
	e.enterJob()
	defer e.exitJob()

	if e.promos != nil {
		if err := e.promos.MirrorPromotionJobStatus(ctx, job.ID, "running"); err != nil {
			slog.WarnContext(ctx, "failed to mark promotion job running", "job_id", job.ID, "error", err)
		}
	}

	handlerErr := e.run(ctx, job)
	if handlerErr == nil {
		return e.complete(ctx, job)
	}
	return e.fail(ctx, job, handlerErr)
}

// run invokes the handler under the per-job timeout with panic recovery.
func (e *Executor) run(ctx context.Context, job *domain.Job) (err error) {
	e.mu.Lock()
	handler, ok := e.handlers[job.Type]
	e.mu.Unlock()
	if !ok {
		return Fatal(domain.FailureDeadLetter, fmt.Errorf("no handler registered for job type %q", job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()

	if err := handler(jobCtx, job); err != nil {
		// Surface the timeout as the cause when the job context expired.
		if jobCtx.Err() == context.DeadlineExceeded {
			return context.DeadlineExceeded
		}
		return err
	}
	return nil
}

func (e *Executor) complete(ctx context.Context, job *domain.Job) error {
	if err := e.queue.Complete(ctx, job.ID, &domain.JobResult{}); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	if e.promos != nil {
		if err := e.promos.MirrorPromotionJobStatus(ctx, job.ID, "completed"); err != nil {
			slog.WarnContext(ctx, "failed to mark promotion job completed", "job_id", job.ID, "error", err)
		}
	}
	slog.InfoContext(ctx, "job completed", "job_id", job.ID, "job_type", job.Type)
	return nil
}

func (e *Executor) fail(ctx context.Context, job *domain.Job, handlerErr error) error {
	failure := Classify(handlerErr)
	attempts := job.Attempts + 1

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	if !failure.Retryable || attempts >= maxAttempts {
		return e.deadLetter(ctx, job, attempts, failure, handlerErr)
	}

	runAt := time.Now().UTC().Add(Backoff(attempts))
	if err := e.queue.ScheduleRetry(ctx, job.ID, attempts, runAt, failure, handlerErr.Error()); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
	}
	if e.promos != nil {
		if err := e.promos.MirrorPromotionJobStatus(ctx, job.ID, "pending"); err != nil {
			slog.WarnContext(ctx, "failed to mark promotion job pending", "job_id", job.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "job scheduled for retry",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts", attempts,
		"category", failure.Category,
		"run_at", runAt,
		"error", handlerErr.Error())
	return nil
}

func (e *Executor) deadLetter(ctx context.Context, job *domain.Job, attempts int, failure *domain.Failure, handlerErr error) error {
	if err := e.queue.FailTerminal(ctx, job.ID, attempts, failure, handlerErr.Error()); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}

	// Let the user retry from the UI.
	if e.articles != nil && job.ArticleID != nil {
		if err := e.articles.ResetArticleToDraft(ctx, *job.ArticleID); err != nil {
			slog.ErrorContext(ctx, "failed to reset article after terminal failure",
				"job_id", job.ID, "article_id", *job.ArticleID, "error", err)
		}
	}
	if e.promos != nil {
		if err := e.promos.MirrorPromotionJobStatus(ctx, job.ID, "failed"); err != nil {
			slog.WarnContext(ctx, "failed to mark promotion job failed", "job_id", job.ID, "error", err)
		}
	}

	slog.ErrorContext(ctx, "job dead-lettered",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts", attempts,
		"category", failure.Category,
		"error", handlerErr.Error())
	return nil
}
