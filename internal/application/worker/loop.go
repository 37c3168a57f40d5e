package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/draftpress/draftpress/internal/domain"
)

// RunOptions tunes a worker loop.
type RunOptions struct {
	BatchSize       int
	PollInterval    time.Duration
	LeaseDuration   time.Duration
	RecoverInterval time.Duration
	DrainTimeout    time.Duration
	AllowedTypes    []domain.JobType
}

func (o *RunOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = 10 * time.Minute
	}
	if o.RecoverInterval <= 0 {
		o.RecoverInterval = time.Minute
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 20 * time.Second
	}
}

// Runner drives the continuous claim/process loop for one worker process.
// Many runners may share the same store; the queue table is the only
// coordination point between them.
type Runner struct {
	queue    QueueRepository
	executor *Executor

	stopMu    sync.Mutex
	stopCh    chan struct{}
	stopped   bool
	lastRecov time.Time

	// dispatch is an optional hint cache of ready job ids populated by
	// enqueue paths in the same process; the loop tries those first.
	dispatch *gocache.Cache
}

// NewRunner creates a runner over the queue and executor.
func NewRunner(queue QueueRepository, executor *Executor) *Runner {
	return &Runner{
		queue:    queue,
		executor: executor,
		stopCh:   make(chan struct{}),
		dispatch: gocache.New(time.Minute, 5*time.Minute),
	}
}

// HintJob records a just-enqueued job id so the next round can try to claim
// it before the general scan.
func (r *Runner) HintJob(id string) {
	r.dispatch.SetDefault(id, struct{}{})
}

// RequestStop asks the loop to exit after the current batch drains.
// Safe to call more than once.
func (r *Runner) RequestStop() {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
}

func (r *Runner) stopRequested() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// RunOnce executes a single acquisition round: recover stale leases, claim a
// batch, process it. Returns the number of jobs processed.
func (r *Runner) RunOnce(ctx context.Context, opts RunOptions) (int, error) {
	opts.applyDefaults()

	if _, err := r.queue.RecoverStale(ctx); err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	r.lastRecov = time.Now()

	jobs, err := r.claim(ctx, opts)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	r.processBatch(ctx, jobs)
	return len(jobs), nil
}

// claim tries dispatch hints first, then the general ready scan.
func (r *Runner) claim(ctx context.Context, opts RunOptions) ([]*domain.Job, error) {
	if hints := r.hintIDs(); len(hints) > 0 {
		jobs, err := r.queue.AcquireByIDs(ctx, hints, opts.BatchSize, opts.LeaseDuration, opts.AllowedTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire hinted jobs: %w", err)
		}
		for _, j := range jobs {
			r.dispatch.Delete(j.ID)
		}
		if len(jobs) >= opts.BatchSize {
			return jobs, nil
		}
		rest, err := r.queue.Acquire(ctx, opts.BatchSize-len(jobs), opts.LeaseDuration, opts.AllowedTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire jobs: %w", err)
		}
		return append(jobs, rest...), nil
	}

	jobs, err := r.queue.Acquire(ctx, opts.BatchSize, opts.LeaseDuration, opts.AllowedTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire jobs: %w", err)
	}
	return jobs, nil
}

func (r *Runner) hintIDs() []string {
	items := r.dispatch.Items()
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids
}

// processBatch starts handlers in acquisition order and waits for the batch.
// The batch size bounds in-flight jobs for this worker.
func (r *Runner) processBatch(ctx context.Context, jobs []*domain.Job) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job *domain.Job) {
			defer wg.Done()
			if err := r.executor.Process(ctx, job); err != nil {
				// Queue writes failed; the lease will expire and the
				// recoverer re-queues the job.
				slog.ErrorContext(ctx, "job processing could not persist its outcome",
					"job_id", job.ID, "job_type", job.Type, "error", err)
			}
		}(job)
	}
	wg.Wait()
}

// RunContinuously polls until stop is requested or the context ends. Loop
// level errors are logged and the loop continues; only a cancelled context
// or stop request exits.
func (r *Runner) RunContinuously(ctx context.Context, opts RunOptions) error {
	opts.applyDefaults()
	slog.InfoContext(ctx, "queue worker loop started",
		"batch_size", opts.BatchSize,
		"poll_interval", opts.PollInterval)

	for {
		if r.stopRequested() || ctx.Err() != nil {
			break
		}

		// Keep stale recovery on schedule even when rounds return work
		// continuously.
		if time.Since(r.lastRecov) >= opts.RecoverInterval {
			if _, err := r.queue.RecoverStale(ctx); err != nil {
				slog.ErrorContext(ctx, "stale lock recovery failed", "error", err)
			}
			r.lastRecov = time.Now()
		}

		n, err := r.RunOnce(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("worker round failed: %w", err)
		}

		if n == 0 {
			select {
			case <-time.After(opts.PollInterval):
			case <-r.stopCh:
			case <-ctx.Done():
			}
		}
	}

	slog.InfoContext(ctx, "queue worker loop stopping, draining active jobs")
	if !r.executor.WaitForIdle(opts.DrainTimeout) {
		slog.WarnContext(ctx, "worker loop drain timed out with jobs still active",
			"active", r.executor.ActiveJobs())
	}
	slog.InfoContext(ctx, "queue worker loop stopped")
	return nil
}
