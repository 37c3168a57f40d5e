package config

import (
	"time"

	"github.com/draftpress/draftpress/internal/env"
)

// WorkerConfig tunes the queue worker loop and supervisor.
type WorkerConfig struct {
	// Disabled skips worker bootstrap entirely (DISABLE_SERVER_QUEUE_WORKER).
	Disabled bool

	BatchSize       int           `env:"QUEUE_WORKER_BATCH_SIZE"`
	PollInterval    time.Duration `env:"QUEUE_WORKER_POLL_INTERVAL"`
	LeaseDuration   time.Duration `env:"QUEUE_WORKER_LEASE_DURATION"`
	JobTimeout      time.Duration `env:"QUEUE_WORKER_JOB_TIMEOUT"`
	RecoverInterval time.Duration `env:"QUEUE_WORKER_RECOVER_INTERVAL"`

	// DrainTimeout bounds how long the loop waits for active jobs on stop.
	DrainTimeout time.Duration `env:"QUEUE_WORKER_DRAIN_TIMEOUT"`

	// MaintenanceInterval is the period of the maintenance tick.
	MaintenanceInterval time.Duration `env:"QUEUE_MAINTENANCE_INTERVAL"`

	// PurgeAfterDays is how long terminal jobs are retained.
	PurgeAfterDays int `env:"QUEUE_PURGE_AFTER_DAYS"`

	// MediaReviewSweepUserLimit caps users per media-review escalation sweep.
	MediaReviewSweepUserLimit int `env:"MEDIA_REVIEW_ESCALATION_SWEEP_USER_LIMIT"`
}

func (c *WorkerConfig) applyDefaults() {
	c.Disabled = env.Truthy("DISABLE_SERVER_QUEUE_WORKER")

	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 10 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.RecoverInterval <= 0 {
		c.RecoverInterval = time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 20 * time.Second
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Hour
	}
	if c.PurgeAfterDays <= 0 {
		c.PurgeAfterDays = 30
	}
	if c.MediaReviewSweepUserLimit <= 0 {
		c.MediaReviewSweepUserLimit = 100
	}
	if c.MediaReviewSweepUserLimit > 500 {
		c.MediaReviewSweepUserLimit = 500
	}
}

// ReviewConfig gates the optional AI reviewer in the generate_meta stage.
type ReviewConfig struct {
	FallbackEnabled bool   `env:"AI_REVIEW_FALLBACK_ENABLED"`
	ReviewModel     string `env:"OPENROUTER_OPUS_REVIEW_MODEL"`
}

// ReviewerEnabled reports whether the AI reviewer should run.
func (c ReviewConfig) ReviewerEnabled() bool {
	return c.FallbackEnabled && c.ReviewModel != ""
}

// SchedulerConfig tunes the human-like content scheduler.
type SchedulerConfig struct {
	// Interval between scheduler sweeps.
	Interval time.Duration `env:"QUEUE_CONTENT_SCHEDULE_INTERVAL"`

	// BusyWindow treats a domain with a completed job within this window as
	// busy and skips it.
	BusyWindow time.Duration `env:"QUEUE_CONTENT_BUSY_WINDOW"`
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.BusyWindow <= 0 {
		c.BusyWindow = 24 * time.Hour
	}
}
