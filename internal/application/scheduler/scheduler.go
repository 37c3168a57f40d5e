package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// keywordResearchPriority keeps scheduled seeds below interactive work.
const keywordResearchPriority = 2

// maintainChannel tags scheduler-seeded jobs.
const maintainChannel = "maintain"

// coldDomainWindow: a domain with no article in this window schedules from
// now instead of its last article, so cold domains do not burst to catch up.
const coldDomainWindow = 30 * 24 * time.Hour

// DomainStore lists the domains eligible for scheduling.
type DomainStore interface {
	// ListActive returns active, non-deleted domains.
	ListActive(ctx context.Context) ([]*domain.Domain, error)
}

// ActivityReader answers the two bulk queries behind busy detection. Both
// are single queries; the scheduler never loops over jobs per domain.
type ActivityReader interface {
	// BusyDomainIDs returns domains with an in-flight job or a job
	// completed since the cutoff.
	BusyDomainIDs(ctx context.Context, completedSince time.Time) (map[string]struct{}, error)

	// LatestArticleTimes returns the newest article created_at per domain.
	LatestArticleTimes(ctx context.Context) (map[string]time.Time, error)
}

// Scheduler seeds new content pipelines at human-like times derived from
// bucket cadence profiles and a per-day deterministic seed.
type Scheduler struct {
	queue    worker.QueueRepository
	domains  DomainStore
	activity ActivityReader
	cfg      config.SchedulerConfig

	now func() time.Time
}

// New wires the content scheduler.
func New(queue worker.QueueRepository, domains DomainStore, activity ActivityReader, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		queue:    queue,
		domains:  domains,
		activity: activity,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckContentSchedule seeds a keyword_research job for every idle active
// domain. Deterministic per (domain, UTC day): a second run on the same day
// computes the same times, and the first run's job makes the domain busy, so
// re-runs enqueue nothing.
func (s *Scheduler) CheckContentSchedule(ctx context.Context) (int, error) {
	now := s.now()

	domains, err := s.domains.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active domains: %w", err)
	}
	if len(domains) == 0 {
		return 0, nil
	}

	busy, err := s.activity.BusyDomainIDs(ctx, now.Add(-s.cfg.BusyWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to resolve busy domains: %w", err)
	}
	latest, err := s.activity.LatestArticleTimes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve latest articles: %w", err)
	}

	scheduled := 0
	for _, d := range domains {
		if d.DeletedAt != nil {
			continue
		}
		if _, isBusy := busy[d.ID]; isBusy {
			continue
		}

		at := s.nextTime(d, latest[d.ID], now)
		domainID := d.ID
		channel := maintainChannel
		if _, err := s.queue.Enqueue(ctx, worker.EnqueueParams{
			Type:         domain.JobKeywordResearch,
			Priority:     keywordResearchPriority,
			ScheduledFor: &at,
			DomainID:     &domainID,
			Channel:      &channel,
		}); err != nil {
			slog.ErrorContext(ctx, "failed to schedule content pipeline",
				"domain_id", d.ID, "error", err)
			continue
		}
		scheduled++
		slog.InfoContext(ctx, "content pipeline scheduled",
			"domain_id", d.ID, "domain", d.Name, "bucket", d.Bucket, "scheduled_for", at)
	}
	return scheduled, nil
}

// nextTime computes the deterministic publish instant for a domain today.
func (s *Scheduler) nextTime(d *domain.Domain, lastArticleAt time.Time, now time.Time) time.Time {
	base := now
	if !lastArticleAt.IsZero() && now.Sub(lastArticleAt) <= coldDomainWindow {
		base = lastArticleAt
	}

	profile := ProfileFor(d.Bucket)
	frequency := d.Schedule.Frequency
	if frequency == "" {
		frequency = profile.FallbackFrequency
	}
	timeOfDay := d.Schedule.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "random"
	}

	rng := newStream(scheduleSeed(d, now))

	gapDays := gapDaysFor(frequency, rng) * profile.GapMultiplier
	target := base.Add(time.Duration(gapDays * 24 * float64(time.Hour)))

	hour := s.pickHour(timeOfDay, profile, rng)
	hour = (hour + profile.PhaseShiftHours) % 24
	minute := rng.IntN(60)
	second := rng.IntN(60)

	at := time.Date(target.Year(), target.Month(), target.Day(), hour, minute, second, 0, time.UTC)
	if !at.After(now.Add(time.Minute)) {
		at = now.Add(time.Duration(5+rng.IntN(41)) * time.Minute)
	}
	return at
}

// gapDaysFor draws the inter-article gap for a frequency. Ranges keep the
// cadence irregular enough to read as human.
func gapDaysFor(frequency string, rng *stream) float64 {
	switch frequency {
	case "daily":
		return 0.75 + rng.Float()*0.9
	case "weekly":
		return 5.5 + rng.Float()*3.5
	default: // sporadic
		return 1.5 + rng.Float()*4.5
	}
}

func (s *Scheduler) pickHour(timeOfDay string, profile BucketCadenceProfile, rng *stream) int {
	switch timeOfDay {
	case "morning":
		return 6 + rng.IntN(5) // 6-10
	case "evening":
		return 17 + rng.IntN(6) // 17-22
	}
	return pickWindowHour(profile.TimeWindows, rng)
}

// pickWindowHour does a weighted window pick, then a uniform hour inside it.
func pickWindowHour(windows []TimeWindow, rng *stream) int {
	if len(windows) == 0 {
		return rng.IntN(24)
	}
	total := 0.0
	for _, w := range windows {
		total += w.Weight
	}
	draw := rng.Float() * total
	for _, w := range windows {
		if draw < w.Weight {
			return w.StartHour + rng.IntN(w.EndHour-w.StartHour+1)
		}
		draw -= w.Weight
	}
	last := windows[len(windows)-1]
	return last.StartHour + rng.IntN(last.EndHour-last.StartHour+1)
}

// Run invokes the schedule check on the configured interval until the
// context ends. Errors are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.CheckContentSchedule(ctx); err != nil {
				slog.ErrorContext(ctx, "content schedule check failed", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "content schedule check complete", "scheduled", n)
			}
		}
	}
}
