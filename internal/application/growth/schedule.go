package growth

import (
	"math/rand"
	"time"

	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

const maxJitterBound = 1440 // one day in minutes

// Schedule is the computed publish time for the next publish job.
type Schedule struct {
	At                   time.Time
	JitterMinutes        int
	MovedOutOfQuietHours bool
}

// ComputeSchedule draws a human-like publish time: uniform jitter within the
// profile's window, shifted out of quiet hours when the draw lands inside
// them. rng is injected so tests are deterministic.
func ComputeSchedule(profile *domain.ChannelProfile, cfg config.GrowthConfig, now time.Time, rng *rand.Rand) Schedule {
	minJ, maxJ := jitterBounds(profile, cfg)
	jitter := minJ
	if maxJ > minJ {
		jitter = minJ + rng.Intn(maxJ-minJ+1)
	}
	tentative := now.UTC().Add(time.Duration(jitter) * time.Minute)

	start, end := quietHours(profile, cfg)
	if start == nil || end == nil || !inQuietHours(tentative.Hour(), *start, *end) {
		return Schedule{At: tentative, JitterMinutes: jitter}
	}

	// Shift to the end of quiet hours at a random minute in [5,35], rolling
	// to the next day when that instant already passed.
	minute := 5 + rng.Intn(31)
	shifted := time.Date(tentative.Year(), tentative.Month(), tentative.Day(),
		*end, minute, 0, 0, time.UTC)
	if shifted.Before(tentative) {
		shifted = shifted.AddDate(0, 0, 1)
	}
	return Schedule{At: shifted, JitterMinutes: jitter, MovedOutOfQuietHours: true}
}

func jitterBounds(profile *domain.ChannelProfile, cfg config.GrowthConfig) (int, int) {
	minJ := cfg.MinJitterMinutes
	maxJ := cfg.MaxJitterMinutes
	if profile != nil && profile.MaxJitterMinutes > 0 {
		minJ = profile.MinJitterMinutes
		maxJ = profile.MaxJitterMinutes
	}
	minJ = clampInt(minJ, 0, maxJitterBound)
	maxJ = clampInt(maxJ, 0, maxJitterBound)
	if maxJ < minJ {
		maxJ = minJ
	}
	return minJ, maxJ
}

func quietHours(profile *domain.ChannelProfile, cfg config.GrowthConfig) (*int, *int) {
	if profile != nil && profile.QuietHoursStart != nil && profile.QuietHoursEnd != nil {
		return profile.QuietHoursStart, profile.QuietHoursEnd
	}
	start, end := cfg.QuietHoursStart, cfg.QuietHoursEnd
	return &start, &end
}

// inQuietHours handles wrap-around windows: start=23, end=6 covers
// 23:00-05:59 UTC.
func inQuietHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
