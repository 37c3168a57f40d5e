package growth

import (
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

func growthDefaults() config.GrowthConfig {
	return config.GrowthConfig{
		CooldownHours:                  24,
		DefaultDailyCap:                2,
		MinJitterMinutes:               15,
		MaxJitterMinutes:               90,
		QuietHoursStart:                23,
		QuietHoursEnd:                  6,
		IntegrityWindowHours:           24,
		IntegrityBlockedRateThreshold:  0.5,
		IntegrityHighRiskRateThreshold: 0.4,
		IntegrityHostConcentration:     0.8,
		IntegrityMinSamples:            5,
	}
}

func intPtr(v int) *int { return &v }

func TestComputeSchedule_JitterWithinBounds(t *testing.T) {
	cfg := growthDefaults()
	profile := &domain.ChannelProfile{
		Enabled:          true,
		MinJitterMinutes: 10,
		MaxJitterMinutes: 20,
		QuietHoursStart:  intPtr(0),
		QuietHoursEnd:    intPtr(0), // start == end disables quiet hours
	}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		sched := ComputeSchedule(profile, cfg, now, rng)
		if sched.JitterMinutes < 10 || sched.JitterMinutes > 20 {
			t.Fatalf("jitter %d outside [10,20]", sched.JitterMinutes)
		}
		want := now.Add(time.Duration(sched.JitterMinutes) * time.Minute)
		if !sched.At.Equal(want) {
			t.Fatalf("At = %v, want %v", sched.At, want)
		}
		if sched.MovedOutOfQuietHours {
			t.Fatal("no quiet window, nothing to move out of")
		}
	}
}

func TestComputeSchedule_LoadedDefaultsKeepQuietWindow(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost:5432/draftpress_test")
	for _, key := range []string{"GROWTH_DEFAULT_QUIET_HOURS_START", "GROWTH_DEFAULT_QUIET_HOURS_END"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Without a channel profile the engine falls back to the config window,
	// which must cover 23:00-05:59 on a default deployment.
	now := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	for seed := int64(0); seed < 25; seed++ {
		sched := ComputeSchedule(nil, cfg.Growth, now, rand.New(rand.NewSource(seed)))
		if !sched.MovedOutOfQuietHours {
			t.Fatalf("seed %d: slot at %v not moved out of the default quiet window", seed, sched.At)
		}
		if sched.At.Hour() != cfg.Growth.QuietHoursEnd {
			t.Fatalf("seed %d: At = %v, want hour %d", seed, sched.At, cfg.Growth.QuietHoursEnd)
		}
		if sched.At.Before(now) {
			t.Fatalf("seed %d: At = %v is before now", seed, sched.At)
		}
	}
}

func TestComputeSchedule_QuietHoursWrap(t *testing.T) {
	cfg := growthDefaults()
	profile := &domain.ChannelProfile{
		Enabled:          true,
		MinJitterMinutes: 30,
		MaxJitterMinutes: 30,
		QuietHoursStart:  intPtr(23),
		QuietHoursEnd:    intPtr(6),
	}
	// 01:30 + 30m = 02:00, inside the wrapped window: expect a shift to
	// 06:00-06:35 the same day.
	now := time.Date(2026, 8, 24, 1, 30, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	sched := ComputeSchedule(profile, cfg, now, rng)
	if !sched.MovedOutOfQuietHours {
		t.Fatal("expected quiet-hour move")
	}
	if sched.At.Day() != 24 || sched.At.Hour() != 6 {
		t.Fatalf("At = %v, want 06:xx same day", sched.At)
	}
	if sched.At.Minute() < 5 || sched.At.Minute() > 35 {
		t.Fatalf("minute = %d, want [5,35]", sched.At.Minute())
	}
}

func TestComputeSchedule_QuietHoursRollNextDay(t *testing.T) {
	cfg := growthDefaults()
	profile := &domain.ChannelProfile{
		Enabled:          true,
		MinJitterMinutes: 30,
		MaxJitterMinutes: 30,
		QuietHoursStart:  intPtr(23),
		QuietHoursEnd:    intPtr(6),
	}
	// 23:00 + 30m = 23:30, inside the window; 06:xx already passed today so
	// the shift rolls to tomorrow.
	now := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	sched := ComputeSchedule(profile, cfg, now, rng)
	if !sched.MovedOutOfQuietHours {
		t.Fatal("expected quiet-hour move")
	}
	if sched.At.Day() != 25 || sched.At.Hour() != 6 {
		t.Fatalf("At = %v, want 06:xx next day", sched.At)
	}
}

func TestComputeSchedule_ConfigFallback(t *testing.T) {
	cfg := growthDefaults()
	// Daytime draw with default profile values; quiet hours 23-6 do not
	// apply at noon.
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))

	sched := ComputeSchedule(nil, cfg, now, rng)
	if sched.JitterMinutes < cfg.MinJitterMinutes || sched.JitterMinutes > cfg.MaxJitterMinutes {
		t.Fatalf("jitter %d outside config bounds", sched.JitterMinutes)
	}
}

func TestInQuietHours(t *testing.T) {
	cases := []struct {
		hour, start, end int
		want             bool
	}{
		{2, 23, 6, true},
		{23, 23, 6, true},
		{5, 23, 6, true},
		{6, 23, 6, false},
		{12, 23, 6, false},
		{3, 1, 5, true},
		{5, 1, 5, false},
		{0, 1, 5, false},
		{10, 4, 4, false}, // degenerate window never matches
	}
	for _, tc := range cases {
		if got := inQuietHours(tc.hour, tc.start, tc.end); got != tc.want {
			t.Errorf("inQuietHours(%d, %d, %d) = %v, want %v", tc.hour, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestCreativeHash(t *testing.T) {
	day := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
	h1 := CreativeHash("c-1", "example.com", domain.ChannelPinterest, day)
	h2 := CreativeHash("c-1", "example.com", domain.ChannelPinterest, day.Add(2*time.Hour))
	if h1 != h2 {
		t.Error("hash must be stable within a UTC day")
	}
	if len(h1) != creativeHashLen {
		t.Errorf("len = %d, want %d", len(h1), creativeHashLen)
	}
	if h1 == CreativeHash("c-1", "example.com", domain.ChannelPinterest, day.AddDate(0, 0, 1)) {
		t.Error("hash must change across days")
	}
	if h1 == CreativeHash("c-1", "example.com", domain.ChannelYouTubeShorts, day) {
		t.Error("hash must change across channels")
	}
}
