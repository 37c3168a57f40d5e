package config

// GrowthConfig tunes the growth publish engine. All knobs come from the
// environment with hard-coded defaults; out-of-range values are clamped
// rather than rejected so a bad deploy degrades instead of crashing.
type GrowthConfig struct {
	CooldownHours    int `env:"GROWTH_CHANNEL_COOLDOWN_HOURS"`
	DefaultDailyCap  int `env:"GROWTH_DEFAULT_DAILY_CAP"`
	MinJitterMinutes int `env:"GROWTH_DEFAULT_MIN_JITTER_MINUTES"`
	MaxJitterMinutes int `env:"GROWTH_DEFAULT_MAX_JITTER_MINUTES"`
	QuietHoursStart  int `env:"GROWTH_DEFAULT_QUIET_HOURS_START"`
	QuietHoursEnd    int `env:"GROWTH_DEFAULT_QUIET_HOURS_END"`

	IntegrityWindowHours           int     `env:"GROWTH_INTEGRITY_ALERT_WINDOW_HOURS"`
	IntegrityBlockedRateThreshold  float64 `env:"GROWTH_INTEGRITY_BLOCKED_RATE_THRESHOLD"`
	IntegrityHighRiskRateThreshold float64 `env:"GROWTH_INTEGRITY_HIGH_RISK_RATE_THRESHOLD"`
	IntegrityHostConcentration     float64 `env:"GROWTH_INTEGRITY_HOST_CONCENTRATION_THRESHOLD"`
	IntegrityMinSamples            int     `env:"GROWTH_INTEGRITY_MIN_SAMPLES"`
}

// markUnset seeds sentinel values before the env loader runs. Quiet hours may
// legitimately be 0 (midnight), so an unset variable must be distinguishable
// from an explicit zero; the loader leaves untouched fields as seeded.
func (c *GrowthConfig) markUnset() {
	c.QuietHoursStart = -1
	c.QuietHoursEnd = -1
}

func (c *GrowthConfig) applyDefaults() {
	if c.CooldownHours < 1 {
		c.CooldownHours = 24
	}
	if c.DefaultDailyCap < 1 {
		c.DefaultDailyCap = 2
	}
	if c.MinJitterMinutes <= 0 {
		c.MinJitterMinutes = 15
	}
	if c.MaxJitterMinutes <= 0 {
		c.MaxJitterMinutes = 90
	}
	c.MinJitterMinutes = clamp(c.MinJitterMinutes, 0, 1440)
	c.MaxJitterMinutes = clamp(c.MaxJitterMinutes, 0, 1440)
	if c.MaxJitterMinutes < c.MinJitterMinutes {
		c.MaxJitterMinutes = c.MinJitterMinutes
	}

	// Unset quiet hours carry the markUnset sentinel and land here along
	// with out-of-range values.
	if c.QuietHoursStart < 0 || c.QuietHoursStart > 23 {
		c.QuietHoursStart = 23
	}
	if c.QuietHoursEnd < 0 || c.QuietHoursEnd > 23 {
		c.QuietHoursEnd = 6
	}

	if c.IntegrityWindowHours < 1 || c.IntegrityWindowHours > 336 {
		c.IntegrityWindowHours = 24
	}
	if c.IntegrityBlockedRateThreshold <= 0 || c.IntegrityBlockedRateThreshold > 1 {
		c.IntegrityBlockedRateThreshold = 0.5
	}
	if c.IntegrityHighRiskRateThreshold <= 0 || c.IntegrityHighRiskRateThreshold > 1 {
		c.IntegrityHighRiskRateThreshold = 0.4
	}
	if c.IntegrityHostConcentration <= 0 || c.IntegrityHostConcentration > 1 {
		c.IntegrityHostConcentration = 0.8
	}
	if c.IntegrityMinSamples < 1 {
		c.IntegrityMinSamples = 5
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
