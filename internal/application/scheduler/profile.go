package scheduler

import "github.com/draftpress/draftpress/internal/domain"

// TimeWindow is a weighted publishing window in UTC hours.
type TimeWindow struct {
	StartHour int
	EndHour   int // inclusive
	Weight    float64
}

// BucketCadenceProfile drives the human-like cadence for one domain bucket.
type BucketCadenceProfile struct {
	FallbackFrequency string // daily, weekly, sporadic
	TimeWindows       []TimeWindow
	GapMultiplier     float64
	PhaseShiftHours   int
}

// cadenceProfiles maps each bucket to its publishing rhythm. Build domains
// publish steadily; parked and defensive domains trickle.
var cadenceProfiles = map[domain.DomainBucket]BucketCadenceProfile{
	domain.BucketBuild: {
		FallbackFrequency: "daily",
		TimeWindows: []TimeWindow{
			{StartHour: 6, EndHour: 10, Weight: 0.4},
			{StartHour: 11, EndHour: 16, Weight: 0.2},
			{StartHour: 17, EndHour: 22, Weight: 0.4},
		},
		GapMultiplier:   1.0,
		PhaseShiftHours: 0,
	},
	domain.BucketRedirect: {
		FallbackFrequency: "weekly",
		TimeWindows: []TimeWindow{
			{StartHour: 6, EndHour: 10, Weight: 0.5},
			{StartHour: 17, EndHour: 22, Weight: 0.5},
		},
		GapMultiplier:   1.5,
		PhaseShiftHours: 3,
	},
	domain.BucketPark: {
		FallbackFrequency: "sporadic",
		TimeWindows: []TimeWindow{
			{StartHour: 8, EndHour: 20, Weight: 1.0},
		},
		GapMultiplier:   2.0,
		PhaseShiftHours: 6,
	},
	domain.BucketDefensive: {
		FallbackFrequency: "sporadic",
		TimeWindows: []TimeWindow{
			{StartHour: 9, EndHour: 18, Weight: 1.0},
		},
		GapMultiplier:   3.0,
		PhaseShiftHours: 9,
	},
}

// ProfileFor returns the cadence profile for a bucket, defaulting to build.
func ProfileFor(bucket domain.DomainBucket) BucketCadenceProfile {
	if p, ok := cadenceProfiles[bucket]; ok {
		return p
	}
	return cadenceProfiles[domain.BucketBuild]
}
