package domain

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a queue job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// JobType discriminates which handler processes a job.
type JobType string

// Content pipeline stages, in chain order.
const (
	JobKeywordResearch JobType = "keyword_research"
	JobResearch        JobType = "research"
	JobGenerateOutline JobType = "generate_outline"
	JobGenerateDraft   JobType = "generate_draft"
	JobHumanize        JobType = "humanize"
	JobSEOOptimize     JobType = "seo_optimize"
	JobGenerateMeta    JobType = "generate_meta"
)

// Growth channel publishing stages.
const (
	JobCreatePromotionPlan JobType = "create_promotion_plan"
	JobPublishPinterestPin JobType = "publish_pinterest_pin"
	JobGenerateShortScript JobType = "generate_short_script"
	JobRenderShortVideo    JobType = "render_short_video"
	JobPublishYouTubeShort JobType = "publish_youtube_short"
	JobSyncCampaignMetrics JobType = "sync_campaign_metrics"
)

// Acquisition underwriting stages.
const (
	JobIngestListings  JobType = "ingest_listings"
	JobEnrichCandidate JobType = "enrich_candidate"
	JobScoreCandidate  JobType = "score_candidate"
	JobCreateBidPlan   JobType = "create_bid_plan"
)

// Maintenance kinds.
const (
	JobMediaReviewEscalation JobType = "media_review_escalation"
)

// DefaultMaxAttempts is applied when a job is enqueued without an explicit cap.
const DefaultMaxAttempts = 3

// Job is a row in the queue table. Payload is opaque to the queue itself;
// handlers decode it into their stage-specific record.
type Job struct {
	ID           string
	Type         JobType
	Status       JobStatus
	Priority     int
	Payload      json.RawMessage
	Result       *JobResult
	Attempts     int
	MaxAttempts  int
	ScheduledFor *time.Time
	LockedUntil  *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	ErrorMessage *string

	ArticleID *string
	DomainID  *string
	Channel   *string
}

// Ready reports whether the job can be claimed at the given instant:
// pending, not scheduled into the future, and not under a live lease.
func (j *Job) Ready(now time.Time) bool {
	if j.Status != JobPending {
		return false
	}
	if j.ScheduledFor != nil && j.ScheduledFor.After(now) {
		return false
	}
	if j.LockedUntil != nil && j.LockedUntil.After(now) {
		return false
	}
	return true
}

// Leased reports whether a worker currently holds a live lease on the job.
func (j *Job) Leased(now time.Time) bool {
	return j.Status == JobProcessing && j.LockedUntil != nil && j.LockedUntil.After(now)
}

// Terminal reports whether the job is in a retained terminal state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobResult is the structured result column. On success Message carries an
// optional human note; on failure the classification rides along for admin
// tooling and the transient auto-retry sweep.
type JobResult struct {
	Message string   `json:"message,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}
