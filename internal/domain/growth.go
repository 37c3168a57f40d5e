package domain

import "time"

// Channel is a growth publishing channel.
type Channel string

const (
	ChannelPinterest     Channel = "pinterest"
	ChannelYouTubeShorts Channel = "youtube_shorts"
)

// CampaignStatus is the promotion campaign state machine.
//
//	draft --plan_created--> active --> {paused, cancelled, completed}
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is a growth promotion campaign tied to a researched domain.
type Campaign struct {
	ID               string
	DomainResearchID string
	Channels         []Channel
	Budget           float64
	DailyCap         int
	Status           CampaignStatus
	Metrics          CampaignMetrics
	CreatedAt        time.Time
}

// CampaignMetrics is the aggregate snapshot written by sync_campaign_metrics.
type CampaignMetrics struct {
	Published       int        `json:"published"`
	Clicks          int        `json:"clicks"`
	Leads           int        `json:"leads"`
	Conversions     int        `json:"conversions"`
	TotalEvents     int        `json:"totalEvents"`
	LastPublishedAt *time.Time `json:"lastPublishedAt,omitempty"`
	SyncedAt        *time.Time `json:"syncedAt,omitempty"`
}

// PromotionJob mirrors a growth queue job with its own status for the UI.
// It is written in the same transaction as the queue insert.
type PromotionJob struct {
	ID         string
	QueueJobID string
	CampaignID string
	Type       JobType
	Status     string // pending, running, completed, failed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventType tags an append-only promotion event.
type EventType string

const (
	EventPlanCreated     EventType = "plan_created"
	EventPlanSkipped     EventType = "plan_skipped"
	EventScriptGenerated EventType = "script_generated"
	EventVideoRendered   EventType = "video_rendered"
	EventPublished       EventType = "published"
	EventPublishSkipped  EventType = "publish_skipped"
	EventPublishBlocked  EventType = "publish_blocked"
	EventMetricsSynced   EventType = "metrics_synced"
)

// EventAttributes is the typed attribute bag on a promotion event. Fields are
// populated per event type; absent fields are omitted from the JSON column.
type EventAttributes struct {
	Channel              Channel  `json:"channel,omitempty"`
	CreativeHash         string   `json:"creativeHash,omitempty"`
	AssetID              string   `json:"assetId,omitempty"`
	Reason               string   `json:"reason,omitempty"`
	DestinationHost      string   `json:"destinationHost,omitempty"`
	DestinationRiskScore float64  `json:"destinationRiskScore,omitempty"`
	BlockReasons         []string `json:"blockReasons,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	PolicyPackID         string   `json:"policyPackId,omitempty"`
	PolicyPackVersion    string   `json:"policyPackVersion,omitempty"`
	ChecksApplied        []string `json:"checksApplied,omitempty"`
	ExternalPostID       string   `json:"externalPostId,omitempty"`
	PublishStatus        string   `json:"publishStatus,omitempty"`
	LaunchedBy           string   `json:"launchedBy,omitempty"`
	CredentialSource     string   `json:"credentialSource,omitempty"`
	MovedOutOfQuietHours bool     `json:"movedOutOfQuietHours,omitempty"`
	Clicks               int      `json:"clicks,omitempty"`
	Leads                int      `json:"leads,omitempty"`
	Conversions          int      `json:"conversions,omitempty"`
}

// PromotionEvent is immutable once written. Readers (daily-cap counters,
// duplicate checks) rely on insert-time ordering per campaign.
type PromotionEvent struct {
	ID         string
	CampaignID string
	Type       EventType
	Attributes EventAttributes
	CreatedAt  time.Time
}

// ChannelCompatibility grades how well a domain works on a channel.
type ChannelCompatibility string

const (
	CompatibilitySupported ChannelCompatibility = "supported"
	CompatibilityLimited   ChannelCompatibility = "limited"
	CompatibilityBlocked   ChannelCompatibility = "blocked"
)

// ChannelProfile is the per (domain, channel) publishing profile.
// Quiet hours are UTC hours 0-23 and may wrap around midnight.
type ChannelProfile struct {
	DomainID         string
	Channel          Channel
	Enabled          bool
	Compatibility    ChannelCompatibility
	DailyCap         int // 0 = no channel-specific cap
	QuietHoursStart  *int
	QuietHoursEnd    *int
	MinJitterMinutes int
	MaxJitterMinutes int
}

// MediaAsset is a stored creative asset. Blob storage itself is external;
// only metadata and usage counts live here.
type MediaAsset struct {
	ID         string
	Type       string // image, video
	URL        string
	UsageCount int
	DeletedAt  *time.Time
	CreatedAt  time.Time
}

// MediaUsage records one use of an asset by a publish.
type MediaUsage struct {
	ID         string
	AssetID    string
	CampaignID string
	Channel    Channel
	CreatedAt  time.Time
}

// ModerationTask is a pending human review of a media asset.
type ModerationTask struct {
	ID        string
	AssetID   string
	UserID    string
	Status    string // pending, resolved
	CreatedAt time.Time
}
