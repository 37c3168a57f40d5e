package growth

import (
	"context"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// CampaignStore is the campaign persistence the engine needs.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error
	UpdateMetrics(ctx context.Context, id string, metrics domain.CampaignMetrics) error
}

// EventStore reads and appends the promotion event log. All counting queries
// are single aggregates; production paths never scan events row by row.
type EventStore interface {
	Record(ctx context.Context, event domain.PromotionEvent) error

	// CountPublished counts published events for a campaign since the
	// cutoff, optionally restricted to one channel.
	CountPublished(ctx context.Context, campaignID string, channel *domain.Channel, since time.Time) (int, error)

	// HasPublishedCreative reports a published event with the same channel
	// and creative hash for this campaign since the cutoff.
	HasPublishedCreative(ctx context.Context, campaignID string, channel domain.Channel, creativeHash string, since time.Time) (bool, error)

	// HasDomainPublished reports a published event on the channel for any
	// campaign sharing the domain research id since the cutoff.
	HasDomainPublished(ctx context.Context, domainResearchID string, channel domain.Channel, since time.Time) (bool, error)

	// Aggregate rolls every event for the campaign into a metrics snapshot.
	Aggregate(ctx context.Context, campaignID string) (*domain.CampaignMetrics, error)

	// IntegrityStats aggregates publish outcomes for the alert monitors.
	IntegrityStats(ctx context.Context, campaignID string, since time.Time) (*IntegrityStats, error)
}

// IntegrityStats is the windowed aggregate behind the integrity monitors.
type IntegrityStats struct {
	Published    int
	Blocked      int
	HighRisk     int
	TopHostCount int // published events on the single most frequent destination host
}

// ProfileStore resolves the per (domain, channel) publishing profile.
// domain.ErrNotFound means no profile row; the engine falls back to defaults.
type ProfileStore interface {
	Get(ctx context.Context, domainID string, channel domain.Channel) (*domain.ChannelProfile, error)
}

// MediaStore resolves and accounts creative assets.
type MediaStore interface {
	Get(ctx context.Context, id string) (*domain.MediaAsset, error)

	// LeastUsed returns the non-deleted asset of the given type with the
	// lowest usage count.
	LeastUsed(ctx context.Context, assetType string) (*domain.MediaAsset, error)

	// RecordUsage inserts a usage row and bumps the asset usage counter.
	RecordUsage(ctx context.Context, usage domain.MediaUsage) error
}

// CredentialStore looks up a stored publishing credential for a campaign.
// domain.ErrNotFound falls back to the environment credential.
type CredentialStore interface {
	Lookup(ctx context.Context, campaignID string, channel domain.Channel) (string, error)
}

// ResearchResolver maps a campaign's domain research id to the operated
// domain, for channel profiles and creative hashing.
type ResearchResolver interface {
	ResolveDomain(ctx context.Context, domainResearchID string) (domainID, domainName string, err error)
}

// AlertStore remembers when a campaign last fired an integrity alert so each
// window alerts at most once.
type AlertStore interface {
	LastAlertedAt(ctx context.Context, campaignID string) (*time.Time, error)
	MarkAlerted(ctx context.Context, campaignID string, at time.Time) error
}

// PublishRequest is what the channel adapter receives.
type PublishRequest struct {
	CampaignID     string
	Copy           string
	DestinationURL string
	AssetURL       string
}

// PublishResult is the adapter's report of an accepted publish.
type PublishResult struct {
	ExternalPostID string
	Status         string
	Metadata       map[string]string
}

// ChannelAdapter publishes creative to an external channel.
type ChannelAdapter interface {
	Publish(ctx context.Context, channel domain.Channel, req PublishRequest, credential string) (*PublishResult, error)
}

// PolicyInput is the copy and destination under policy evaluation.
type PolicyInput struct {
	Channel        domain.Channel
	Copy           string
	DestinationURL string
}

// PolicyResult is the policy evaluator's verdict.
type PolicyResult struct {
	Allowed              bool
	NormalizedCopy       string
	Warnings             []string
	Changes              []string
	BlockReasons         []string
	DestinationHost      string
	DestinationRiskScore float64
	PolicyPackID         string
	PolicyPackVersion    string
	ChecksApplied        []string
}

// PolicyEvaluator gates copy and destination URLs before publishing.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input PolicyInput) (*PolicyResult, error)
}

// Notifications is the fire-and-forget operator notification hook.
type Notifications interface {
	Create(ctx context.Context, kind, message string) error
}

// FeatureFlags gates whole subsystems.
type FeatureFlags interface {
	IsEnabled(ctx context.Context, flag string) (bool, error)
}
