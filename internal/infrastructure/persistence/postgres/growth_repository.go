package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/draftpress/draftpress/internal/application/growth"
	"github.com/draftpress/draftpress/internal/domain"
)

// CampaignRepository persists promotion campaigns.
type CampaignRepository struct {
	s *Store
}

func (r *CampaignRepository) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.s.db.QueryRow(ctx, `
		SELECT id, domain_research_id, channels, budget, daily_cap, status, metrics, created_at
		FROM promotion_campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.DomainResearchID, &c.Channels, &c.Budget,
		&c.DailyCap, &c.Status, &c.Metrics, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	tag, err := r.s.db.Exec(ctx,
		`UPDATE promotion_campaigns SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
	}
	return nil
}

func (r *CampaignRepository) UpdateMetrics(ctx context.Context, id string, metrics domain.CampaignMetrics) error {
	tag, err := r.s.db.Exec(ctx,
		`UPDATE promotion_campaigns SET metrics = $2 WHERE id = $1`, id, metrics)
	if err != nil {
		return fmt.Errorf("failed to update campaign metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
	}
	return nil
}

// PromotionEventRepository appends and aggregates the promotion event log.
// Every counter is a single SQL aggregate; nothing scans events row by row.
type PromotionEventRepository struct {
	s *Store
}

func (r *PromotionEventRepository) Record(ctx context.Context, event domain.PromotionEvent) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO promotion_events (id, campaign_id, type, attributes, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, event.ID, event.CampaignID, event.Type, event.Attributes)
	if err != nil {
		return fmt.Errorf("failed to record promotion event: %w", err)
	}
	return nil
}

func (r *PromotionEventRepository) CountPublished(ctx context.Context, campaignID string, channel *domain.Channel, since time.Time) (int, error) {
	var count int
	err := r.s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM promotion_events
		WHERE campaign_id = $1
		  AND type = 'published'
		  AND created_at >= $2
		  AND ($3::text IS NULL OR attributes->>'channel' = $3)
	`, campaignID, since, channel).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count published events: %w", err)
	}
	return count, nil
}

func (r *PromotionEventRepository) HasPublishedCreative(ctx context.Context, campaignID string, channel domain.Channel, creativeHash string, since time.Time) (bool, error) {
	var exists bool
	err := r.s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM promotion_events
			WHERE campaign_id = $1
			  AND type = 'published'
			  AND attributes->>'channel' = $2
			  AND attributes->>'creativeHash' = $3
			  AND created_at >= $4
			LIMIT 1
		)
	`, campaignID, channel, creativeHash, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate creative: %w", err)
	}
	return exists, nil
}

func (r *PromotionEventRepository) HasDomainPublished(ctx context.Context, domainResearchID string, channel domain.Channel, since time.Time) (bool, error) {
	var exists bool
	err := r.s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM promotion_events e
			JOIN promotion_campaigns c ON c.id = e.campaign_id
			WHERE c.domain_research_id = $1
			  AND e.type = 'published'
			  AND e.attributes->>'channel' = $2
			  AND e.created_at >= $3
			LIMIT 1
		)
	`, domainResearchID, channel, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check domain cooldown: %w", err)
	}
	return exists, nil
}

// Aggregate rolls every event for the campaign into a metrics snapshot.
func (r *PromotionEventRepository) Aggregate(ctx context.Context, campaignID string) (*domain.CampaignMetrics, error) {
	var m domain.CampaignMetrics
	err := r.s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'published'),
			COALESCE(SUM((attributes->>'clicks')::int) FILTER (WHERE type = 'metrics_synced'), 0),
			COALESCE(SUM((attributes->>'leads')::int) FILTER (WHERE type = 'metrics_synced'), 0),
			COALESCE(SUM((attributes->>'conversions')::int) FILTER (WHERE type = 'metrics_synced'), 0),
			COUNT(*),
			MAX(created_at) FILTER (WHERE type = 'published')
		FROM promotion_events
		WHERE campaign_id = $1
	`, campaignID).Scan(&m.Published, &m.Clicks, &m.Leads, &m.Conversions,
		&m.TotalEvents, &m.LastPublishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign events: %w", err)
	}
	return &m, nil
}

// IntegrityStats aggregates publish outcomes for the alert monitors.
func (r *PromotionEventRepository) IntegrityStats(ctx context.Context, campaignID string, since time.Time) (*growth.IntegrityStats, error) {
	var stats growth.IntegrityStats
	err := r.s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'published'),
			COUNT(*) FILTER (WHERE type = 'publish_blocked'),
			COUNT(*) FILTER (WHERE type = 'published'
				AND (attributes->>'destinationRiskScore')::float8 >= 0.7)
		FROM promotion_events
		WHERE campaign_id = $1 AND created_at >= $2
	`, campaignID, since).Scan(&stats.Published, &stats.Blocked, &stats.HighRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate integrity stats: %w", err)
	}

	err = r.s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT COUNT(*) AS n FROM promotion_events
			WHERE campaign_id = $1
			  AND type = 'published'
			  AND created_at >= $2
			  AND attributes->>'destinationHost' IS NOT NULL
			GROUP BY attributes->>'destinationHost'
		) hosts
	`, campaignID, since).Scan(&stats.TopHostCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate host concentration: %w", err)
	}
	return &stats, nil
}

// ChannelProfileRepository resolves per (domain, channel) publishing profiles.
type ChannelProfileRepository struct {
	s *Store
}

func (r *ChannelProfileRepository) Get(ctx context.Context, domainID string, channel domain.Channel) (*domain.ChannelProfile, error) {
	var p domain.ChannelProfile
	err := r.s.db.QueryRow(ctx, `
		SELECT domain_id, channel, enabled, compatibility, daily_cap,
			quiet_hours_start, quiet_hours_end, min_jitter_minutes, max_jitter_minutes
		FROM domain_channel_profiles
		WHERE domain_id = $1 AND channel = $2
	`, domainID, channel).Scan(&p.DomainID, &p.Channel, &p.Enabled,
		&p.Compatibility, &p.DailyCap, &p.QuietHoursStart, &p.QuietHoursEnd,
		&p.MinJitterMinutes, &p.MaxJitterMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: profile %s/%s", domain.ErrNotFound, domainID, channel)
		}
		return nil, fmt.Errorf("failed to get channel profile: %w", err)
	}
	return &p, nil
}

// MediaRepository resolves and accounts creative assets.
type MediaRepository struct {
	s *Store
}

const mediaColumns = `id, type, url, usage_count, deleted_at, created_at`

func scanMediaAsset(row pgx.Row) (*domain.MediaAsset, error) {
	var a domain.MediaAsset
	err := row.Scan(&a.ID, &a.Type, &a.URL, &a.UsageCount, &a.DeletedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *MediaRepository) Get(ctx context.Context, id string) (*domain.MediaAsset, error) {
	asset, err := scanMediaAsset(r.s.db.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media_assets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
		}
		return nil, fmt.Errorf("failed to get media asset: %w", err)
	}
	return asset, nil
}

// LeastUsed returns the non-deleted asset of the given type with the lowest
// usage count, oldest first on ties.
func (r *MediaRepository) LeastUsed(ctx context.Context, assetType string) (*domain.MediaAsset, error) {
	asset, err := scanMediaAsset(r.s.db.QueryRow(ctx, `
		SELECT `+mediaColumns+` FROM media_assets
		WHERE type = $1 AND deleted_at IS NULL
		ORDER BY usage_count ASC, created_at ASC
		LIMIT 1
	`, assetType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no %s assets available", domain.ErrAssetNotFound, assetType)
		}
		return nil, fmt.Errorf("failed to pick least used asset: %w", err)
	}
	return asset, nil
}

// RecordUsage inserts the usage row and bumps the asset counter in one
// transaction.
func (r *MediaRepository) RecordUsage(ctx context.Context, usage domain.MediaUsage) error {
	return r.s.executeInTransaction(ctx, "record_media_usage", func(txStore *Store) error {
		_, err := txStore.db.Exec(ctx, `
			INSERT INTO media_usage (id, asset_id, campaign_id, channel, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, usage.ID, usage.AssetID, usage.CampaignID, usage.Channel)
		if err != nil {
			return fmt.Errorf("failed to insert media usage: %w", err)
		}
		_, err = txStore.db.Exec(ctx, `
			UPDATE media_assets SET usage_count = usage_count + 1 WHERE id = $1
		`, usage.AssetID)
		if err != nil {
			return fmt.Errorf("failed to bump asset usage count: %w", err)
		}
		return nil
	})
}

// PurgeDeleted removes soft-deleted assets and their usage rows.
func (r *MediaRepository) PurgeDeleted(ctx context.Context) (int64, error) {
	tag, err := r.s.db.Exec(ctx, `
		DELETE FROM media_assets WHERE deleted_at IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted media: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CredentialRepository looks up stored publishing credentials.
type CredentialRepository struct {
	s *Store
}

func (r *CredentialRepository) Lookup(ctx context.Context, campaignID string, channel domain.Channel) (string, error) {
	var credential string
	err := r.s.db.QueryRow(ctx, `
		SELECT credential FROM channel_credentials
		WHERE campaign_id = $1 AND channel = $2
	`, campaignID, channel).Scan(&credential)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: credential %s/%s", domain.ErrNotFound, campaignID, channel)
		}
		return "", fmt.Errorf("failed to look up credential: %w", err)
	}
	return credential, nil
}

// AlertRepository remembers integrity alert times per campaign.
type AlertRepository struct {
	s *Store
}

func (r *AlertRepository) LastAlertedAt(ctx context.Context, campaignID string) (*time.Time, error) {
	var at time.Time
	err := r.s.db.QueryRow(ctx, `
		SELECT last_alerted_at FROM campaign_alerts WHERE campaign_id = $1
	`, campaignID).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last alert time: %w", err)
	}
	return &at, nil
}

func (r *AlertRepository) MarkAlerted(ctx context.Context, campaignID string, at time.Time) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO campaign_alerts (campaign_id, last_alerted_at)
		VALUES ($1, $2)
		ON CONFLICT (campaign_id) DO UPDATE SET last_alerted_at = EXCLUDED.last_alerted_at
	`, campaignID, at)
	if err != nil {
		return fmt.Errorf("failed to mark campaign alerted: %w", err)
	}
	return nil
}

// ResolveDomain maps a domain research id to its linked operated domain.
func (s *Store) ResolveDomain(ctx context.Context, domainResearchID string) (string, string, error) {
	var domainID, domainName string
	err := s.db.QueryRow(ctx, `
		SELECT d.id, d.name
		FROM domain_research r
		JOIN domains d ON d.id = r.linked_domain_id
		WHERE r.id = $1
	`, domainResearchID).Scan(&domainID, &domainName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("%w: research %s has no linked domain", domain.ErrDomainNotFound, domainResearchID)
		}
		return "", "", fmt.Errorf("failed to resolve campaign domain: %w", err)
	}
	return domainID, domainName, nil
}

// ModerationRepository backs the media-review escalation sweep.
type ModerationRepository struct {
	s *Store
}

// UsersWithPendingModeration lists users with any pending moderation task,
// oldest task first.
func (r *ModerationRepository) UsersWithPendingModeration(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT user_id FROM media_moderation_tasks
		WHERE status = 'pending'
		GROUP BY user_id
		ORDER BY MIN(created_at) ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with pending moderation: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// newEventID mints ids for rows created inside the store itself.
func newEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}
