package growth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

// handlePublish runs one publish attempt through the ordered gate chain:
// campaign active, channel allowed, campaign cap, channel cap, duplicate
// creative, domain cooldown, policy. The first negative result records its
// event and ends the job without touching the adapter.
func (e *Engine) handlePublish(ctx context.Context, job *domain.Job, channel domain.Channel) error {
	payload, err := e.decodePayload(job)
	if err != nil {
		return err
	}

	campaign, err := e.campaigns.Get(ctx, payload.CampaignID)
	if err != nil {
		return err
	}
	if campaign.Status != domain.CampaignActive {
		return e.skip(ctx, campaign.ID, channel, "campaign_not_active")
	}

	domainID, domainName, err := e.research.ResolveDomain(ctx, campaign.DomainResearchID)
	if err != nil {
		return err
	}
	profile, err := e.loadProfile(ctx, domainID, channel)
	if err != nil {
		return err
	}
	if reason := channelGateReason(profile); reason != "" {
		return e.skip(ctx, campaign.ID, channel, reason)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	campaignCap := campaign.DailyCap
	if campaignCap < e.cfg.DefaultDailyCap {
		campaignCap = e.cfg.DefaultDailyCap
	}
	publishedToday, err := e.events.CountPublished(ctx, campaign.ID, nil, dayStart)
	if err != nil {
		return worker.Transient(err)
	}
	if publishedToday >= campaignCap {
		return e.skip(ctx, campaign.ID, channel, "daily_cap_reached")
	}

	if profile.DailyCap > 0 {
		channelToday, err := e.events.CountPublished(ctx, campaign.ID, &channel, dayStart)
		if err != nil {
			return worker.Transient(err)
		}
		if channelToday >= profile.DailyCap {
			return e.skip(ctx, campaign.ID, channel, "channel_daily_cap_reached")
		}
	}

	hash := payload.CreativeHash
	if hash == "" {
		hash = CreativeHash(campaign.ID, domainName, channel, now)
	}
	cooldownStart := now.Add(-time.Duration(e.cfg.CooldownHours) * time.Hour)

	dup, err := e.events.HasPublishedCreative(ctx, campaign.ID, channel, hash, cooldownStart)
	if err != nil {
		return worker.Transient(err)
	}
	if dup {
		return e.skip(ctx, campaign.ID, channel, "duplicate_creative")
	}

	domainBusy, err := e.events.HasDomainPublished(ctx, campaign.DomainResearchID, channel, cooldownStart)
	if err != nil {
		return worker.Transient(err)
	}
	if domainBusy {
		return e.skip(ctx, campaign.ID, channel, "domain_cooldown")
	}

	copyText := payload.Copy
	if copyText == "" {
		copyText = fmt.Sprintf("New on %s", domainName)
	}
	destination := payload.DestinationURL
	if destination == "" {
		destination = "https://" + domainName
	}

	verdict, err := e.policy.Evaluate(ctx, PolicyInput{
		Channel:        channel,
		Copy:           copyText,
		DestinationURL: destination,
	})
	if err != nil {
		return worker.Transient(err)
	}
	if !verdict.Allowed {
		return e.blocked(ctx, job, campaign.ID, channel, hash, verdict)
	}
	if verdict.NormalizedCopy != "" {
		copyText = verdict.NormalizedCopy
	}

	asset, err := e.resolveAsset(ctx, payload, channel)
	if err != nil {
		return err
	}
	credential, credSource, err := e.resolveCredential(ctx, campaign.ID, channel)
	if err != nil {
		return err
	}

	req := PublishRequest{
		CampaignID:     campaign.ID,
		Copy:           copyText,
		DestinationURL: destination,
	}
	var assetID string
	if asset != nil {
		req.AssetURL = asset.URL
		assetID = asset.ID
	}

	result, err := e.adapter.Publish(ctx, channel, req, credential)
	if err != nil {
		return err
	}

	attrs := domain.EventAttributes{
		Channel:              channel,
		CreativeHash:         hash,
		AssetID:              assetID,
		DestinationHost:      verdict.DestinationHost,
		DestinationRiskScore: verdict.DestinationRiskScore,
		Warnings:             verdict.Warnings,
		PolicyPackID:         verdict.PolicyPackID,
		PolicyPackVersion:    verdict.PolicyPackVersion,
		ChecksApplied:        verdict.ChecksApplied,
		ExternalPostID:       result.ExternalPostID,
		PublishStatus:        result.Status,
		LaunchedBy:           payload.LaunchedBy,
		CredentialSource:     credSource,
		MovedOutOfQuietHours: payload.MovedOutOfQuietHours,
	}
	// The external post exists now; bookkeeping failures must not retry the
	// job into a double publish.
	if err := e.recordEvent(ctx, campaign.ID, domain.EventPublished, attrs); err != nil {
		slog.ErrorContext(ctx, "published but failed to record event",
			"campaign_id", campaign.ID, "channel", channel, "error", err)
	}
	if asset != nil {
		usage := domain.MediaUsage{
			ID:         uuid.Must(uuid.NewV7()).String(),
			AssetID:    asset.ID,
			CampaignID: campaign.ID,
			Channel:    channel,
			CreatedAt:  now,
		}
		if err := e.media.RecordUsage(ctx, usage); err != nil {
			slog.WarnContext(ctx, "failed to track media usage",
				"asset_id", asset.ID, "error", err)
		}
	}

	if _, err := e.EnqueueStage(ctx, domain.JobSyncCampaignMetrics,
		CampaignPayload{CampaignID: campaign.ID}, nil, job.Priority); err != nil {
		slog.WarnContext(ctx, "failed to enqueue metrics sync",
			"campaign_id", campaign.ID, "error", err)
	}

	e.evaluateIntegrity(ctx, campaign.ID)
	slog.InfoContext(ctx, "growth publish succeeded",
		"campaign_id", campaign.ID,
		"channel", channel,
		"external_post_id", result.ExternalPostID,
		"credential_source", credSource)
	return nil
}

// skip records a publish_skipped event and completes the job.
func (e *Engine) skip(ctx context.Context, campaignID string, channel domain.Channel, reason string) error {
	slog.InfoContext(ctx, "growth publish skipped",
		"campaign_id", campaignID, "channel", channel, "reason", reason)
	return e.recordEvent(ctx, campaignID, domain.EventPublishSkipped,
		domain.EventAttributes{Channel: channel, Reason: reason})
}

// blocked records the policy block, schedules a metrics sync, notifies on
// destination-quality blocks, and re-evaluates integrity.
func (e *Engine) blocked(ctx context.Context, job *domain.Job, campaignID string, channel domain.Channel, hash string, verdict *PolicyResult) error {
	if err := e.recordEvent(ctx, campaignID, domain.EventPublishBlocked, domain.EventAttributes{
		Channel:              channel,
		CreativeHash:         hash,
		BlockReasons:         verdict.BlockReasons,
		Warnings:             verdict.Warnings,
		DestinationHost:      verdict.DestinationHost,
		DestinationRiskScore: verdict.DestinationRiskScore,
		PolicyPackID:         verdict.PolicyPackID,
		PolicyPackVersion:    verdict.PolicyPackVersion,
		ChecksApplied:        verdict.ChecksApplied,
	}); err != nil {
		return err
	}

	if _, err := e.EnqueueStage(ctx, domain.JobSyncCampaignMetrics,
		CampaignPayload{CampaignID: campaignID}, nil, job.Priority); err != nil {
		slog.WarnContext(ctx, "failed to enqueue metrics sync after block",
			"campaign_id", campaignID, "error", err)
	}

	if e.notify != nil && hasDestinationBlock(verdict.BlockReasons) {
		msg := fmt.Sprintf("publish blocked for campaign %s on %s: %s",
			campaignID, channel, strings.Join(verdict.BlockReasons, "; "))
		if err := e.notify.Create(ctx, "growth_publish_blocked", msg); err != nil {
			slog.WarnContext(ctx, "failed to create block notification", "error", err)
		}
	}

	e.evaluateIntegrity(ctx, campaignID)
	return nil
}

func hasDestinationBlock(reasons []string) bool {
	for _, r := range reasons {
		if strings.Contains(r, "destination") {
			return true
		}
	}
	return false
}

// evaluateIntegrity checks blocked-rate, high-risk-rate, and destination-host
// concentration over the alert window; a campaign alerts at most once per
// window. Never fails the job.
func (e *Engine) evaluateIntegrity(ctx context.Context, campaignID string) {
	if e.alerts == nil {
		return
	}
	now := time.Now().UTC()
	window := time.Duration(e.cfg.IntegrityWindowHours) * time.Hour
	since := now.Add(-window)

	stats, err := e.events.IntegrityStats(ctx, campaignID, since)
	if err != nil {
		slog.WarnContext(ctx, "integrity stats query failed",
			"campaign_id", campaignID, "error", err)
		return
	}

	total := stats.Published + stats.Blocked
	if total < e.cfg.IntegrityMinSamples {
		return
	}

	var reasons []string
	if rate := float64(stats.Blocked) / float64(total); rate > e.cfg.IntegrityBlockedRateThreshold {
		reasons = append(reasons, fmt.Sprintf("blocked rate %.2f", rate))
	}
	if rate := float64(stats.HighRisk) / float64(total); rate > e.cfg.IntegrityHighRiskRateThreshold {
		reasons = append(reasons, fmt.Sprintf("high-risk rate %.2f", rate))
	}
	if stats.Published > 0 {
		if ratio := float64(stats.TopHostCount) / float64(stats.Published); ratio >= e.cfg.IntegrityHostConcentration {
			reasons = append(reasons, fmt.Sprintf("host concentration %.2f", ratio))
		}
	}
	if len(reasons) == 0 {
		return
	}

	last, err := e.alerts.LastAlertedAt(ctx, campaignID)
	if err != nil {
		slog.WarnContext(ctx, "integrity alert lookup failed",
			"campaign_id", campaignID, "error", err)
		return
	}
	if last != nil && last.After(since) {
		return
	}

	msg := fmt.Sprintf("integrity alert for campaign %s: %s", campaignID, strings.Join(reasons, ", "))
	if e.notify != nil {
		if err := e.notify.Create(ctx, "growth_integrity_alert", msg); err != nil {
			slog.WarnContext(ctx, "failed to create integrity alert", "error", err)
			return
		}
	}
	if err := e.alerts.MarkAlerted(ctx, campaignID, now); err != nil {
		slog.WarnContext(ctx, "failed to mark integrity alert", "error", err)
	}
	slog.WarnContext(ctx, "growth integrity alert fired",
		"campaign_id", campaignID, "reasons", strings.Join(reasons, ", "))
}
