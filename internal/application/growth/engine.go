package growth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// FlagGrowthChannels gates the whole growth subsystem.
const FlagGrowthChannels = "growth_channels_v1"

// Queue extends the queue contract with the growth-specific idempotency and
// transactional pairing guarantees.
type Queue interface {
	worker.QueueRepository

	// HasInFlightCampaignJob reports a pending or processing job of the
	// given type whose payload carries the campaign id.
	HasInFlightCampaignJob(ctx context.Context, jobType domain.JobType, campaignID string) (bool, error)

	// EnqueueWithPromotionJob inserts the queue row and its paired
	// promotion_jobs row in one transaction.
	EnqueueWithPromotionJob(ctx context.Context, params worker.EnqueueParams, campaignID string) (string, error)
}

// CampaignPayload is the payload every growth stage carries.
type CampaignPayload struct {
	CampaignID           string `json:"campaignId"`
	CreativeHash         string `json:"creativeHash,omitempty"`
	AssetID              string `json:"assetId,omitempty"`
	Copy                 string `json:"copy,omitempty"`
	DestinationURL       string `json:"destinationUrl,omitempty"`
	LaunchedBy           string `json:"launchedBy,omitempty"`
	MovedOutOfQuietHours bool   `json:"movedOutOfQuietHours,omitempty"`
}

// Engine implements the growth publish stages: plan, per-channel publishing
// with caps/cooldowns/dedup/policy gates, and metrics sync.
type Engine struct {
	queue     Queue
	campaigns CampaignStore
	events    EventStore
	profiles  ProfileStore
	media     MediaStore
	creds     CredentialStore
	research  ResearchResolver
	alerts    AlertStore
	adapter   ChannelAdapter
	policy    PolicyEvaluator
	notify    Notifications
	flags     FeatureFlags
	cfg       config.GrowthConfig

	// newRNG is swapped in tests for deterministic schedules.
	newRNG func() *rand.Rand
}

// EngineDeps bundles the engine's stores and collaborators.
type EngineDeps struct {
	Queue     Queue
	Campaigns CampaignStore
	Events    EventStore
	Profiles  ProfileStore
	Media     MediaStore
	Creds     CredentialStore
	Research  ResearchResolver
	Alerts    AlertStore
	Adapter   ChannelAdapter
	Policy    PolicyEvaluator
	Notify    Notifications
	Flags     FeatureFlags
}

// NewEngine wires the growth engine.
func NewEngine(deps EngineDeps, cfg config.GrowthConfig) *Engine {
	return &Engine{
		queue:     deps.Queue,
		campaigns: deps.Campaigns,
		events:    deps.Events,
		profiles:  deps.Profiles,
		media:     deps.Media,
		creds:     deps.Creds,
		research:  deps.Research,
		alerts:    deps.Alerts,
		adapter:   deps.Adapter,
		policy:    deps.Policy,
		notify:    deps.Notify,
		flags:     deps.Flags,
		cfg:       cfg,
		newRNG: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// Register binds the growth stages onto the executor.
func (e *Engine) Register(ex *worker.Executor) {
	ex.Register(domain.JobCreatePromotionPlan, e.handleCreatePlan)
	ex.Register(domain.JobPublishPinterestPin, func(ctx context.Context, job *domain.Job) error {
		return e.handlePublish(ctx, job, domain.ChannelPinterest)
	})
	ex.Register(domain.JobGenerateShortScript, e.handleGenerateScript)
	ex.Register(domain.JobRenderShortVideo, e.handleRenderVideo)
	ex.Register(domain.JobPublishYouTubeShort, func(ctx context.Context, job *domain.Job) error {
		return e.handlePublish(ctx, job, domain.ChannelYouTubeShorts)
	})
	ex.Register(domain.JobSyncCampaignMetrics, e.handleSyncMetrics)
}

// EnqueueStage inserts a growth job unless an in-flight job of the same type
// already exists for the campaign. Returns the job id, or "" when suppressed.
func (e *Engine) EnqueueStage(ctx context.Context, jobType domain.JobType, payload CampaignPayload, scheduledFor *time.Time, priority int) (string, error) {
	inFlight, err := e.queue.HasInFlightCampaignJob(ctx, jobType, payload.CampaignID)
	if err != nil {
		return "", fmt.Errorf("failed to check in-flight jobs: %w", err)
	}
	if inFlight {
		slog.InfoContext(ctx, "growth enqueue suppressed, job already in flight",
			"job_type", jobType, "campaign_id", payload.CampaignID)
		return "", nil
	}

	raw, err := worker.MarshalPayload(payload)
	if err != nil {
		return "", err
	}
	id, err := e.queue.EnqueueWithPromotionJob(ctx, worker.EnqueueParams{
		Type:         jobType,
		Payload:      raw,
		Priority:     priority,
		ScheduledFor: scheduledFor,
	}, payload.CampaignID)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}
	return id, nil
}

func (e *Engine) decodePayload(job *domain.Job) (*CampaignPayload, error) {
	var p CampaignPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, worker.Fatal(domain.FailurePayloadSchema,
				fmt.Errorf("failed to decode %s payload: %w", job.Type, err))
		}
	}
	if p.CampaignID == "" {
		return nil, worker.Fatal(domain.FailurePayloadSchema,
			fmt.Errorf("%s payload has no campaign id", job.Type))
	}
	return &p, nil
}

func (e *Engine) checkFlag(ctx context.Context) error {
	if e.flags == nil {
		return nil
	}
	on, err := e.flags.IsEnabled(ctx, FlagGrowthChannels)
	if err != nil {
		return worker.Transient(err)
	}
	if !on {
		return worker.Fatal(domain.FailureFlagDisabled,
			fmt.Errorf("feature flag %s is disabled", FlagGrowthChannels))
	}
	return nil
}

// recordEvent appends to the event log. Pre-publish events must land, so the
// error propagates (retryable) to the caller.
func (e *Engine) recordEvent(ctx context.Context, campaignID string, t domain.EventType, attrs domain.EventAttributes) error {
	event := domain.PromotionEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		CampaignID: campaignID,
		Type:       t,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.events.Record(ctx, event); err != nil {
		return worker.Transient(fmt.Errorf("failed to record %s event: %w", t, err))
	}
	return nil
}

// handleCreatePlan activates the campaign and fans out per-channel publish
// chains, dropping blocked or disabled channels with plan_skipped events.
func (e *Engine) handleCreatePlan(ctx context.Context, job *domain.Job) error {
	if err := e.checkFlag(ctx); err != nil {
		return err
	}
	payload, err := e.decodePayload(job)
	if err != nil {
		return err
	}

	campaign, err := e.campaigns.Get(ctx, payload.CampaignID)
	if err != nil {
		return err
	}
	switch campaign.Status {
	case domain.CampaignDraft, domain.CampaignActive:
	default:
		return e.recordEvent(ctx, campaign.ID, domain.EventPlanSkipped,
			domain.EventAttributes{Reason: "campaign_" + string(campaign.Status)})
	}

	domainID, _, err := e.research.ResolveDomain(ctx, campaign.DomainResearchID)
	if err != nil {
		return err
	}

	if campaign.Status == domain.CampaignDraft {
		if err := e.campaigns.UpdateStatus(ctx, campaign.ID, domain.CampaignActive); err != nil {
			return worker.Transient(err)
		}
	}
	if err := e.recordEvent(ctx, campaign.ID, domain.EventPlanCreated,
		domain.EventAttributes{LaunchedBy: payload.LaunchedBy}); err != nil {
		return err
	}

	rng := e.newRNG()
	for _, channel := range channelsOf(campaign) {
		profile, perr := e.loadProfile(ctx, domainID, channel)
		if perr != nil {
			return perr
		}
		if reason := channelGateReason(profile); reason != "" {
			if err := e.recordEvent(ctx, campaign.ID, domain.EventPlanSkipped,
				domain.EventAttributes{Channel: channel, Reason: reason}); err != nil {
				return err
			}
			continue
		}

		next := CampaignPayload{CampaignID: campaign.ID, LaunchedBy: payload.LaunchedBy}
		switch channel {
		case domain.ChannelPinterest:
			sched := ComputeSchedule(profile, e.cfg, time.Now(), rng)
			next.MovedOutOfQuietHours = sched.MovedOutOfQuietHours
			if _, err := e.EnqueueStage(ctx, domain.JobPublishPinterestPin, next, &sched.At, job.Priority); err != nil {
				return err
			}
		case domain.ChannelYouTubeShorts:
			if _, err := e.EnqueueStage(ctx, domain.JobGenerateShortScript, next, nil, job.Priority); err != nil {
				return err
			}
		default:
			slog.WarnContext(ctx, "unknown growth channel in campaign",
				"campaign_id", campaign.ID, "channel", channel)
		}
	}
	return nil
}

// handleGenerateScript records the script stage and chains to rendering. The
// script content itself comes from an external collaborator; the queue only
// tracks progress.
func (e *Engine) handleGenerateScript(ctx context.Context, job *domain.Job) error {
	payload, err := e.decodePayload(job)
	if err != nil {
		return err
	}
	if err := e.recordEvent(ctx, payload.CampaignID, domain.EventScriptGenerated,
		domain.EventAttributes{Channel: domain.ChannelYouTubeShorts}); err != nil {
		return err
	}
	_, err = e.EnqueueStage(ctx, domain.JobRenderShortVideo, *payload, nil, job.Priority)
	return err
}

// handleRenderVideo records the render stage and schedules the publish with
// quiet-hour aware jitter.
func (e *Engine) handleRenderVideo(ctx context.Context, job *domain.Job) error {
	payload, err := e.decodePayload(job)
	if err != nil {
		return err
	}
	campaign, err := e.campaigns.Get(ctx, payload.CampaignID)
	if err != nil {
		return err
	}
	domainID, _, err := e.research.ResolveDomain(ctx, campaign.DomainResearchID)
	if err != nil {
		return err
	}

	if err := e.recordEvent(ctx, campaign.ID, domain.EventVideoRendered,
		domain.EventAttributes{Channel: domain.ChannelYouTubeShorts}); err != nil {
		return err
	}

	profile, err := e.loadProfile(ctx, domainID, domain.ChannelYouTubeShorts)
	if err != nil {
		return err
	}
	sched := ComputeSchedule(profile, e.cfg, time.Now(), e.newRNG())
	payload.MovedOutOfQuietHours = sched.MovedOutOfQuietHours
	_, err = e.EnqueueStage(ctx, domain.JobPublishYouTubeShort, *payload, &sched.At, job.Priority)
	return err
}

// handleSyncMetrics rolls the campaign's event log into its metrics snapshot
// with a single aggregate query.
func (e *Engine) handleSyncMetrics(ctx context.Context, job *domain.Job) error {
	payload, err := e.decodePayload(job)
	if err != nil {
		return err
	}

	metrics, err := e.events.Aggregate(ctx, payload.CampaignID)
	if err != nil {
		return worker.Transient(err)
	}
	now := time.Now().UTC()
	metrics.SyncedAt = &now
	if err := e.campaigns.UpdateMetrics(ctx, payload.CampaignID, *metrics); err != nil {
		return worker.Transient(err)
	}
	return e.recordEvent(ctx, payload.CampaignID, domain.EventMetricsSynced, domain.EventAttributes{
		Clicks:      metrics.Clicks,
		Leads:       metrics.Leads,
		Conversions: metrics.Conversions,
	})
}

// loadProfile returns the stored channel profile, or a permissive default
// when the domain has none.
func (e *Engine) loadProfile(ctx context.Context, domainID string, channel domain.Channel) (*domain.ChannelProfile, error) {
	profile, err := e.profiles.Get(ctx, domainID, channel)
	if err != nil {
		if isNotFound(err) {
			return &domain.ChannelProfile{
				DomainID:      domainID,
				Channel:       channel,
				Enabled:       true,
				Compatibility: domain.CompatibilitySupported,
			}, nil
		}
		return nil, worker.Transient(err)
	}
	return profile, nil
}

func channelGateReason(profile *domain.ChannelProfile) string {
	if !profile.Enabled {
		return "channel_disabled"
	}
	if profile.Compatibility == domain.CompatibilityBlocked {
		return "channel_blocked"
	}
	return ""
}

// resolveAsset picks the explicit asset when the payload names one, otherwise
// the least-used live asset of the channel's type.
func (e *Engine) resolveAsset(ctx context.Context, payload *CampaignPayload, channel domain.Channel) (*domain.MediaAsset, error) {
	if e.media == nil {
		return nil, nil
	}
	if payload.AssetID != "" {
		asset, err := e.media.Get(ctx, payload.AssetID)
		if err != nil {
			return nil, err
		}
		return asset, nil
	}
	asset, err := e.media.LeastUsed(ctx, assetTypeFor(channel))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, worker.Transient(err)
	}
	return asset, nil
}

func assetTypeFor(channel domain.Channel) string {
	if channel == domain.ChannelYouTubeShorts {
		return "video"
	}
	return "image"
}

// resolveCredential prefers a stored per-campaign credential over the
// process environment.
func (e *Engine) resolveCredential(ctx context.Context, campaignID string, channel domain.Channel) (credential, source string, err error) {
	if e.creds != nil {
		cred, err := e.creds.Lookup(ctx, campaignID, channel)
		if err == nil && cred != "" {
			return cred, "stored", nil
		}
		if err != nil && !isNotFound(err) {
			return "", "", worker.Transient(err)
		}
	}
	envKey := "GROWTH_PINTEREST_CREDENTIAL"
	if channel == domain.ChannelYouTubeShorts {
		envKey = "GROWTH_YOUTUBE_CREDENTIAL"
	}
	if cred := os.Getenv(envKey); cred != "" {
		return cred, "environment", nil
	}
	return "", "", worker.Fatal(domain.FailureValidation,
		fmt.Errorf("no credential available for channel %s", channel))
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAssetNotFound) ||
		errors.Is(err, domain.ErrCampaignNotFound)
}

// channelsOf lists the channels a campaign plans to use, deduplicated.
func channelsOf(c *domain.Campaign) []domain.Channel {
	return lo.Uniq(c.Channels)
}
