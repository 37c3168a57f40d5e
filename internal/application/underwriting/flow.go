package underwriting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

// FlagUnderwriting gates the whole acquisition chain.
const FlagUnderwriting = "acquisition_underwriting_v1"

// PreviewTTL keeps a candidate's preview build alive after a score.
const PreviewTTL = 72 * time.Hour

// Decision thresholds applied on top of the evaluator recommendation.
const (
	buyConfidenceFloor = 0.7
	buyRiskCeiling     = 0.6
)

// Listing is one normalized marketplace candidate in an ingest payload.
type Listing struct {
	Domain        string     `json:"domain"`
	TLD           string     `json:"tld"`
	BuyNowPrice   float64    `json:"buyNowPrice,omitempty"`
	CurrentBid    float64    `json:"currentBid,omitempty"`
	AuctionEndsAt *time.Time `json:"auctionEndsAt,omitempty"`
}

// IngestPayload is the ingest_listings job payload.
type IngestPayload struct {
	Listings []Listing `json:"listings"`
}

// ResearchPayload is what the later stages carry.
type ResearchPayload struct {
	DomainResearchID string `json:"domainResearchId"`
}

// Flow implements the acquisition underwriting chain: ingest listings,
// enrich, score, and plan bids. Every stage is idempotent by refusing to
// enqueue while a job of the same type is in flight for the same candidate.
type Flow struct {
	queue    Queue
	research ResearchStore
	reviews  ReviewTaskStore
	previews PreviewBuildStore
	events   EventStore
	eval     Evaluator
	flags    FeatureFlags
}

// NewFlow wires the underwriting flow.
func NewFlow(queue Queue, research ResearchStore, reviews ReviewTaskStore, previews PreviewBuildStore, events EventStore, eval Evaluator, flags FeatureFlags) *Flow {
	return &Flow{
		queue:    queue,
		research: research,
		reviews:  reviews,
		previews: previews,
		events:   events,
		eval:     eval,
		flags:    flags,
	}
}

// Register binds the underwriting stages onto the executor.
func (f *Flow) Register(e *worker.Executor) {
	e.Register(domain.JobIngestListings, f.handleIngestListings)
	e.Register(domain.JobEnrichCandidate, f.handleEnrichCandidate)
	e.Register(domain.JobScoreCandidate, f.handleScoreCandidate)
	e.Register(domain.JobCreateBidPlan, f.handleCreateBidPlan)
}

func (f *Flow) checkFlag(ctx context.Context) error {
	if f.flags == nil {
		return nil
	}
	on, err := f.flags.IsEnabled(ctx, FlagUnderwriting)
	if err != nil {
		return worker.Transient(err)
	}
	if !on {
		return worker.Fatal(domain.FailureFlagDisabled,
			fmt.Errorf("feature flag %s is disabled", FlagUnderwriting))
	}
	return nil
}

// enqueueStage inserts the next chain stage unless one is already in flight
// for the candidate.
func (f *Flow) enqueueStage(ctx context.Context, jobType domain.JobType, researchID string, priority int) error {
	inFlight, err := f.queue.HasInFlightResearchJob(ctx, jobType, researchID)
	if err != nil {
		return worker.Transient(err)
	}
	if inFlight {
		slog.InfoContext(ctx, "underwriting enqueue suppressed, job already in flight",
			"job_type", jobType, "domain_research_id", researchID)
		return nil
	}
	raw, err := worker.MarshalPayload(ResearchPayload{DomainResearchID: researchID})
	if err != nil {
		return err
	}
	if _, err := f.queue.Enqueue(ctx, worker.EnqueueParams{
		Type:     jobType,
		Payload:  raw,
		Priority: priority,
	}); err != nil {
		return worker.Transient(err)
	}
	return nil
}

func (f *Flow) logEvent(ctx context.Context, researchID, eventType, message string) {
	event := domain.AcquisitionEvent{
		ID:               uuid.Must(uuid.NewV7()).String(),
		DomainResearchID: researchID,
		Type:             eventType,
		Message:          message,
		CreatedAt:        time.Now().UTC(),
	}
	if err := f.events.Record(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to record acquisition event",
			"domain_research_id", researchID, "event_type", eventType, "error", err)
	}
}

// handleIngestListings normalizes candidates into domain_research rows and
// starts enrichment for each. Upserts conflict on domain, so a re-run updates
// rather than duplicates.
func (f *Flow) handleIngestListings(ctx context.Context, job *domain.Job) error {
	if err := f.checkFlag(ctx); err != nil {
		return err
	}
	var payload IngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return worker.Fatal(domain.FailurePayloadSchema,
			fmt.Errorf("failed to decode ingest payload: %w", err))
	}
	if len(payload.Listings) == 0 {
		return worker.Fatal(domain.FailureValidation,
			fmt.Errorf("ingest payload has no listings"))
	}

	for _, listing := range payload.Listings {
		if listing.Domain == "" {
			slog.WarnContext(ctx, "skipping listing without a domain")
			continue
		}
		row, err := f.research.Upsert(ctx, &domain.DomainResearch{
			ID:            uuid.Must(uuid.NewV7()).String(),
			Domain:        listing.Domain,
			TLD:           listing.TLD,
			BuyNowPrice:   listing.BuyNowPrice,
			CurrentBid:    listing.CurrentBid,
			AuctionEndsAt: listing.AuctionEndsAt,
			Decision:      domain.DecisionResearching,
		})
		if err != nil {
			return worker.Transient(fmt.Errorf("failed to upsert %s: %w", listing.Domain, err))
		}

		f.logEvent(ctx, row.ID, "ingested", fmt.Sprintf("listing %s ingested", row.Domain))
		if err := f.enqueueStage(ctx, domain.JobEnrichCandidate, row.ID, job.Priority); err != nil {
			return err
		}
	}
	return nil
}

// handleEnrichCandidate runs the evaluator and stores its snapshot.
func (f *Flow) handleEnrichCandidate(ctx context.Context, job *domain.Job) error {
	if err := f.checkFlag(ctx); err != nil {
		return err
	}
	research, err := f.loadResearch(ctx, job)
	if err != nil {
		return err
	}

	eval, err := f.eval.EvaluateDomain(ctx, research.Domain)
	if err != nil {
		return err
	}
	research.Evaluation = eval
	if eval.HardFailReason != "" {
		research.HardFailReason = eval.HardFailReason
		f.logEvent(ctx, research.ID, "hard_fail", eval.HardFailReason)
	} else {
		f.logEvent(ctx, research.ID, "enriched",
			fmt.Sprintf("composite %.2f confidence %.2f", eval.CompositeScore, eval.Confidence))
	}
	research.UnderwritingVersion++
	if err := f.research.Update(ctx, research); err != nil {
		return worker.Transient(err)
	}

	return f.enqueueStage(ctx, domain.JobScoreCandidate, research.ID, job.Priority)
}

// handleScoreCandidate turns the evaluation snapshot into a decision, keeps
// the human review task and preview build in sync, and chains the bid plan
// unless the candidate hard-failed.
func (f *Flow) handleScoreCandidate(ctx context.Context, job *domain.Job) error {
	if err := f.checkFlag(ctx); err != nil {
		return err
	}
	research, err := f.loadResearch(ctx, job)
	if err != nil {
		return err
	}
	if research.Evaluation == nil {
		return worker.Fatal(domain.FailureValidation,
			fmt.Errorf("candidate %s scored before enrichment", research.ID))
	}

	decision := decide(research)
	research.Decision = decision
	if err := f.research.Update(ctx, research); err != nil {
		return worker.Transient(err)
	}

	if decision == domain.DecisionBuy {
		if err := f.reviews.EnsurePending(ctx, research.ID, buyChecklist(research)); err != nil {
			return worker.Transient(err)
		}
	} else {
		if err := f.reviews.CancelPending(ctx, research.ID); err != nil {
			return worker.Transient(err)
		}
	}

	switch decision {
	case domain.DecisionBuy, domain.DecisionWatchlist:
		expires := time.Now().UTC().Add(PreviewTTL)
		if err := f.previews.Refresh(ctx, research.ID, expires); err != nil {
			slog.WarnContext(ctx, "failed to refresh preview build",
				"domain_research_id", research.ID, "error", err)
		}
	default:
		if err := f.previews.Expire(ctx, research.ID); err != nil {
			slog.WarnContext(ctx, "failed to expire preview build",
				"domain_research_id", research.ID, "error", err)
		}
	}

	f.logEvent(ctx, research.ID, "scored", fmt.Sprintf("decision %s", decision))
	if research.HardFailReason != "" {
		return nil
	}
	return f.enqueueStage(ctx, domain.JobCreateBidPlan, research.ID, job.Priority)
}

// decide maps the evaluator recommendation plus confidence and risk
// thresholds onto an underwriting decision. Hard fails always pass.
func decide(research *domain.DomainResearch) domain.Decision {
	if research.HardFailReason != "" {
		return domain.DecisionPass
	}
	eval := research.Evaluation
	switch eval.Recommendation {
	case "buy":
		if eval.Confidence >= buyConfidenceFloor && eval.RiskScore <= buyRiskCeiling {
			return domain.DecisionBuy
		}
		return domain.DecisionWatchlist
	case "watchlist":
		return domain.DecisionWatchlist
	}
	return domain.DecisionPass
}

func buyChecklist(research *domain.DomainResearch) []string {
	return []string{
		fmt.Sprintf("verify registrar transfer lock status for %s", research.Domain),
		"run trademark conflict search",
		"audit backlink profile for spam history",
		"confirm max bid against evaluation snapshot",
	}
}

// handleCreateBidPlan converts the snapshot into a concrete bidding
// instruction using the price-banded increment table.
func (f *Flow) handleCreateBidPlan(ctx context.Context, job *domain.Job) error {
	if err := f.checkFlag(ctx); err != nil {
		return err
	}
	research, err := f.loadResearch(ctx, job)
	if err != nil {
		return err
	}

	plan := PlanBid(research)
	if err := f.research.SaveBidPlan(ctx, research.ID, plan); err != nil {
		return worker.Transient(err)
	}

	f.logEvent(ctx, research.ID, "bid_planned",
		fmt.Sprintf("action %s max %.2f increment %.2f", plan.Action, plan.MaxBid, plan.Increment))
	return nil
}

// PlanBid derives the bidding action from the decision and prices.
func PlanBid(research *domain.DomainResearch) domain.BidPlan {
	switch research.Decision {
	case domain.DecisionBuy:
		maxBid := 0.0
		if research.Evaluation != nil {
			maxBid = research.Evaluation.MaxBid
		}
		if research.BuyNowPrice > 0 && maxBid >= research.BuyNowPrice {
			return domain.BidPlan{Action: domain.BidBuyNow, MaxBid: research.BuyNowPrice}
		}
		return domain.BidPlan{
			Action:    domain.BidAuctionBid,
			MaxBid:    maxBid,
			Increment: BidIncrement(research.CurrentBid),
		}
	case domain.DecisionWatchlist:
		return domain.BidPlan{Action: domain.BidWatchlist}
	}
	return domain.BidPlan{Action: domain.BidPass}
}

// BidIncrement is the price-banded auction increment table.
func BidIncrement(price float64) float64 {
	switch {
	case price < 50:
		return 5
	case price < 200:
		return 10
	case price < 500:
		return 25
	}
	return 50
}

func (f *Flow) loadResearch(ctx context.Context, job *domain.Job) (*domain.DomainResearch, error) {
	var payload ResearchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, worker.Fatal(domain.FailurePayloadSchema,
			fmt.Errorf("failed to decode %s payload: %w", job.Type, err))
	}
	if payload.DomainResearchID == "" {
		return nil, worker.Fatal(domain.FailurePayloadSchema,
			fmt.Errorf("%s payload has no domain research id", job.Type))
	}
	return f.research.Get(ctx, payload.DomainResearchID)
}
