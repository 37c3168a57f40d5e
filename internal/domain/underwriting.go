package domain

import "time"

// Decision is the underwriting outcome for a candidate domain.
type Decision string

const (
	DecisionResearching Decision = "researching"
	DecisionBuy         Decision = "buy"
	DecisionWatchlist   Decision = "watchlist"
	DecisionPass        Decision = "pass"
	DecisionBought      Decision = "bought"
)

// Evaluation is the scored snapshot produced by the evaluator collaborator.
// The queue persists it verbatim; the scoring math is external.
type Evaluation struct {
	CompositeScore    float64 `json:"compositeScore"`
	DemandScore       float64 `json:"demandScore"`
	CompsScore        float64 `json:"compsScore"`
	RiskScore         float64 `json:"riskScore"`
	Confidence        float64 `json:"confidence"`
	MaxBid            float64 `json:"maxBid"`
	Recommendation    string  `json:"recommendation"` // buy, watchlist, pass
	RevenueProjection float64 `json:"revenueProjection,omitempty"`
	HardFailReason    string  `json:"hardFailReason,omitempty"`
}

// DomainResearch is a candidate acquisition listing plus its evaluation.
// Upserts conflict on the domain name, so re-ingesting updates in place.
type DomainResearch struct {
	ID                  string
	Domain              string
	TLD                 string
	BuyNowPrice         float64
	CurrentBid          float64
	AuctionEndsAt       *time.Time
	Evaluation          *Evaluation
	Decision            Decision
	HardFailReason      string
	UnderwritingVersion int
	LinkedDomainID      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// BidPlanAction is the planned acquisition move derived from a snapshot.
type BidPlanAction string

const (
	BidBuyNow     BidPlanAction = "buy_now"
	BidAuctionBid BidPlanAction = "auction_bid"
	BidWatchlist  BidPlanAction = "watchlist"
	BidPass       BidPlanAction = "pass"
)

// BidPlan is the concrete bidding instruction for a candidate.
type BidPlan struct {
	Action    BidPlanAction `json:"action"`
	MaxBid    float64       `json:"maxBid,omitempty"`
	Increment float64       `json:"increment,omitempty"`
}

// ReviewTask is a human checklist created when underwriting decides buy.
type ReviewTask struct {
	ID               string
	DomainResearchID string
	Status           string // pending, done, cancelled
	Checklist        []string
	CreatedAt        time.Time
}

// PreviewBuild is a throwaway preview deployment for a candidate, kept alive
// for 72 hours after the last score.
type PreviewBuild struct {
	ID               string
	DomainResearchID string
	URL              string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// AcquisitionEvent is the append-only underwriting audit log.
type AcquisitionEvent struct {
	ID               string
	DomainResearchID string
	Type             string // ingested, enriched, hard_fail, scored, bid_planned
	Message          string
	CreatedAt        time.Time
}
