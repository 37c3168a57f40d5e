package underwriting

import (
	"context"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

// Queue extends the queue contract with the underwriting idempotency check.
type Queue interface {
	worker.QueueRepository

	// HasInFlightResearchJob reports a pending or processing job of the
	// given type whose payload carries the domain research id.
	HasInFlightResearchJob(ctx context.Context, jobType domain.JobType, domainResearchID string) (bool, error)
}

// ResearchStore is the domain_research persistence. Upsert conflicts on the
// domain name so re-ingesting a candidate updates in place.
type ResearchStore interface {
	Upsert(ctx context.Context, research *domain.DomainResearch) (*domain.DomainResearch, error)
	Get(ctx context.Context, id string) (*domain.DomainResearch, error)
	Update(ctx context.Context, research *domain.DomainResearch) error
	SaveBidPlan(ctx context.Context, id string, plan domain.BidPlan) error
}

// ReviewTaskStore synchronizes the human review checklist with the decision.
type ReviewTaskStore interface {
	// EnsurePending creates the pending task with its checklist if none
	// exists; an existing pending task is left untouched.
	EnsurePending(ctx context.Context, domainResearchID string, checklist []string) error

	// CancelPending cancels any pending task for the candidate.
	CancelPending(ctx context.Context, domainResearchID string) error
}

// PreviewBuildStore manages the throwaway preview deployment record.
type PreviewBuildStore interface {
	Refresh(ctx context.Context, domainResearchID string, expiresAt time.Time) error
	Expire(ctx context.Context, domainResearchID string) error
}

// EventStore appends to the acquisition audit log.
type EventStore interface {
	Record(ctx context.Context, event domain.AcquisitionEvent) error
}

// Evaluator is the external scoring collaborator. The queue persists its
// snapshot; the math is out of scope.
type Evaluator interface {
	EvaluateDomain(ctx context.Context, domainName string) (*domain.Evaluation, error)
}

// FeatureFlags gates the underwriting subsystem.
type FeatureFlags interface {
	IsEnabled(ctx context.Context, flag string) (bool, error)
}
