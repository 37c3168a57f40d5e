package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/draftpress/draftpress/internal/domain"
)

// ResearchRepository persists acquisition candidates. Upserts conflict on the
// domain name so re-ingesting a listing updates in place.
type ResearchRepository struct {
	s *Store
}

const researchColumns = `
	id, domain, tld, buy_now_price, current_bid, auction_ends_at, evaluation,
	decision, hard_fail_reason, underwriting_version, linked_domain_id,
	created_at, updated_at`

func scanResearch(row pgx.Row) (*domain.DomainResearch, error) {
	var r domain.DomainResearch
	err := row.Scan(
		&r.ID, &r.Domain, &r.TLD, &r.BuyNowPrice, &r.CurrentBid,
		&r.AuctionEndsAt, &r.Evaluation, &r.Decision, &r.HardFailReason,
		&r.UnderwritingVersion, &r.LinkedDomainID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Upsert inserts or refreshes a candidate by domain name. Listing prices are
// overwritten; the evaluation, decision, and version survive a re-ingest.
func (r *ResearchRepository) Upsert(ctx context.Context, research *domain.DomainResearch) (*domain.DomainResearch, error) {
	row, err := scanResearch(r.s.db.QueryRow(ctx, `
		INSERT INTO domain_research (
			id, domain, tld, buy_now_price, current_bid, auction_ends_at,
			decision, underwriting_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())
		ON CONFLICT (domain) DO UPDATE SET
			tld = EXCLUDED.tld,
			buy_now_price = EXCLUDED.buy_now_price,
			current_bid = EXCLUDED.current_bid,
			auction_ends_at = EXCLUDED.auction_ends_at,
			updated_at = NOW()
		RETURNING `+researchColumns,
		research.ID, research.Domain, research.TLD, research.BuyNowPrice,
		research.CurrentBid, research.AuctionEndsAt, research.Decision))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert domain research: %w", err)
	}
	return row, nil
}

func (r *ResearchRepository) Get(ctx context.Context, id string) (*domain.DomainResearch, error) {
	row, err := scanResearch(r.s.db.QueryRow(ctx,
		`SELECT `+researchColumns+` FROM domain_research WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrResearchNotFound, id)
		}
		return nil, fmt.Errorf("failed to get domain research: %w", err)
	}
	return row, nil
}

func (r *ResearchRepository) Update(ctx context.Context, research *domain.DomainResearch) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE domain_research SET
			evaluation = $2,
			decision = $3,
			hard_fail_reason = $4,
			underwriting_version = $5,
			linked_domain_id = $6,
			updated_at = NOW()
		WHERE id = $1
	`, research.ID, research.Evaluation, research.Decision,
		research.HardFailReason, research.UnderwritingVersion,
		research.LinkedDomainID)
	if err != nil {
		return fmt.Errorf("failed to update domain research: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrResearchNotFound, research.ID)
	}
	return nil
}

func (r *ResearchRepository) SaveBidPlan(ctx context.Context, id string, plan domain.BidPlan) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE domain_research SET bid_plan = $2, updated_at = NOW() WHERE id = $1
	`, id, plan)
	if err != nil {
		return fmt.Errorf("failed to save bid plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrResearchNotFound, id)
	}
	return nil
}

// ReviewTaskRepository keeps the human review checklist in sync with the
// underwriting decision.
type ReviewTaskRepository struct {
	s *Store
}

// EnsurePending creates the pending task if none exists; an existing pending
// task keeps its checklist.
func (r *ReviewTaskRepository) EnsurePending(ctx context.Context, domainResearchID string, checklist []string) error {
	var exists bool
	err := r.s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM review_tasks
			WHERE domain_research_id = $1 AND status = 'pending'
		)
	`, domainResearchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check pending review task: %w", err)
	}
	if exists {
		return nil
	}

	_, err = r.s.db.Exec(ctx, `
		INSERT INTO review_tasks (id, domain_research_id, status, checklist, created_at)
		VALUES ($1, $2, 'pending', $3, NOW())
	`, newEventID(), domainResearchID, checklist)
	if err != nil {
		return fmt.Errorf("failed to create review task: %w", err)
	}
	return nil
}

// CancelPending cancels any pending task for the candidate.
func (r *ReviewTaskRepository) CancelPending(ctx context.Context, domainResearchID string) error {
	_, err := r.s.db.Exec(ctx, `
		UPDATE review_tasks SET status = 'cancelled'
		WHERE domain_research_id = $1 AND status = 'pending'
	`, domainResearchID)
	if err != nil {
		return fmt.Errorf("failed to cancel review tasks: %w", err)
	}
	return nil
}

// PreviewBuildRepository manages throwaway preview deployments.
type PreviewBuildRepository struct {
	s *Store
}

// Refresh creates or extends the candidate's preview build record.
func (r *PreviewBuildRepository) Refresh(ctx context.Context, domainResearchID string, expiresAt time.Time) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO preview_builds (id, domain_research_id, url, expires_at, created_at)
		VALUES ($1, $2, '', $3, NOW())
		ON CONFLICT (domain_research_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, newEventID(), domainResearchID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to refresh preview build: %w", err)
	}
	return nil
}

// Expire marks the candidate's preview build as already expired; the purge
// sweep removes it.
func (r *PreviewBuildRepository) Expire(ctx context.Context, domainResearchID string) error {
	_, err := r.s.db.Exec(ctx, `
		UPDATE preview_builds SET expires_at = NOW()
		WHERE domain_research_id = $1 AND expires_at > NOW()
	`, domainResearchID)
	if err != nil {
		return fmt.Errorf("failed to expire preview build: %w", err)
	}
	return nil
}

// PurgeExpired removes preview builds past their TTL.
func (r *PreviewBuildRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.s.db.Exec(ctx, `
		DELETE FROM preview_builds WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired preview builds: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AcquisitionEventRepository appends the underwriting audit log.
type AcquisitionEventRepository struct {
	s *Store
}

func (r *AcquisitionEventRepository) Record(ctx context.Context, event domain.AcquisitionEvent) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO acquisition_events (id, domain_research_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, event.ID, event.DomainResearchID, event.Type, event.Message)
	if err != nil {
		return fmt.Errorf("failed to record acquisition event: %w", err)
	}
	return nil
}
