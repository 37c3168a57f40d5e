package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftpress/draftpress/internal/application/growth"
	"github.com/draftpress/draftpress/internal/application/maintenance"
	"github.com/draftpress/draftpress/internal/application/pipeline"
	"github.com/draftpress/draftpress/internal/application/scheduler"
	"github.com/draftpress/draftpress/internal/application/underwriting"
	"github.com/draftpress/draftpress/internal/application/worker"
)

// dbtx is the slice of pgx shared by a pool and a transaction, so every
// repository method runs unchanged inside executeInTransaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of every repository contract in the
// application layer. Aggregate-specific methods live on small accessor types
// (Articles(), Campaigns(), ...) because several aggregates share method
// names; the queue surface lives directly on Store.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// Compile-time checks that the store satisfies the application contracts.
var (
	_ worker.QueueRepository    = (*Store)(nil)
	_ worker.PromotionJobMirror = (*Store)(nil)
	_ growth.Queue              = (*Store)(nil)
	_ growth.ResearchResolver   = (*Store)(nil)
	_ underwriting.Queue        = (*Store)(nil)
	_ maintenance.Queue         = (*Store)(nil)
	_ scheduler.ActivityReader  = (*Store)(nil)

	_ worker.ArticleResetter         = (*ArticleRepository)(nil)
	_ pipeline.ArticleStore          = (*ArticleRepository)(nil)
	_ pipeline.DomainStore           = (*DomainRepository)(nil)
	_ scheduler.DomainStore          = (*DomainRepository)(nil)
	_ pipeline.KeywordStore          = (*KeywordRepository)(nil)
	_ pipeline.RevisionStore         = (*RevisionRepository)(nil)
	_ pipeline.CallLogStore          = (*CallLogRepository)(nil)
	_ growth.CampaignStore           = (*CampaignRepository)(nil)
	_ growth.EventStore              = (*PromotionEventRepository)(nil)
	_ growth.ProfileStore            = (*ChannelProfileRepository)(nil)
	_ growth.MediaStore              = (*MediaRepository)(nil)
	_ maintenance.MediaPurger        = (*MediaRepository)(nil)
	_ growth.CredentialStore         = (*CredentialRepository)(nil)
	_ growth.AlertStore              = (*AlertRepository)(nil)
	_ underwriting.ResearchStore     = (*ResearchRepository)(nil)
	_ underwriting.ReviewTaskStore   = (*ReviewTaskRepository)(nil)
	_ underwriting.PreviewBuildStore = (*PreviewBuildRepository)(nil)
	_ maintenance.PreviewPurger      = (*PreviewBuildRepository)(nil)
	_ underwriting.EventStore        = (*AcquisitionEventRepository)(nil)
	_ maintenance.ModerationReader   = (*ModerationRepository)(nil)
)

// NewStore creates a store over an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Aggregate accessors. Each returns a thin view over the same store (and the
// same transaction when called on a transactional store).

func (s *Store) Articles() *ArticleRepository { return &ArticleRepository{s} }
func (s *Store) Domains() *DomainRepository { return &DomainRepository{s} }
func (s *Store) Keywords() *KeywordRepository { return &KeywordRepository{s} }
func (s *Store) Revisions() *RevisionRepository { return &RevisionRepository{s} }
func (s *Store) CallLogs() *CallLogRepository { return &CallLogRepository{s} }
func (s *Store) Campaigns() *CampaignRepository { return &CampaignRepository{s} }
func (s *Store) PromotionEvents() *PromotionEventRepository { return &PromotionEventRepository{s} }
func (s *Store) ChannelProfiles() *ChannelProfileRepository { return &ChannelProfileRepository{s} }
func (s *Store) Media() *MediaRepository { return &MediaRepository{s} }
func (s *Store) Credentials() *CredentialRepository { return &CredentialRepository{s} }
func (s *Store) Alerts() *AlertRepository { return &AlertRepository{s} }
func (s *Store) Research() *ResearchRepository { return &ResearchRepository{s} }
func (s *Store) ReviewTasks() *ReviewTaskRepository { return &ReviewTaskRepository{s} }
func (s *Store) PreviewBuilds() *PreviewBuildRepository { return &PreviewBuildRepository{s} }
func (s *Store) AcquisitionEvents() *AcquisitionEventRepository { return &AcquisitionEventRepository{s} }
func (s *Store) Moderation() *ModerationRepository { return &ModerationRepository{s} }

// finalizeTx rolls back on error and commits on success. Panics are handled
// separately before finalizeTx runs.
func finalizeTx(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		slog.ErrorContext(ctx, "transaction failed, rolling back", "error", *err)
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.ErrorContext(ctx, "rollback failed",
				"original_error", *err,
				"rollback_error", rbErr)
			*err = fmt.Errorf("transaction failed: %w (rollback error: %v)", *err, rbErr)
		}
	} else {
		*err = tx.Commit(ctx)
		if *err != nil {
			slog.ErrorContext(ctx, "transaction commit failed", "error", *err)
		}
	}
}

// executeInTransaction runs fn against a transactional store with logging and
// panic recovery.
func (s *Store) executeInTransaction(ctx context.Context, operationName string, fn func(txStore *Store) error) (err error) {
	start := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction",
			"operation", operationName,
			"error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "transaction panic, rolling back",
				"operation", operationName,
				"panic", p)
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				slog.ErrorContext(ctx, "rollback after panic failed",
					"operation", operationName,
					"panic", p,
					"rollback_error", rbErr)
			}
			panic(p)
		}

		finalizeTx(ctx, tx, &err)
		if err == nil {
			slog.DebugContext(ctx, "transaction completed",
				"operation", operationName,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}()

	err = fn(&Store{pool: s.pool, db: tx})
	return
}
