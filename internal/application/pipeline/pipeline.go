package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// Pipeline implements the content stage handlers. Every stage loads its
// article, calls the AI collaborator, persists outputs with revision and
// api-call accounting, and enqueues its successor with a minimal payload.
type Pipeline struct {
	queue     worker.QueueRepository
	articles  ArticleStore
	domains   DomainStore
	keywords  KeywordStore
	revisions RevisionStore
	calls     CallLogStore
	ai        AIClient
	research  ResearchProvider
	review    config.ReviewConfig
}

// New wires the pipeline over its stores and collaborators. revisions, calls,
// and research may be nil; the corresponding bookkeeping is skipped.
func New(
	queue worker.QueueRepository,
	articles ArticleStore,
	domains DomainStore,
	keywords KeywordStore,
	revisions RevisionStore,
	calls CallLogStore,
	ai AIClient,
	research ResearchProvider,
	review config.ReviewConfig,
) *Pipeline {
	return &Pipeline{
		queue:     queue,
		articles:  articles,
		domains:   domains,
		keywords:  keywords,
		revisions: revisions,
		calls:     calls,
		ai:        ai,
		research:  research,
		review:    review,
	}
}

// Register binds all content stages onto the executor.
func (p *Pipeline) Register(e *worker.Executor) {
	e.Register(domain.JobKeywordResearch, p.handleKeywordResearch)
	e.Register(domain.JobResearch, p.handleResearch)
	e.Register(domain.JobGenerateOutline, p.handleGenerateOutline)
	e.Register(domain.JobGenerateDraft, p.handleGenerateDraft)
	e.Register(domain.JobHumanize, p.handleHumanize)
	e.Register(domain.JobSEOOptimize, p.handleSEOOptimize)
	e.Register(domain.JobGenerateMeta, p.handleGenerateMeta)
}

// enqueueNext chains the successor stage. The payload stays minimal; the next
// handler re-reads article state from the store.
func (p *Pipeline) enqueueNext(ctx context.Context, job *domain.Job, next domain.JobType, articleID string) error {
	payload, err := worker.MarshalPayload(StagePayload{ArticleID: articleID})
	if err != nil {
		return err
	}
	_, err = p.queue.Enqueue(ctx, worker.EnqueueParams{
		Type:      next,
		Payload:   payload,
		Priority:  job.Priority,
		ArticleID: &articleID,
		DomainID:  job.DomainID,
		Channel:   job.Channel,
	})
	if err != nil {
		return worker.Transient(err)
	}
	return nil
}

// loadArticle resolves the stage payload into its article row.
func (p *Pipeline) loadArticle(ctx context.Context, job *domain.Job) (*domain.Article, error) {
	payload, err := decodeStagePayload(job)
	if err != nil {
		return nil, worker.Fatal(domain.FailurePayloadSchema, err)
	}
	article, err := p.articles.Get(ctx, payload.ArticleID)
	if err != nil {
		return nil, err
	}
	return article, nil
}

// recordCall persists api-call accounting. Accounting must never fail a job.
func (p *Pipeline) recordCall(ctx context.Context, stage domain.JobType, articleID *string, res *AIResult) {
	if p.calls == nil || res == nil {
		return
	}
	call := domain.APICallLog{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ArticleID:      articleID,
		Stage:          stage,
		ModelKey:       res.ModelKey,
		ResolvedModel:  res.ResolvedModel,
		PromptVersion:  res.PromptVersion,
		RoutingVersion: res.RoutingVersion,
		Fallback:       res.Fallback,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		CostUSD:        res.CostUSD,
		Duration:       res.Duration,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.calls.Record(ctx, call); err != nil {
		slog.WarnContext(ctx, "failed to record api call", "stage", stage, "error", err)
	}
}

// recordRevision appends to the revision log. Best-effort.
func (p *Pipeline) recordRevision(ctx context.Context, stage domain.JobType, articleID, summary string) {
	if p.revisions == nil {
		return
	}
	rev := domain.Revision{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ArticleID: articleID,
		Stage:     stage,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.revisions.Record(ctx, rev); err != nil {
		slog.WarnContext(ctx, "failed to record revision", "stage", stage, "article_id", articleID, "error", err)
	}
}

// stripEmDashes normalizes generated prose; models overuse the character.
func stripEmDashes(s string) string {
	s = strings.ReplaceAll(s, " — ", ", ")
	s = strings.ReplaceAll(s, "—", "-")
	return s
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
