package pipeline

import (
	"context"
	"encoding/json"

	"github.com/draftpress/draftpress/internal/domain"
)

// ArticleStore is the article persistence the pipeline needs.
type ArticleStore interface {
	Get(ctx context.Context, id string) (*domain.Article, error)
	Create(ctx context.Context, article *domain.Article) error
	Update(ctx context.Context, article *domain.Article) error

	// ListPublishedSiblings returns up to limit published articles on the
	// same domain, excluding the article itself. Used for internal linking.
	ListPublishedSiblings(ctx context.Context, domainID, excludeID string, limit int) ([]*domain.Article, error)
}

// DomainStore resolves domain rows for voice seeds and niches.
type DomainStore interface {
	Get(ctx context.Context, id string) (*domain.Domain, error)
}

// KeywordStore persists keyword opportunities.
type KeywordStore interface {
	Insert(ctx context.Context, keywords []domain.Keyword) error
}

// RevisionStore records pipeline mutations. Failures are logged, never fatal.
type RevisionStore interface {
	Record(ctx context.Context, rev domain.Revision) error
}

// CallLogStore persists API-call accounting rows. Insert-only.
type CallLogStore interface {
	Record(ctx context.Context, call domain.APICallLog) error
}

// ResearchProvider fronts the research generation with a TTL cache. fn runs
// only on a cache miss; the second return reports a hit.
type ResearchProvider interface {
	Do(key string, fn func() (json.RawMessage, error)) (json.RawMessage, bool, error)
}
