package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/draftpress/draftpress/internal/domain"
)

// ArticleRepository persists pipeline articles.
type ArticleRepository struct {
	s *Store
}

const articleColumns = `
	id, domain_id, title, slug, status, content_markdown, meta_description,
	header_structure, research_data, content_type, target_keyword,
	secondary_keywords, calculator_config, comparison_data, generation_passes,
	word_count, ymyl_level, review_requested_at, last_reviewed_at,
	last_refreshed_at, is_seed_article, created_at`

func scanArticle(row pgx.Row) (*domain.Article, error) {
	var a domain.Article
	err := row.Scan(
		&a.ID, &a.DomainID, &a.Title, &a.Slug, &a.Status, &a.ContentMarkdown,
		&a.MetaDescription, &a.HeaderStructure, &a.ResearchData, &a.ContentType,
		&a.TargetKeyword, &a.SecondaryKeywords, &a.CalculatorConfig,
		&a.ComparisonData, &a.GenerationPasses, &a.WordCount, &a.YMYLLevel,
		&a.ReviewRequestedAt, &a.LastReviewedAt, &a.LastRefreshedAt,
		&a.IsSeedArticle, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ArticleRepository) Get(ctx context.Context, id string) (*domain.Article, error) {
	article, err := scanArticle(r.s.db.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArticleNotFound, id)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

func (r *ArticleRepository) Create(ctx context.Context, article *domain.Article) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO articles (
			id, domain_id, title, slug, status, content_markdown,
			meta_description, header_structure, research_data, content_type,
			target_keyword, secondary_keywords, calculator_config,
			comparison_data, generation_passes, word_count, ymyl_level,
			review_requested_at, last_reviewed_at, last_refreshed_at,
			is_seed_article, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, NOW()
		)
	`, article.ID, article.DomainID, article.Title, article.Slug,
		article.Status, article.ContentMarkdown, article.MetaDescription,
		article.HeaderStructure, article.ResearchData, article.ContentType,
		article.TargetKeyword, article.SecondaryKeywords,
		article.CalculatorConfig, article.ComparisonData,
		article.GenerationPasses, article.WordCount, article.YMYLLevel,
		article.ReviewRequestedAt, article.LastReviewedAt,
		article.LastRefreshedAt, article.IsSeedArticle)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

func (r *ArticleRepository) Update(ctx context.Context, article *domain.Article) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE articles SET
			title = $2,
			slug = $3,
			status = $4,
			content_markdown = $5,
			meta_description = $6,
			header_structure = $7,
			research_data = $8,
			content_type = $9,
			target_keyword = $10,
			secondary_keywords = $11,
			calculator_config = $12,
			comparison_data = $13,
			generation_passes = $14,
			word_count = $15,
			ymyl_level = $16,
			review_requested_at = $17,
			last_reviewed_at = $18,
			last_refreshed_at = $19
		WHERE id = $1
	`, article.ID, article.Title, article.Slug, article.Status,
		article.ContentMarkdown, article.MetaDescription,
		article.HeaderStructure, article.ResearchData, article.ContentType,
		article.TargetKeyword, article.SecondaryKeywords,
		article.CalculatorConfig, article.ComparisonData,
		article.GenerationPasses, article.WordCount, article.YMYLLevel,
		article.ReviewRequestedAt, article.LastReviewedAt,
		article.LastRefreshedAt)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrArticleNotFound, article.ID)
	}
	return nil
}

// ListPublishedSiblings returns up to limit published articles on the same
// domain, newest first, excluding the article itself.
func (r *ArticleRepository) ListPublishedSiblings(ctx context.Context, domainID, excludeID string, limit int) ([]*domain.Article, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE domain_id = $1 AND id <> $2 AND status = 'published'
		ORDER BY created_at DESC
		LIMIT $3
	`, domainID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published siblings: %w", err)
	}
	defer rows.Close()

	var articles []*domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ResetArticleToDraft puts an article back into draft after its pipeline job
// dead-letters, so a user can retry from the UI.
func (r *ArticleRepository) ResetArticleToDraft(ctx context.Context, articleID string) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE articles SET status = 'draft' WHERE id = $1
	`, articleID)
	if err != nil {
		return fmt.Errorf("failed to reset article to draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrArticleNotFound, articleID)
	}
	return nil
}

// DomainRepository persists operated domains.
type DomainRepository struct {
	s *Store
}

const domainColumns = `
	id, name, tld, status, niche, sub_niche, bucket, schedule, voice_seed,
	deleted_at, created_at`

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var d domain.Domain
	err := row.Scan(
		&d.ID, &d.Name, &d.TLD, &d.Status, &d.Niche, &d.SubNiche, &d.Bucket,
		&d.Schedule, &d.VoiceSeed, &d.DeletedAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DomainRepository) Get(ctx context.Context, id string) (*domain.Domain, error) {
	d, err := scanDomain(r.s.db.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, id)
		}
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return d, nil
}

// ListActive returns active, non-deleted domains.
func (r *DomainRepository) ListActive(ctx context.Context) ([]*domain.Domain, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+domainColumns+` FROM domains
		WHERE status = 'active' AND deleted_at IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active domains: %w", err)
	}
	defer rows.Close()

	var domains []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// LatestArticleTimes returns the newest article created_at per domain in one
// query.
func (s *Store) LatestArticleTimes(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.Query(ctx, `
		SELECT domain_id, MAX(created_at) FROM articles GROUP BY domain_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest article times: %w", err)
	}
	defer rows.Close()

	latest := map[string]time.Time{}
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		latest[id] = at
	}
	return latest, rows.Err()
}

// KeywordRepository persists keyword opportunities.
type KeywordRepository struct {
	s *Store
}

func (r *KeywordRepository) Insert(ctx context.Context, keywords []domain.Keyword) error {
	for _, k := range keywords {
		_, err := r.s.db.Exec(ctx, `
			INSERT INTO article_keywords (id, domain_id, keyword, volume, difficulty, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, k.ID, k.DomainID, k.Keyword, k.Volume, k.Difficulty)
		if err != nil {
			return fmt.Errorf("failed to insert keyword %q: %w", k.Keyword, err)
		}
	}
	return nil
}

// RevisionRepository appends pipeline revision records.
type RevisionRepository struct {
	s *Store
}

func (r *RevisionRepository) Record(ctx context.Context, rev domain.Revision) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO revisions (id, article_id, stage, summary, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, rev.ID, rev.ArticleID, rev.Stage, rev.Summary)
	if err != nil {
		return fmt.Errorf("failed to record revision: %w", err)
	}
	return nil
}

// CallLogRepository appends AI call accounting rows.
type CallLogRepository struct {
	s *Store
}

func (r *CallLogRepository) Record(ctx context.Context, call domain.APICallLog) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO api_call_logs (
			id, article_id, stage, model_key, resolved_model, prompt_version,
			routing_version, fallback, input_tokens, output_tokens, cost_usd,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`, call.ID, call.ArticleID, call.Stage, call.ModelKey, call.ResolvedModel,
		call.PromptVersion, call.RoutingVersion, call.Fallback,
		call.InputTokens, call.OutputTokens, call.CostUSD,
		call.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record api call: %w", err)
	}
	return nil
}
