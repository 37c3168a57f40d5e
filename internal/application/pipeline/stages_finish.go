package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

// handleHumanize rewrites the draft with the domain's voice seed.
func (p *Pipeline) handleHumanize(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}
	site, err := p.domains.Get(ctx, article.DomainID)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Rewrite this article in the site voice (seed: %s), keeping structure and facts:\n\n%s",
		site.VoiceSeed, article.ContentMarkdown)
	res, err := p.ai.Generate(ctx, job.Type, prompt)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return err
	}

	article.ContentMarkdown = stripEmDashes(res.Content)
	article.WordCount = countWords(article.ContentMarkdown)
	article.GenerationPasses = 2
	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID, "humanize pass applied")
	return p.enqueueNext(ctx, job, domain.JobSEOOptimize, article.ID)
}

const maxSiblingLinks = 20

// handleSEOOptimize adds internal links using up to 20 published siblings on
// the same domain.
func (p *Pipeline) handleSEOOptimize(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}

	siblings, err := p.articles.ListPublishedSiblings(ctx, article.DomainID, article.ID, maxSiblingLinks)
	if err != nil {
		return worker.Transient(err)
	}
	links := lo.Map(siblings, func(a *domain.Article, _ int) string {
		return fmt.Sprintf("- %s (/%s)", a.Title, a.Slug)
	})

	prompt := fmt.Sprintf("Add internal links to this article where natural. Available pages:\n%s\n\nArticle:\n%s",
		strings.Join(links, "\n"), article.ContentMarkdown)
	res, err := p.ai.Generate(ctx, job.Type, prompt)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return err
	}

	article.ContentMarkdown = stripEmDashes(res.Content)
	article.WordCount = countWords(article.ContentMarkdown)
	article.GenerationPasses = 3
	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID,
		fmt.Sprintf("seo pass applied with %d candidate links", len(links)))
	return p.enqueueNext(ctx, job, domain.JobGenerateMeta, article.ID)
}

type metaResponse struct {
	Title           string          `json:"title"`
	MetaDescription string          `json:"metaDescription"`
	OGTitle         string          `json:"ogTitle,omitempty"`
	OGDescription   string          `json:"ogDescription,omitempty"`
	SchemaMarkup    json.RawMessage `json:"schemaMarkup,omitempty"`
	Slug            string          `json:"slug"`
}

type reviewVerdict struct {
	Approved            bool     `json:"approved"`
	Failures            []string `json:"failures,omitempty"`
	RequiresHumanReview bool     `json:"requiresHumanReview,omitempty"`
}

// handleGenerateMeta is the terminal stage: metadata, slug resolution, YMYL
// classification, and the optional AI reviewer. GenerationPasses lands on 5
// only when the reviewer actually ran.
func (p *Pipeline) handleGenerateMeta(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Generate title, metaDescription, ogTitle, ogDescription, schemaMarkup, slug as JSON for the article targeting %q.",
		article.TargetKeyword)
	var out metaResponse
	res, err := p.ai.GenerateJSON(ctx, job.Type, prompt, &out)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return err
	}

	if out.Title != "" {
		article.Title = out.Title
	}
	if out.MetaDescription != "" {
		article.MetaDescription = out.MetaDescription
	}
	article.Slug = SlugOrFallback(out.Slug, article.Title)
	article.YMYLLevel = ClassifyYMYL(article.TargetKeyword, article.ContentType)

	now := time.Now().UTC()
	reviewerRan := false
	if p.review.ReviewerEnabled() {
		verdict, err := p.runReviewer(ctx, job, article)
		if err != nil {
			// The reviewer is best-effort; a failed review falls back to
			// human review rather than failing the whole pipeline.
			slog.WarnContext(ctx, "ai reviewer failed, routing to human review",
				"article_id", article.ID, "error", err)
		} else {
			reviewerRan = true
			if verdict.Approved && len(verdict.Failures) == 0 && !verdict.RequiresHumanReview {
				article.Status = domain.ArticleApproved
				article.LastReviewedAt = &now
			} else {
				article.Status = domain.ArticleReview
				article.ReviewRequestedAt = &now
			}
		}
	}
	if !reviewerRan {
		article.Status = domain.ArticleReview
		article.ReviewRequestedAt = &now
	}

	if reviewerRan {
		article.GenerationPasses = 5
	} else {
		article.GenerationPasses = 4
	}

	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID,
		fmt.Sprintf("meta generated, status %s", article.Status))
	slog.InfoContext(ctx, "pipeline finished",
		"article_id", article.ID,
		"status", article.Status,
		"passes", article.GenerationPasses,
		"word_count", article.WordCount)
	return nil
}

func (p *Pipeline) runReviewer(ctx context.Context, job *domain.Job, article *domain.Article) (*reviewVerdict, error) {
	prompt := fmt.Sprintf("Review this %s article (model %s) for factual and policy failures. Return JSON with approved, failures, requiresHumanReview.\n\n%s",
		article.ContentType, p.review.ReviewModel, article.ContentMarkdown)
	var verdict reviewVerdict
	res, err := p.ai.GenerateJSON(ctx, job.Type, prompt, &verdict)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

var (
	ymylHigh   = regexp.MustCompile(`\b(loan|loans|mortgage|insurance|tax|taxes|invest\w*|credit|debt|medic\w*|cancer|drug|drugs|dosage|surgery|legal|lawsuit|visa|immigration)\b`)
	ymylMedium = regexp.MustCompile(`\b(cost|costs|price|prices|salary|retirement|diet|nutrition|fitness|safety)\b`)
)

// ClassifyYMYL grades the content-risk level of an article from its keyword
// and content type.
func ClassifyYMYL(keyword string, contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentHealthDecision, domain.ContentLeadCapture:
		return "high"
	}
	kw := strings.ToLower(keyword)
	if ymylHigh.MatchString(kw) {
		return "high"
	}
	if ymylMedium.MatchString(kw) {
		return "medium"
	}
	switch contentType {
	case domain.ContentCostGuide, domain.ContentCalculator, domain.ContentWizard:
		return "medium"
	}
	return "low"
}
