package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

type keywordSuggestion struct {
	Keyword    string `json:"keyword"`
	Title      string `json:"title,omitempty"`
	Volume     int    `json:"volume"`
	Difficulty int    `json:"difficulty"`
}

// handleKeywordResearch generates keyword opportunities for a domain, stores
// them, creates an article stub from the best volume/difficulty ratio, and
// starts the research stage.
func (p *Pipeline) handleKeywordResearch(ctx context.Context, job *domain.Job) error {
	payload, err := decodeKeywordResearchPayload(job)
	if err != nil {
		return worker.Fatal(domain.FailurePayloadSchema, err)
	}

	site, err := p.domains.Get(ctx, payload.DomainID)
	if err != nil {
		return err
	}
	niche := payload.Niche
	if niche == "" {
		niche = site.Niche
	}

	prompt := fmt.Sprintf(
		"Suggest %d keyword opportunities for %s (niche: %s, sub-niche: %s) as JSON with keyword, title, volume, difficulty.",
		payload.TargetCount, site.Name, niche, site.SubNiche)

	var suggestions []keywordSuggestion
	res, err := p.ai.GenerateJSON(ctx, job.Type, prompt, &suggestions)
	p.recordCall(ctx, job.Type, nil, res)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		return worker.Fatal(domain.FailureValidation, fmt.Errorf("keyword research returned no suggestions"))
	}

	now := time.Now().UTC()
	keywords := lo.Map(suggestions, func(s keywordSuggestion, _ int) domain.Keyword {
		return domain.Keyword{
			ID:         uuid.Must(uuid.NewV7()).String(),
			DomainID:   site.ID,
			Keyword:    s.Keyword,
			Volume:     s.Volume,
			Difficulty: s.Difficulty,
			CreatedAt:  now,
		}
	})
	if err := p.keywords.Insert(ctx, keywords); err != nil {
		return worker.Transient(err)
	}

	best := lo.MaxBy(keywords, func(a, b domain.Keyword) bool {
		return a.Ratio() > b.Ratio()
	})
	title := best.Keyword
	for _, s := range suggestions {
		if s.Keyword == best.Keyword && s.Title != "" {
			title = s.Title
			break
		}
	}

	article := &domain.Article{
		ID:            uuid.Must(uuid.NewV7()).String(),
		DomainID:      site.ID,
		Title:         title,
		Slug:          SlugOrFallback("", title),
		Status:        domain.ArticleDraft,
		ContentType:   DetectContentType(best.Keyword),
		TargetKeyword: best.Keyword,
		CreatedAt:     now,
	}
	if err := p.articles.Create(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID, fmt.Sprintf("article stub created for %q", best.Keyword))
	slog.InfoContext(ctx, "keyword research complete",
		"domain_id", site.ID, "keywords", len(keywords), "article_id", article.ID)

	return p.enqueueNext(ctx, job, domain.JobResearch, article.ID)
}

type researchData struct {
	Statistics   []string `json:"statistics"`
	Quotes       []string `json:"quotes"`
	Hooks        []string `json:"hooks"`
	Developments []string `json:"developments"`
}

// handleResearch populates article.ResearchData, going through the TTL cache
// when one is wired so repeat keywords on a domain reuse prior research.
func (p *Pipeline) handleResearch(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}

	generate := func() (json.RawMessage, error) {
		prompt := fmt.Sprintf(
			"Research %q: return JSON with statistics, quotes, hooks, developments.",
			article.TargetKeyword)
		var data researchData
		res, err := p.ai.GenerateJSON(ctx, job.Type, prompt, &data)
		p.recordCall(ctx, job.Type, &article.ID, res)
		if err != nil {
			return nil, err
		}
		return json.Marshal(data)
	}

	var raw json.RawMessage
	if p.research != nil {
		key := article.DomainID + ":" + article.TargetKeyword
		var hit bool
		raw, hit, err = p.research.Do(key, generate)
		if hit {
			slog.InfoContext(ctx, "research cache hit", "article_id", article.ID)
		}
	} else {
		raw, err = generate()
	}
	if err != nil {
		return err
	}

	article.ResearchData = raw
	article.Status = domain.ArticleGenerating
	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID, "research data attached")
	return p.enqueueNext(ctx, job, domain.JobGenerateOutline, article.ID)
}

type outlineResponse struct {
	Title            string          `json:"title"`
	MetaDescription  string          `json:"metaDescription"`
	Outline          json.RawMessage `json:"outline"`
	FAQs             json.RawMessage `json:"faqs,omitempty"`
	CalculatorConfig json.RawMessage `json:"calculatorConfig,omitempty"`
	ComparisonData   json.RawMessage `json:"comparisonData,omitempty"`
}

// handleGenerateOutline asks for title/meta/outline, detects the content type
// from the target keyword, and validates any calculator/comparison sub-schema.
// An invalid blob is dropped with a log line; the outline itself survives.
func (p *Pipeline) handleGenerateOutline(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}

	article.ContentType = DetectContentType(article.TargetKeyword)

	prompt := fmt.Sprintf(
		"Outline a %s article for keyword %q. Return JSON with title, metaDescription, outline, faqs%s.",
		article.ContentType, article.TargetKeyword, schemaHint(article.ContentType))
	var out outlineResponse
	res, err := p.ai.GenerateJSON(ctx, job.Type, prompt, &out)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return err
	}
	if len(out.Outline) == 0 {
		return worker.Fatal(domain.FailureValidation, fmt.Errorf("outline stage returned no outline"))
	}

	if out.Title != "" {
		article.Title = out.Title
	}
	if out.MetaDescription != "" {
		article.MetaDescription = out.MetaDescription
	}
	article.HeaderStructure = out.Outline

	if len(out.CalculatorConfig) > 0 {
		if err := validateCalculatorConfig(out.CalculatorConfig); err != nil {
			slog.WarnContext(ctx, "dropping invalid calculator config",
				"article_id", article.ID, "error", err)
		} else {
			article.CalculatorConfig = out.CalculatorConfig
		}
	}
	if len(out.ComparisonData) > 0 {
		if err := validateComparisonData(out.ComparisonData); err != nil {
			slog.WarnContext(ctx, "dropping invalid comparison data",
				"article_id", article.ID, "error", err)
		} else {
			article.ComparisonData = out.ComparisonData
		}
	}

	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID, "outline generated")
	return p.enqueueNext(ctx, job, domain.JobGenerateDraft, article.ID)
}

func schemaHint(t domain.ContentType) string {
	switch t {
	case domain.ContentCalculator:
		return ", calculatorConfig"
	case domain.ContentComparison:
		return ", comparisonData"
	}
	return ""
}

type calculatorConfig struct {
	Title  string `json:"title"`
	Inputs []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
		Type  string `json:"type"`
	} `json:"inputs"`
	Formula string `json:"formula"`
}

func validateCalculatorConfig(raw json.RawMessage) error {
	var cfg calculatorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("calculator config has no inputs")
	}
	if cfg.Formula == "" {
		return fmt.Errorf("calculator config has no formula")
	}
	for _, in := range cfg.Inputs {
		if in.Name == "" {
			return fmt.Errorf("calculator input missing name")
		}
	}
	return nil
}

type comparisonData struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
	Criteria []string `json:"criteria"`
}

func validateComparisonData(raw json.RawMessage) error {
	var data comparisonData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	if len(data.Items) < 2 {
		return fmt.Errorf("comparison needs at least two items, got %d", len(data.Items))
	}
	for _, item := range data.Items {
		if item.Name == "" {
			return fmt.Errorf("comparison item missing name")
		}
	}
	return nil
}

// handleGenerateDraft produces the first full markdown pass. Drafts under 100
// words fail unless the article is a calculator, where the interactive block
// carries the page.
func (p *Pipeline) handleGenerateDraft(ctx context.Context, job *domain.Job) error {
	article, err := p.loadArticle(ctx, job)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Write a %s draft in markdown for %q using the stored outline and research.",
		article.ContentType, article.TargetKeyword)
	res, err := p.ai.Generate(ctx, job.Type, prompt)
	p.recordCall(ctx, job.Type, &article.ID, res)
	if err != nil {
		return err
	}

	content := stripEmDashes(res.Content)
	wc := countWords(content)
	if wc < 100 && article.ContentType != domain.ContentCalculator {
		return worker.Fatal(domain.FailureValidation,
			fmt.Errorf("draft too short: %d words", wc))
	}

	article.ContentMarkdown = content
	article.WordCount = wc
	article.GenerationPasses = 1
	if err := p.articles.Update(ctx, article); err != nil {
		return worker.Transient(err)
	}

	p.recordRevision(ctx, job.Type, article.ID, fmt.Sprintf("draft generated, %d words", wc))
	return p.enqueueNext(ctx, job, domain.JobHumanize, article.ID)
}
