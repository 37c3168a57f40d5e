package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// fakeQueue records enqueued jobs; the other repository methods are unused by
// pipeline handlers.
type fakeQueue struct {
	enqueued []worker.EnqueueParams
}

func (q *fakeQueue) Enqueue(ctx context.Context, params worker.EnqueueParams) (string, error) {
	q.enqueued = append(q.enqueued, params)
	return "enqueued-id", nil
}

func (q *fakeQueue) Acquire(context.Context, int, time.Duration, []domain.JobType) ([]*domain.Job, error) {
	return nil, nil
}

func (q *fakeQueue) AcquireByIDs(context.Context, []string, int, time.Duration, []domain.JobType) ([]*domain.Job, error) {
	return nil, nil
}

func (q *fakeQueue) RecoverStale(context.Context) (int64, error) { return 0, nil }
func (q *fakeQueue) Get(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}
func (q *fakeQueue) Complete(context.Context, string, *domain.JobResult) error { return nil }
func (q *fakeQueue) FailTerminal(context.Context, string, int, *domain.Failure, string) error {
	return nil
}
func (q *fakeQueue) ScheduleRetry(context.Context, string, int, time.Time, *domain.Failure, string) error {
	return nil
}
func (q *fakeQueue) Cancel(context.Context, string) error { return nil }
func (q *fakeQueue) PurgeTerminal(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (q *fakeQueue) ListFailed(context.Context, int, time.Time) ([]*domain.Job, error) {
	return nil, nil
}
func (q *fakeQueue) ResetForRetry(context.Context, string, bool, time.Time, int) error { return nil }
func (q *fakeQueue) Stats(context.Context) (*worker.QueueStats, error) {
	return &worker.QueueStats{}, nil
}
func (q *fakeQueue) Health(context.Context) (*worker.QueueHealth, error) {
	return &worker.QueueHealth{}, nil
}

type mockArticleStore struct {
	getFunc      func(ctx context.Context, id string) (*domain.Article, error)
	createFunc   func(ctx context.Context, a *domain.Article) error
	updateFunc   func(ctx context.Context, a *domain.Article) error
	siblingsFunc func(ctx context.Context, domainID, excludeID string, limit int) ([]*domain.Article, error)
}

func (m *mockArticleStore) Get(ctx context.Context, id string) (*domain.Article, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, domain.ErrArticleNotFound
}

func (m *mockArticleStore) Create(ctx context.Context, a *domain.Article) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, a)
	}
	return nil
}

func (m *mockArticleStore) Update(ctx context.Context, a *domain.Article) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, a)
	}
	return nil
}

func (m *mockArticleStore) ListPublishedSiblings(ctx context.Context, domainID, excludeID string, limit int) ([]*domain.Article, error) {
	if m.siblingsFunc != nil {
		return m.siblingsFunc(ctx, domainID, excludeID, limit)
	}
	return nil, nil
}

type mockDomainStore struct {
	getFunc func(ctx context.Context, id string) (*domain.Domain, error)
}

func (m *mockDomainStore) Get(ctx context.Context, id string) (*domain.Domain, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &domain.Domain{ID: id, Name: "example.com", Niche: "finance"}, nil
}

type mockKeywordStore struct {
	inserted []domain.Keyword
}

func (m *mockKeywordStore) Insert(ctx context.Context, ks []domain.Keyword) error {
	m.inserted = append(m.inserted, ks...)
	return nil
}

type mockAI struct {
	generateFunc     func(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error)
	generateJSONFunc func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error)
}

func (m *mockAI) Generate(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, stage, prompt)
	}
	return &AIResult{Content: "generated"}, nil
}

func (m *mockAI) GenerateJSON(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
	if m.generateJSONFunc != nil {
		return m.generateJSONFunc(ctx, stage, prompt, out)
	}
	return &AIResult{}, nil
}

func jsonInto(t *testing.T, out any, v string) {
	t.Helper()
	if err := json.Unmarshal([]byte(v), out); err != nil {
		t.Fatal(err)
	}
}

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		keyword string
		want    domain.ContentType
	}{
		{"toolkit for teachers", domain.ContentArticle},
		{"best lawn mowers 2026", domain.ContentReview},
		{"mortgage calculator", domain.ContentCalculator},
		{"Elvis Presley biography", domain.ContentArticle},
		{"iphone vs android", domain.ContentComparison},
		{"macbook compared to thinkpad", domain.ContentComparison},
		{"free paint estimator", domain.ContentCalculator},
		{"woodworking tools guide", domain.ContentArticle},
		{"how much does a roof cost", domain.ContentCostGuide},
		{"solar panel price", domain.ContentCostGuide},
		{"do i qualify for medicaid", domain.ContentWizard},
		{"which mattress is right for side sleepers", domain.ContentWizard},
		{"should i rent or buy", domain.ContentWizard},
		{"car accident lawyer", domain.ContentLeadCapture},
		{"file an insurance claim", domain.ContentLeadCapture},
		{"claim to fame meaning", domain.ContentArticle},
		{"marketing case study examples", domain.ContentArticle},
		{"is melatonin safe", domain.ContentHealthDecision},
		{"ozempic side effects", domain.ContentHealthDecision},
		{"solar tax credit faq", domain.ContentFAQ},
		{"moving house checklist", domain.ContentChecklist},
		{"steps to start an llc", domain.ContentChecklist},
		{"airpods pro review", domain.ContentReview},
		{"top 10 crm platforms", domain.ContentReview},
		{"best practices for onboarding", domain.ContentArticle},
		{"best way to learn piano", domain.ContentArticle},
		{"", domain.ContentArticle},
	}
	for _, tc := range cases {
		if got := DetectContentType(tc.keyword); got != tc.want {
			t.Errorf("DetectContentType(%q) = %s, want %s", tc.keyword, got, tc.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Mortgage  Calculator!  ", "mortgage-calculator"},
		{"already-a-slug", "already-a-slug"},
		{"—", ""},
		{"***", ""},
		{"Crème Brûlée", "cr-me-br-l-e"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
		// Idempotence.
		if got := Slugify(Slugify(tc.in)); got != tc.want {
			t.Errorf("Slugify(Slugify(%q)) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugOrFallback(t *testing.T) {
	if got := SlugOrFallback("My Slug", "Title"); got != "my-slug" {
		t.Errorf("got %q", got)
	}
	if got := SlugOrFallback("—", "Fallback Title"); got != "fallback-title" {
		t.Errorf("got %q", got)
	}
	if got := SlugOrFallback("—", "***"); got != "untitled" {
		t.Errorf("got %q", got)
	}
}

func TestKeywordResearch_PicksBestRatio(t *testing.T) {
	queue := &fakeQueue{}
	keywords := &mockKeywordStore{}
	var created *domain.Article
	articles := &mockArticleStore{
		createFunc: func(ctx context.Context, a *domain.Article) error {
			created = a
			return nil
		},
	}
	ai := &mockAI{
		generateJSONFunc: func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
			jsonInto(t, out, `[
				{"keyword":"budget planner","volume":1000,"difficulty":50},
				{"keyword":"mortgage calculator","title":"Free Mortgage Calculator","volume":5000,"difficulty":20},
				{"keyword":"savings tips","volume":300,"difficulty":5}
			]`)
			return &AIResult{ModelKey: "research"}, nil
		},
	}

	p := New(queue, articles, &mockDomainStore{}, keywords, nil, nil, ai, nil, config.ReviewConfig{})
	domainID := "dom-1"
	job := &domain.Job{ID: "job-1", Type: domain.JobKeywordResearch, DomainID: &domainID}

	if err := p.handleKeywordResearch(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if len(keywords.inserted) != 3 {
		t.Fatalf("inserted %d keywords, want 3", len(keywords.inserted))
	}
	if created == nil {
		t.Fatal("no article stub created")
	}
	// 5000/20=250 beats 1000/50=20 and 300/5=60.
	if created.TargetKeyword != "mortgage calculator" {
		t.Errorf("target keyword = %q, want best ratio pick", created.TargetKeyword)
	}
	if created.Title != "Free Mortgage Calculator" {
		t.Errorf("title = %q", created.Title)
	}
	if created.Status != domain.ArticleDraft {
		t.Errorf("status = %s, want draft", created.Status)
	}
	if created.ContentType != domain.ContentCalculator {
		t.Errorf("content type = %s, want calculator", created.ContentType)
	}
	if created.Slug == "" {
		t.Error("stub slug must not be empty")
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0].Type != domain.JobResearch {
		t.Fatalf("enqueued = %+v, want one research job", queue.enqueued)
	}
}

func TestGenerateDraft_ShortContentFails(t *testing.T) {
	article := &domain.Article{
		ID:            "a-1",
		DomainID:      "dom-1",
		TargetKeyword: "garden sheds",
		ContentType:   domain.ContentArticle,
	}
	articles := &mockArticleStore{
		getFunc: func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
	}
	ai := &mockAI{
		generateFunc: func(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error) {
			return &AIResult{Content: "way too short"}, nil
		},
	}

	p := New(&fakeQueue{}, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-1"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateDraft, ArticleID: &articleID}

	err := p.handleGenerateDraft(context.Background(), job)
	if err == nil {
		t.Fatal("expected short-content failure")
	}
	if worker.IsRetryable(err) {
		t.Error("short content must not be retryable")
	}
}

func TestGenerateDraft_CalculatorAllowsShortContent(t *testing.T) {
	article := &domain.Article{
		ID:            "a-2",
		DomainID:      "dom-1",
		TargetKeyword: "mortgage calculator",
		ContentType:   domain.ContentCalculator,
	}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	ai := &mockAI{
		generateFunc: func(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error) {
			return &AIResult{Content: "Use the calculator below."}, nil
		},
	}
	queue := &fakeQueue{}

	p := New(queue, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-2"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateDraft, ArticleID: &articleID}

	if err := p.handleGenerateDraft(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if updated == nil || updated.GenerationPasses != 1 {
		t.Fatalf("updated = %+v, want generation pass 1", updated)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0].Type != domain.JobHumanize {
		t.Fatalf("enqueued = %+v, want humanize", queue.enqueued)
	}
}

func TestGenerateDraft_StripsEmDashes(t *testing.T) {
	article := &domain.Article{ID: "a-3", DomainID: "dom-1", ContentType: domain.ContentArticle}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	long := "word "
	for len(long) < 700 {
		long += "word "
	}
	ai := &mockAI{
		generateFunc: func(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error) {
			return &AIResult{Content: long + "clean — prose—here"}, nil
		},
	}

	p := New(&fakeQueue{}, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-3"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateDraft, ArticleID: &articleID}

	if err := p.handleGenerateDraft(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	for _, r := range updated.ContentMarkdown {
		if r == '—' {
			t.Fatal("em-dash survived the strip")
		}
	}
}

func TestGenerateOutline_DropsInvalidCalculatorConfig(t *testing.T) {
	article := &domain.Article{ID: "a-4", DomainID: "dom-1", TargetKeyword: "mortgage calculator"}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	ai := &mockAI{
		generateJSONFunc: func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
			jsonInto(t, out, `{
				"title":"Mortgage Calculator",
				"metaDescription":"Calculate your mortgage.",
				"outline":[{"h2":"Intro"}],
				"calculatorConfig":{"title":"calc","inputs":[],"formula":""}
			}`)
			return &AIResult{}, nil
		},
	}
	queue := &fakeQueue{}

	p := New(queue, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-4"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateOutline, ArticleID: &articleID}

	if err := p.handleGenerateOutline(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if updated == nil {
		t.Fatal("article not updated")
	}
	if len(updated.CalculatorConfig) != 0 {
		t.Error("invalid calculator config should be dropped")
	}
	if len(updated.HeaderStructure) == 0 {
		t.Error("outline should survive a dropped blob")
	}
	if updated.ContentType != domain.ContentCalculator {
		t.Errorf("content type = %s, want calculator", updated.ContentType)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0].Type != domain.JobGenerateDraft {
		t.Fatalf("enqueued = %+v, want generate_draft", queue.enqueued)
	}
}

func TestGenerateMeta_ReviewerOff(t *testing.T) {
	article := &domain.Article{
		ID: "a-5", DomainID: "dom-1", Title: "Some Title",
		TargetKeyword: "garden sheds", ContentType: domain.ContentArticle,
	}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	ai := &mockAI{
		generateJSONFunc: func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
			jsonInto(t, out, `{"title":"Garden Sheds Guide","metaDescription":"All about sheds.","slug":"—"}`)
			return &AIResult{}, nil
		},
	}

	p := New(&fakeQueue{}, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-5"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateMeta, ArticleID: &articleID}

	if err := p.handleGenerateMeta(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.ArticleReview {
		t.Errorf("status = %s, want review", updated.Status)
	}
	if updated.ReviewRequestedAt == nil {
		t.Error("review requested timestamp missing")
	}
	if updated.GenerationPasses != 4 {
		t.Errorf("passes = %d, want 4 without reviewer", updated.GenerationPasses)
	}
	// Bad slug falls back to the title.
	if updated.Slug != "garden-sheds-guide" {
		t.Errorf("slug = %q", updated.Slug)
	}
}

func TestGenerateMeta_ReviewerApproves(t *testing.T) {
	article := &domain.Article{
		ID: "a-6", DomainID: "dom-1", Title: "T",
		TargetKeyword: "garden sheds", ContentType: domain.ContentArticle,
	}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	calls := 0
	ai := &mockAI{
		generateJSONFunc: func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
			calls++
			if calls == 1 {
				jsonInto(t, out, `{"title":"T","metaDescription":"m","slug":"t"}`)
			} else {
				jsonInto(t, out, `{"approved":true}`)
			}
			return &AIResult{}, nil
		},
	}

	review := config.ReviewConfig{FallbackEnabled: true, ReviewModel: "opus-review"}
	p := New(&fakeQueue{}, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, review)
	articleID := "a-6"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateMeta, ArticleID: &articleID}

	if err := p.handleGenerateMeta(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.ArticleApproved {
		t.Errorf("status = %s, want approved", updated.Status)
	}
	if updated.GenerationPasses != 5 {
		t.Errorf("passes = %d, want 5 with reviewer", updated.GenerationPasses)
	}
	if updated.LastReviewedAt == nil {
		t.Error("last reviewed timestamp missing")
	}
}

func TestGenerateMeta_ReviewerErrorFallsBack(t *testing.T) {
	article := &domain.Article{
		ID: "a-7", DomainID: "dom-1", Title: "T",
		TargetKeyword: "garden sheds", ContentType: domain.ContentArticle,
	}
	var updated *domain.Article
	articles := &mockArticleStore{
		getFunc:    func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		updateFunc: func(ctx context.Context, a *domain.Article) error { updated = a; return nil },
	}
	calls := 0
	ai := &mockAI{
		generateJSONFunc: func(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error) {
			calls++
			if calls == 1 {
				jsonInto(t, out, `{"title":"T","metaDescription":"m","slug":"t"}`)
				return &AIResult{}, nil
			}
			return nil, errors.New("reviewer unavailable")
		},
	}

	review := config.ReviewConfig{FallbackEnabled: true, ReviewModel: "opus-review"}
	p := New(&fakeQueue{}, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, review)
	articleID := "a-7"
	job := &domain.Job{ID: "j", Type: domain.JobGenerateMeta, ArticleID: &articleID}

	if err := p.handleGenerateMeta(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.ArticleReview {
		t.Errorf("status = %s, want review fallback", updated.Status)
	}
	if updated.GenerationPasses != 4 {
		t.Errorf("passes = %d, want 4 when reviewer did not run", updated.GenerationPasses)
	}
}

func TestSEOOptimize_UsesSiblings(t *testing.T) {
	article := &domain.Article{ID: "a-8", DomainID: "dom-1", ContentType: domain.ContentArticle}
	var limitSeen int
	articles := &mockArticleStore{
		getFunc: func(ctx context.Context, id string) (*domain.Article, error) { return article, nil },
		siblingsFunc: func(ctx context.Context, domainID, excludeID string, limit int) ([]*domain.Article, error) {
			limitSeen = limit
			if excludeID != "a-8" {
				t.Errorf("excludeID = %q", excludeID)
			}
			return []*domain.Article{{Title: "Sibling", Slug: "sibling"}}, nil
		},
	}
	long := ""
	for i := 0; i < 200; i++ {
		long += "word "
	}
	ai := &mockAI{
		generateFunc: func(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error) {
			return &AIResult{Content: long}, nil
		},
	}
	queue := &fakeQueue{}

	p := New(queue, articles, &mockDomainStore{}, nil, nil, nil, ai, nil, config.ReviewConfig{})
	articleID := "a-8"
	job := &domain.Job{ID: "j", Type: domain.JobSEOOptimize, ArticleID: &articleID}

	if err := p.handleSEOOptimize(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if limitSeen != maxSiblingLinks {
		t.Errorf("sibling limit = %d, want %d", limitSeen, maxSiblingLinks)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0].Type != domain.JobGenerateMeta {
		t.Fatalf("enqueued = %+v, want generate_meta", queue.enqueued)
	}
}

func TestClassifyYMYL(t *testing.T) {
	cases := []struct {
		keyword     string
		contentType domain.ContentType
		want        string
	}{
		{"is melatonin safe", domain.ContentHealthDecision, "high"},
		{"car accident lawyer", domain.ContentLeadCapture, "high"},
		{"mortgage refinance rates", domain.ContentArticle, "high"},
		{"roof replacement cost", domain.ContentCostGuide, "medium"},
		{"garden sheds", domain.ContentArticle, "low"},
	}
	for _, tc := range cases {
		if got := ClassifyYMYL(tc.keyword, tc.contentType); got != tc.want {
			t.Errorf("ClassifyYMYL(%q, %s) = %q, want %q", tc.keyword, tc.contentType, got, tc.want)
		}
	}
}
