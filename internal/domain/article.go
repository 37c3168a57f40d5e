package domain

import (
	"encoding/json"
	"time"
)

// ArticleStatus is the editorial lifecycle state of an article.
type ArticleStatus string

const (
	ArticleDraft      ArticleStatus = "draft"
	ArticleGenerating ArticleStatus = "generating"
	ArticleReview     ArticleStatus = "review"
	ArticleApproved   ArticleStatus = "approved"
	ArticlePublished  ArticleStatus = "published"
)

// ContentType selects the generation prompt family for an article. Detected
// from the target keyword with word-boundary matching.
type ContentType string

const (
	ContentArticle        ContentType = "article"
	ContentComparison     ContentType = "comparison"
	ContentCalculator     ContentType = "calculator"
	ContentCostGuide      ContentType = "cost_guide"
	ContentWizard         ContentType = "wizard"
	ContentLeadCapture    ContentType = "lead_capture"
	ContentHealthDecision ContentType = "health_decision"
	ContentFAQ            ContentType = "faq"
	ContentChecklist      ContentType = "checklist"
	ContentReview         ContentType = "review"
)

// Article holds the fields the pipeline reads and writes. JSON columns stay
// raw; each stage decodes only what it needs.
type Article struct {
	ID                string
	DomainID          string
	Title             string
	Slug              string
	Status            ArticleStatus
	ContentMarkdown   string
	MetaDescription   string
	HeaderStructure   json.RawMessage
	ResearchData      json.RawMessage
	ContentType       ContentType
	TargetKeyword     string
	SecondaryKeywords []string
	CalculatorConfig  json.RawMessage
	ComparisonData    json.RawMessage
	GenerationPasses  int
	WordCount         int
	YMYLLevel         string
	ReviewRequestedAt *time.Time
	LastReviewedAt    *time.Time
	LastRefreshedAt   *time.Time
	IsSeedArticle     bool
	CreatedAt         time.Time
}

// Keyword is a stored keyword opportunity for a domain.
type Keyword struct {
	ID         string
	DomainID   string
	Keyword    string
	Volume     int
	Difficulty int
	CreatedAt  time.Time
}

// Ratio is the opportunity score used to pick the best keyword for an
// article stub. Zero difficulty counts as 1 to keep the ratio finite.
func (k Keyword) Ratio() float64 {
	d := k.Difficulty
	if d <= 0 {
		d = 1
	}
	return float64(k.Volume) / float64(d)
}

// DomainBucket classifies how a domain is operated; it drives the content
// cadence profile.
type DomainBucket string

const (
	BucketBuild     DomainBucket = "build"
	BucketRedirect  DomainBucket = "redirect"
	BucketPark      DomainBucket = "park"
	BucketDefensive DomainBucket = "defensive"
)

// ContentSchedule is the per-domain override for publication cadence.
type ContentSchedule struct {
	Frequency string `json:"frequency,omitempty"` // daily, weekly, sporadic
	TimeOfDay string `json:"timeOfDay,omitempty"` // morning, evening, random
}

// Domain is an operated web property.
type Domain struct {
	ID        string
	Name      string // the domain name itself, e.g. "example.com"
	TLD       string
	Status    string
	Niche     string
	SubNiche  string
	Bucket    DomainBucket
	Schedule  ContentSchedule
	VoiceSeed string
	DeletedAt *time.Time
	CreatedAt time.Time
}

// Revision is an append-only record of a pipeline mutation to an article.
type Revision struct {
	ID        string
	ArticleID string
	Stage     JobType
	Summary   string
	CreatedAt time.Time
}

// APICallLog is insert-only accounting for one AI collaborator call. The
// model/routing fields are opaque strings to the queue.
type APICallLog struct {
	ID             string
	ArticleID      *string
	Stage          JobType
	ModelKey       string
	ResolvedModel  string
	PromptVersion  string
	RoutingVersion string
	Fallback       bool
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	Duration       time.Duration
	CreatedAt      time.Time
}
