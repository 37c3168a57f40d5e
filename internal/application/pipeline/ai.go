package pipeline

import (
	"context"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// AIResult carries the content plus the routing and accounting metadata that
// every AI call returns. The model and version fields are opaque strings.
type AIResult struct {
	Content        string
	ModelKey       string
	ResolvedModel  string
	PromptVersion  string
	RoutingVersion string
	Fallback       bool
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	Duration       time.Duration
}

// AIClient is the generation collaborator. GenerateJSON decodes the model
// output into out and still returns the accounting metadata.
type AIClient interface {
	Generate(ctx context.Context, stage domain.JobType, prompt string) (*AIResult, error)
	GenerateJSON(ctx context.Context, stage domain.JobType, prompt string, out any) (*AIResult, error)
}
