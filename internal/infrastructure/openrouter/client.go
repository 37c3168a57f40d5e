// Package openrouter implements the pipeline AI collaborator over the
// OpenRouter chat-completions API. Model routing per stage is a static table;
// any stage not listed uses the configured default model.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/draftpress/draftpress/internal/application/pipeline"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

// routingVersion names the stage-to-model table below. Bump when the table
// changes so api_call_logs rows stay comparable.
const routingVersion = "routing-v2"

const promptVersion = "prompt-v3"

// stageModels routes heavy stages to a stronger model and leaves cheap
// bookkeeping stages on the default.
var stageModels = map[domain.JobType]string{
	domain.JobResearch:            "perplexity/sonar",
	domain.JobGenerateDraft:       "openai/gpt-4o",
	domain.JobHumanize:            "openai/gpt-4o",
	domain.JobGenerateShortScript: "openai/gpt-4o",
}

// Client calls OpenRouter and reports accounting metadata with every result.
type Client struct {
	cfg  config.AIConfig
	http *http.Client
}

var _ pipeline.AIClient = (*Client)(nil)

// New builds a client from the AI configuration.
func New(cfg config.AIConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
	Usage          usageSpec     `json:"usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type usageSpec struct {
	Include bool `json:"include"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one completion for the stage and returns the raw content.
func (c *Client) Generate(ctx context.Context, stage domain.JobType, prompt string) (*pipeline.AIResult, error) {
	return c.complete(ctx, stage, prompt, nil)
}

// GenerateJSON requests a JSON object response and decodes it into out. The
// accounting result is returned even though the content is consumed.
func (c *Client) GenerateJSON(ctx context.Context, stage domain.JobType, prompt string, out any) (*pipeline.AIResult, error) {
	res, err := c.complete(ctx, stage, prompt, &formatSpec{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stripFences(res.Content)), out); err != nil {
		return nil, fmt.Errorf("failed to decode model JSON output: %w", err)
	}
	return res, nil
}

// complete tries the stage's routed model first and falls back to the default
// model on a retryable provider error.
func (c *Client) complete(ctx context.Context, stage domain.JobType, prompt string, format *formatSpec) (*pipeline.AIResult, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}

	modelKey := c.cfg.Model
	if routed, ok := stageModels[stage]; ok {
		modelKey = routed
	}

	res, err := c.call(ctx, modelKey, prompt, format)
	if err == nil || modelKey == c.cfg.Model || !retryableStatus(err) {
		return res, err
	}

	res, fallbackErr := c.call(ctx, c.cfg.Model, prompt, format)
	if fallbackErr != nil {
		return nil, err
	}
	res.Fallback = true
	return res, nil
}

func (c *Client) call(ctx context.Context, model, prompt string, format *formatSpec) (*pipeline.AIResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: format,
		Usage:          usageSpec{Include: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read openrouter response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError{code: resp.StatusCode, body: truncate(string(raw), 300)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode openrouter response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openrouter error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	return &pipeline.AIResult{
		Content:        parsed.Choices[0].Message.Content,
		ModelKey:       model,
		ResolvedModel:  parsed.Model,
		PromptVersion:  promptVersion,
		RoutingVersion: routingVersion,
		InputTokens:    parsed.Usage.PromptTokens,
		OutputTokens:   parsed.Usage.CompletionTokens,
		CostUSD:        parsed.Usage.Cost,
		Duration:       time.Since(start),
	}, nil
}

// statusError keeps the HTTP status in the message so the failure classifier
// can pattern-match rate limits and gateway errors.
type statusError struct {
	code int
	body string
}

func (e statusError) Error() string {
	return fmt.Sprintf("openrouter: status %d: %s", e.code, e.body)
}

func retryableStatus(err error) bool {
	se, ok := err.(statusError)
	if !ok {
		return false
	}
	return se.code == http.StatusTooManyRequests || se.code >= 500
}

// stripFences removes a markdown code fence wrapper some models emit around
// JSON even in json_object mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
