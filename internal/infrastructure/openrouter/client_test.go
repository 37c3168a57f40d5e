package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

func testClient(url string) *Client {
	return New(config.AIConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test/default",
		Timeout: 5 * time.Second,
	})
}

func completionBody(model, content string) map[string]any {
	return map[string]any{
		"model": model,
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     12,
			"completion_tokens": 34,
			"cost":              0.0021,
		},
	}
}

func TestGenerate_ReturnsContentAndAccounting(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.NewEncoder(w).Encode(completionBody("test/default-2026", "hello")))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Generate(context.Background(), domain.JobGenerateMeta, "write a meta description")
	require.NoError(t, err)
	require.Equal(t, "hello", res.Content)
	require.Equal(t, "test/default", res.ModelKey)
	require.Equal(t, "test/default-2026", res.ResolvedModel)
	require.Equal(t, 12, res.InputTokens)
	require.Equal(t, 34, res.OutputTokens)
	require.InDelta(t, 0.0021, res.CostUSD, 1e-9)
	require.False(t, res.Fallback)

	require.Equal(t, "Bearer test-key", gotAuth)
	require.Equal(t, "test/default", gotReq.Model)
	require.True(t, gotReq.Usage.Include)
}

func TestGenerate_RoutedStageFallsBackToDefault(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)
		if req.Model != "test/default" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(completionBody(req.Model, "draft")))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Generate(context.Background(), domain.JobGenerateDraft, "write")
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.Equal(t, []string{stageModels[domain.JobGenerateDraft], "test/default"}, models)
}

func TestGenerate_RateLimitErrorKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate(context.Background(), domain.JobGenerateMeta, "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestGenerateJSON_StripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := completionBody("test/default", "```json\n{\"title\":\"fenced\"}\n```")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	defer srv.Close()

	var out struct {
		Title string `json:"title"`
	}
	_, err := testClient(srv.URL).GenerateJSON(context.Background(), domain.JobGenerateMeta, "x", &out)
	require.NoError(t, err)
	require.Equal(t, "fenced", out.Title)
}

func TestGenerate_MissingKey(t *testing.T) {
	c := New(config.AIConfig{BaseURL: "http://unused", Model: "m"})
	_, err := c.Generate(context.Background(), domain.JobResearch, "x")
	require.ErrorContains(t, err, "OPENROUTER_API_KEY")
}
