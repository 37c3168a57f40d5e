// Package remote implements the external collaborators as JSON-over-HTTP
// clients against sidecar services. Each client is constructed from one base
// URL; an empty URL makes every call fail with a configuration error so the
// job lands in the dead letter queue with an actionable message.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/draftpress/draftpress/internal/application/growth"
	"github.com/draftpress/draftpress/internal/application/underwriting"
	"github.com/draftpress/draftpress/internal/domain"
)

var (
	_ growth.ChannelAdapter  = (*PublishAdapter)(nil)
	_ growth.PolicyEvaluator = (*PolicyEngine)(nil)
	_ underwriting.Evaluator = (*ValuationClient)(nil)
	_ growth.Notifications   = (*Notifier)(nil)
)

// postJSON issues one POST and decodes the 200 response into out. Non-200
// statuses keep the code in the error text for the failure classifier.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// PublishAdapter posts creatives to the channel publishing sidecar.
type PublishAdapter struct {
	url  string
	http *http.Client
}

// NewPublishAdapter builds the adapter; url may be empty.
func NewPublishAdapter(url string, client *http.Client) *PublishAdapter {
	return &PublishAdapter{url: strings.TrimSuffix(url, "/"), http: client}
}

type publishRequest struct {
	Channel        domain.Channel `json:"channel"`
	CampaignID     string         `json:"campaignId"`
	Copy           string         `json:"copy"`
	DestinationURL string         `json:"destinationUrl"`
	AssetURL       string         `json:"assetUrl,omitempty"`
}

type publishResponse struct {
	ExternalPostID string            `json:"externalPostId"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (a *PublishAdapter) Publish(ctx context.Context, channel domain.Channel, req growth.PublishRequest, credential string) (*growth.PublishResult, error) {
	if a.url == "" {
		return nil, fmt.Errorf("PUBLISH_ADAPTER_URL is not set")
	}
	var resp publishResponse
	err := postJSON(ctx, a.http, a.url+"/publish",
		map[string]string{"Authorization": "Bearer " + credential},
		publishRequest{
			Channel:        channel,
			CampaignID:     req.CampaignID,
			Copy:           req.Copy,
			DestinationURL: req.DestinationURL,
			AssetURL:       req.AssetURL,
		}, &resp)
	if err != nil {
		return nil, err
	}
	return &growth.PublishResult{
		ExternalPostID: resp.ExternalPostID,
		Status:         resp.Status,
		Metadata:       resp.Metadata,
	}, nil
}

// PolicyEngine evaluates copy and destinations against the policy sidecar.
type PolicyEngine struct {
	url  string
	http *http.Client
}

// NewPolicyEngine builds the evaluator; url may be empty.
func NewPolicyEngine(url string, client *http.Client) *PolicyEngine {
	return &PolicyEngine{url: strings.TrimSuffix(url, "/"), http: client}
}

type policyRequest struct {
	Channel        domain.Channel `json:"channel"`
	Copy           string         `json:"copy"`
	DestinationURL string         `json:"destinationUrl"`
}

type policyResponse struct {
	Allowed              bool     `json:"allowed"`
	NormalizedCopy       string   `json:"normalizedCopy"`
	Warnings             []string `json:"warnings,omitempty"`
	Changes              []string `json:"changes,omitempty"`
	BlockReasons         []string `json:"blockReasons,omitempty"`
	DestinationHost      string   `json:"destinationHost"`
	DestinationRiskScore float64  `json:"destinationRiskScore"`
	PolicyPackID         string   `json:"policyPackId"`
	PolicyPackVersion    string   `json:"policyPackVersion"`
	ChecksApplied        []string `json:"checksApplied,omitempty"`
}

func (p *PolicyEngine) Evaluate(ctx context.Context, input growth.PolicyInput) (*growth.PolicyResult, error) {
	if p.url == "" {
		return nil, fmt.Errorf("POLICY_ENGINE_URL is not set")
	}
	var resp policyResponse
	err := postJSON(ctx, p.http, p.url+"/evaluate", nil, policyRequest{
		Channel:        input.Channel,
		Copy:           input.Copy,
		DestinationURL: input.DestinationURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &growth.PolicyResult{
		Allowed:              resp.Allowed,
		NormalizedCopy:       resp.NormalizedCopy,
		Warnings:             resp.Warnings,
		Changes:              resp.Changes,
		BlockReasons:         resp.BlockReasons,
		DestinationHost:      resp.DestinationHost,
		DestinationRiskScore: resp.DestinationRiskScore,
		PolicyPackID:         resp.PolicyPackID,
		PolicyPackVersion:    resp.PolicyPackVersion,
		ChecksApplied:        resp.ChecksApplied,
	}, nil
}

// ValuationClient scores auction candidates against the valuation sidecar.
// The evaluation snapshot comes back in the domain's own JSON shape.
type ValuationClient struct {
	url  string
	http *http.Client
}

// NewValuationClient builds the evaluator; url may be empty.
func NewValuationClient(url string, client *http.Client) *ValuationClient {
	return &ValuationClient{url: strings.TrimSuffix(url, "/"), http: client}
}

func (v *ValuationClient) EvaluateDomain(ctx context.Context, domainName string) (*domain.Evaluation, error) {
	if v.url == "" {
		return nil, fmt.Errorf("VALUATION_API_URL is not set")
	}
	var eval domain.Evaluation
	err := postJSON(ctx, v.http, v.url+"/evaluate", nil,
		map[string]string{"domain": domainName}, &eval)
	if err != nil {
		return nil, err
	}
	return &eval, nil
}

// Notifier delivers operator notifications to a webhook. Without a URL it
// degrades to a log line; notifications are fire-and-forget either way.
type Notifier struct {
	url  string
	http *http.Client
}

// NewNotifier builds the notifier; url may be empty.
func NewNotifier(url string, client *http.Client) *Notifier {
	return &Notifier{url: url, http: client}
}

func (n *Notifier) Create(ctx context.Context, kind, message string) error {
	if n.url == "" {
		slog.InfoContext(ctx, "operator notification", "kind", kind, "message", message)
		return nil
	}
	return postJSON(ctx, n.http, n.url, nil,
		map[string]string{"kind": kind, "message": message}, nil)
}
