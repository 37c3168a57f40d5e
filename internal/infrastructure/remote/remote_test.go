package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/draftpress/draftpress/internal/application/growth"
	"github.com/draftpress/draftpress/internal/domain"
)

func TestPublishAdapter_Publish(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq publishRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.NewEncoder(w).Encode(publishResponse{
			ExternalPostID: "pin-123",
			Status:         "published",
			Metadata:       map[string]string{"board": "main"},
		}))
	}))
	defer srv.Close()

	adapter := NewPublishAdapter(srv.URL, srv.Client())
	res, err := adapter.Publish(context.Background(), domain.ChannelPinterest, growth.PublishRequest{
		CampaignID:     "camp-1",
		Copy:           "fresh pin",
		DestinationURL: "https://example.com/post",
		AssetURL:       "https://cdn.example.com/a.png",
	}, "secret-cred")
	require.NoError(t, err)
	require.Equal(t, "pin-123", res.ExternalPostID)
	require.Equal(t, "published", res.Status)
	require.Equal(t, "main", res.Metadata["board"])

	require.Equal(t, "/publish", gotPath)
	require.Equal(t, "Bearer secret-cred", gotAuth)
	require.Equal(t, domain.ChannelPinterest, gotReq.Channel)
	require.Equal(t, "camp-1", gotReq.CampaignID)
}

func TestPublishAdapter_ErrorKeepsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewPublishAdapter(srv.URL, srv.Client())
	_, err := adapter.Publish(context.Background(), domain.ChannelPinterest, growth.PublishRequest{}, "c")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestPublishAdapter_Unconfigured(t *testing.T) {
	adapter := NewPublishAdapter("", http.DefaultClient)
	_, err := adapter.Publish(context.Background(), domain.ChannelPinterest, growth.PublishRequest{}, "c")
	require.ErrorContains(t, err, "PUBLISH_ADAPTER_URL")
}

func TestPolicyEngine_Evaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/evaluate", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(policyResponse{
			Allowed:              false,
			BlockReasons:         []string{"link shortener"},
			DestinationHost:      "bit.ly",
			DestinationRiskScore: 0.9,
			PolicyPackID:         "core",
			PolicyPackVersion:    "7",
		}))
	}))
	defer srv.Close()

	engine := NewPolicyEngine(srv.URL, srv.Client())
	res, err := engine.Evaluate(context.Background(), growth.PolicyInput{
		Channel:        domain.ChannelPinterest,
		Copy:           "click here",
		DestinationURL: "https://bit.ly/x",
	})
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, []string{"link shortener"}, res.BlockReasons)
	require.InDelta(t, 0.9, res.DestinationRiskScore, 1e-9)
}

func TestValuationClient_EvaluateDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "coastalkayaks.com", req["domain"])
		require.NoError(t, json.NewEncoder(w).Encode(domain.Evaluation{
			CompositeScore: 0.81,
			Confidence:     0.7,
			MaxBid:         420,
			Recommendation: "buy",
		}))
	}))
	defer srv.Close()

	client := NewValuationClient(srv.URL, srv.Client())
	eval, err := client.EvaluateDomain(context.Background(), "coastalkayaks.com")
	require.NoError(t, err)
	require.Equal(t, "buy", eval.Recommendation)
	require.InDelta(t, 420.0, eval.MaxBid, 1e-9)
}

func TestNotifier_LogsWithoutURL(t *testing.T) {
	n := NewNotifier("", http.DefaultClient)
	require.NoError(t, n.Create(context.Background(), "integrity_alert", "campaign camp-1 blocked rate high"))
}

func TestNotifier_PostsToWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, srv.Client())
	require.NoError(t, n.Create(context.Background(), "integrity_alert", "msg"))
	require.Equal(t, "integrity_alert", got["kind"])
	require.Equal(t, "msg", got["message"])
}
