package config

import "time"

// AIConfig configures the OpenRouter generation client.
type AIConfig struct {
	APIKey  string        `env:"OPENROUTER_API_KEY"`
	BaseURL string        `env:"OPENROUTER_BASE_URL"`
	Model   string        `env:"OPENROUTER_DEFAULT_MODEL"`
	Timeout time.Duration `env:"OPENROUTER_TIMEOUT"`
}

func (c *AIConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Model == "" {
		c.Model = "openai/gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

// RemoteConfig points at the sidecar services implementing the external
// collaborators. An empty URL leaves the collaborator unconfigured; calls
// through it fail with a descriptive error instead of panicking.
type RemoteConfig struct {
	PublishAdapterURL string        `env:"PUBLISH_ADAPTER_URL"`
	PolicyEngineURL   string        `env:"POLICY_ENGINE_URL"`
	ValuationURL      string        `env:"VALUATION_API_URL"`
	NotifyWebhookURL  string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout           time.Duration `env:"REMOTE_CALL_TIMEOUT"`
}

func (c *RemoteConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}
