package domain

// FailureCategory classifies why a job failed. Retryable categories are
// eligible for in-band backoff retries and the transient auto-retry sweep.
type FailureCategory string

const (
	FailureRateLimit     FailureCategory = "rate_limit"
	FailureTimeout       FailureCategory = "timeout"
	FailureNetwork       FailureCategory = "network"
	FailureProvider      FailureCategory = "provider_error"
	FailureValidation    FailureCategory = "validation"
	FailureMissingEntity FailureCategory = "missing_entity"
	FailurePayloadSchema FailureCategory = "payload_schema"
	FailureFlagDisabled  FailureCategory = "feature_flag_disabled"
	FailureDeadLetter    FailureCategory = "dead_letter"
	FailureUnknown       FailureCategory = "unknown"
)

// Retryable reports whether jobs failing with this category should be retried.
func (c FailureCategory) Retryable() bool {
	switch c {
	case FailureRateLimit, FailureTimeout, FailureNetwork, FailureProvider:
		return true
	}
	return false
}

// Failure is the structured classification stored in result.failure.
type Failure struct {
	Category         FailureCategory   `json:"category"`
	Confidence       float64           `json:"confidence"`
	Retryable        bool              `json:"retryable"`
	HumanReadable    string            `json:"humanReadable"`
	SuggestedAction  string            `json:"suggestedAction,omitempty"`
	ExtractedDetails map[string]string `json:"extractedDetails,omitempty"`

	// AutoRetryTransientCount counts administrative transient re-queues.
	AutoRetryTransientCount int `json:"autoRetryTransientCount,omitempty"`
}
