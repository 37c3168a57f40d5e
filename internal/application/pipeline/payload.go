package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/draftpress/draftpress/internal/domain"
)

// KeywordResearchPayload seeds a new pipeline for a domain.
type KeywordResearchPayload struct {
	DomainID    string `json:"domainId"`
	Niche       string `json:"niche,omitempty"`
	TargetCount int    `json:"targetCount,omitempty"` // default 3
}

// StagePayload is the minimal payload every later stage carries. Stages
// re-read article state from the store instead of passing it along.
type StagePayload struct {
	ArticleID string `json:"articleId"`
}

func decodeKeywordResearchPayload(job *domain.Job) (*KeywordResearchPayload, error) {
	var p KeywordResearchPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.DomainID == "" && job.DomainID != nil {
		p.DomainID = *job.DomainID
	}
	if p.DomainID == "" {
		return nil, fmt.Errorf("keyword research payload has no domain id")
	}
	if p.TargetCount <= 0 {
		p.TargetCount = 3
	}
	return &p, nil
}

func decodeStagePayload(job *domain.Job) (*StagePayload, error) {
	var p StagePayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.ArticleID == "" && job.ArticleID != nil {
		p.ArticleID = *job.ArticleID
	}
	if p.ArticleID == "" {
		return nil, fmt.Errorf("stage payload has no article id")
	}
	return &p, nil
}

func decodePayload(job *domain.Job, out any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", job.Type, err)
	}
	return nil
}
