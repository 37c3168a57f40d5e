package pipeline

import (
	"regexp"
	"strings"

	"github.com/draftpress/draftpress/internal/domain"
)

// Content-type detection runs word-boundary matches on the lowercased target
// keyword. Rules are checked in a fixed order; the first hit wins.
var (
	reComparison = regexp.MustCompile(`\b(vs|versus)\b`)

	reCalculator = regexp.MustCompile(`\b(calculator|estimator|compute|tool)\b`)

	reCost = regexp.MustCompile(`\b(cost|costs|price|prices|fee|fees)\b`)

	reEligibility = regexp.MustCompile(`\b(eligible|eligibility|qualify|qualification)\b`)
	reWhich       = regexp.MustCompile(`\bwhich\b`)

	reLawyer = regexp.MustCompile(`\b(lawyer|lawyers|attorney|attorneys)\b`)
	reClaim  = regexp.MustCompile(`\bclaim\b`)
	reCase   = regexp.MustCompile(`\bcase\b`)

	reHealth = regexp.MustCompile(`\b(safe|treatment|treatments|symptom|symptoms|diagnosis)\b`)

	reFAQ = regexp.MustCompile(`\b(faq|faqs|questions|answered)\b`)

	reChecklist = regexp.MustCompile(`\bchecklist\b`)

	reReview = regexp.MustCompile(`\b(review|reviews)\b`)
	reBest   = regexp.MustCompile(`\bbest\s`)
	reTopN   = regexp.MustCompile(`\btop\s\d`)
)

// DetectContentType maps a target keyword to the prompt family used for
// generation. Word boundaries matter: "toolkit" is not a tool, "Elvis" is not
// a versus.
func DetectContentType(keyword string) domain.ContentType {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return domain.ContentArticle
	}

	switch {
	case reComparison.MatchString(kw) || strings.Contains(kw, "compared to"):
		return domain.ContentComparison

	case reCalculator.MatchString(kw):
		return domain.ContentCalculator

	case reCost.MatchString(kw) || strings.Contains(kw, "how much"):
		return domain.ContentCostGuide

	case reEligibility.MatchString(kw),
		strings.Contains(kw, "find out if"),
		strings.Contains(kw, "do i qualify"),
		reWhich.MatchString(kw) && strings.Contains(kw, "right for"),
		strings.Contains(kw, "should i") && (strings.Contains(kw, " or ") || strings.Contains(kw, "choose")):
		return domain.ContentWizard

	case reLawyer.MatchString(kw),
		strings.Contains(kw, "get a quote"),
		reClaim.MatchString(kw) && !strings.Contains(kw, "claim to"),
		reCase.MatchString(kw) && !strings.Contains(kw, "case study"):
		return domain.ContentLeadCapture

	case reHealth.MatchString(kw) || strings.Contains(kw, "side effects"):
		return domain.ContentHealthDecision

	case reFAQ.MatchString(kw) || strings.Contains(kw, "q&a"):
		return domain.ContentFAQ

	case reChecklist.MatchString(kw),
		strings.Contains(kw, "step by step"),
		strings.Contains(kw, "steps to"):
		return domain.ContentChecklist

	case reReview.MatchString(kw),
		reBest.MatchString(kw) && !strings.Contains(kw, "best practice") && !strings.Contains(kw, "best way to"),
		reTopN.MatchString(kw):
		return domain.ContentReview
	}

	return domain.ContentArticle
}
