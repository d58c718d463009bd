// Package router classifies extracted facts into dispositions based on
// confidence thresholds. Routing is a pure function with no side effects.
package router

import (
	"fmt"
	"strings"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// Thresholds holds the confidence cut-offs for routing.
// Invariant: 0 <= Low <= High <= 1.
type Thresholds struct {
	High float64
	Low  float64
}

// Validate checks threshold ordering and range.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 || t.Low > t.High {
		return fmt.Errorf("thresholds must satisfy 0 <= low (%.2f) <= high (%.2f) <= 1", t.Low, t.High)
	}
	return nil
}

// Router maps a fact to exactly one disposition:
//
//	confidence >= High          -> AutoCommit
//	Low <= confidence < High    -> NeedsConfirmation
//	confidence < Low            -> Reject
//
// A hard keyword in the source utterance forces NeedsConfirmation regardless
// of confidence, so exclusivity language ("only", "must") is never committed
// without the user seeing it.
type Router struct {
	thresholds   Thresholds
	hardKeywords []string
}

// New creates a Router. hardKeywords may be empty to disable keyword forcing.
func New(t Thresholds, hardKeywords []string) (*Router, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	lowered := make([]string, 0, len(hardKeywords))
	for _, k := range hardKeywords {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Router{thresholds: t, hardKeywords: lowered}, nil
}

// Route returns the disposition for a fact.
func (r *Router) Route(fact models.Fact) models.Disposition {
	if r.hardKeyword(fact.SourceUtterance) != "" {
		return models.DispositionNeedsConfirmation
	}
	switch {
	case fact.Confidence >= r.thresholds.High:
		return models.DispositionAutoCommit
	case fact.Confidence >= r.thresholds.Low:
		return models.DispositionNeedsConfirmation
	default:
		return models.DispositionReject
	}
}

// Reason builds the user-facing explanation attached to a pending
// confirmation.
func (r *Router) Reason(fact models.Fact) string {
	if kw := r.hardKeyword(fact.SourceUtterance); kw != "" {
		switch kw {
		case "only", "just", "exclusively", "nothing else":
			return fmt.Sprintf("You said %q - confirming this is an exclusive requirement", kw)
		case "must", "need to", "have to", "required":
			return fmt.Sprintf("You said %q - confirming this is a strict requirement", kw)
		case "relocating", "moving to", "must be in":
			return "You mentioned relocating - confirming this is a firm commitment"
		default:
			return "This appears to be a critical requirement - please confirm"
		}
	}
	return fmt.Sprintf("Detected %q with %d%% confidence - please verify",
		fact.Payload.Value, int(fact.Confidence*100+0.5))
}

// hardKeyword returns the first configured keyword present in the utterance,
// or "" when none match.
func (r *Router) hardKeyword(utterance string) string {
	if utterance == "" {
		return ""
	}
	lower := strings.ToLower(utterance)
	for _, kw := range r.hardKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
