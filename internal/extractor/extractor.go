// Package extractor turns raw voice transcripts into candidate facts using
// the Claude API.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/pkg/jsonsalvage"
	"github.com/fractionalquest/voicegraph/pkg/xmlutil"
)

// ErrExtraction wraps upstream failures: service errors, timeouts, and
// responses that stay malformed after the salvage attempt. Callers may
// re-prompt the user; they must not retry in a loop.
var ErrExtraction = errors.New("extraction failed")

// ErrUtteranceTooShort is returned before any upstream call when the
// utterance is below the configured minimum length.
var ErrUtteranceTooShort = errors.New("utterance too short")

// UserContext carries caller-supplied context for extraction prompts.
type UserContext struct {
	UserID   string
	UserKind string // "candidate" or "client"
}

// Extractor extracts structured facts from an utterance.
type Extractor interface {
	Extract(ctx context.Context, utterance string, userCtx UserContext) ([]models.Fact, error)
}

// ClaudeExtractor uses Claude to extract facts. Pure adapter; no state.
type ClaudeExtractor struct {
	client   *anthropic.Client
	model    string
	minChars int
	logger   *slog.Logger
}

// NewClaudeExtractor creates a Claude-backed extractor. minChars below zero
// is treated as zero.
func NewClaudeExtractor(apiKey, model string, minChars int, logger *slog.Logger) *ClaudeExtractor {
	if minChars < 0 {
		minChars = 0
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeExtractor{
		client:   &client,
		model:    model,
		minChars: minChars,
		logger:   logger,
	}
}

// extractionPromptTemplate is the base prompt; utterance content is injected
// via an XML tag to prevent prompt injection.
const extractionPromptTemplate = `You are a career fact extraction system for a fractional-executive job platform. Analyze the spoken utterance and extract discrete facts about the %s.

For each fact provide:
- type: One of "skill", "company", "role_preference", "general_preference"
  - skill: A named skill or area of expertise
  - company: A company the user worked at or mentions working for
  - role_preference: A role, seniority or engagement type the user wants
  - general_preference: Location, availability, day rate, or other preference
- value: The canonical value (concise, standalone)
- attrs: Optional attributes (years, seniority, remote, rate, ...)
- confidence: 0.0-1.0 how confident you are this is explicitly stated
- raw_text: the exact fragment of the utterance this came from

Only extract EXPLICIT facts. Return a JSON object:
{"facts": [...]}
If nothing worth extracting, return {"facts": []}.

<utterance>%s</utterance>

Extract facts as JSON:`

type extractionResponse struct {
	Facts []models.ExtractedFact `json:"facts"`
}

func (e *ClaudeExtractor) Extract(ctx context.Context, utterance string, userCtx UserContext) ([]models.Fact, error) {
	trimmed := strings.TrimSpace(utterance)
	// Length is counted in characters, not bytes, so multi-byte transcripts
	// are not over-counted.
	if n := utf8.RuneCountInString(trimmed); n < e.minChars {
		return nil, fmt.Errorf("%w: %d chars, need %d", ErrUtteranceTooShort, n, e.minChars)
	}

	kind := userCtx.UserKind
	if kind == "" {
		kind = "candidate"
	}
	prompt := fmt.Sprintf(extractionPromptTemplate, kind, xmlutil.Escape(trimmed))

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise fact extraction system. Output only valid JSON."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: calling Claude API: %v", ErrExtraction, err)
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = resp.Content[i].Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("%w: empty response from Claude", ErrExtraction)
	}

	e.logger.Debug("claude extraction response", "response", responseText)

	raw, err := ParseFacts(responseText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrExtraction, err, responseText)
	}

	return e.materialize(raw, userCtx, trimmed), nil
}

// ParseFacts decodes the LLM response. On malformed output it makes one
// bounded salvage attempt: locate the first balanced JSON block in the text
// and decode that. It never retries the upstream call.
func ParseFacts(responseText string) ([]models.ExtractedFact, error) {
	var wrapped extractionResponse
	if err := json.Unmarshal([]byte(responseText), &wrapped); err == nil {
		return wrapped.Facts, nil
	}

	// Bare array is also accepted.
	var facts []models.ExtractedFact
	if err := json.Unmarshal([]byte(responseText), &facts); err == nil {
		return facts, nil
	}

	salvaged, err := jsonsalvage.Extract(responseText)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	if err := json.Unmarshal([]byte(salvaged), &wrapped); err == nil {
		return wrapped.Facts, nil
	}
	if err := json.Unmarshal([]byte(salvaged), &facts); err != nil {
		return nil, fmt.Errorf("parsing salvaged extraction response: %w", err)
	}
	return facts, nil
}

// materialize assigns IDs and timestamps and drops facts with unknown types
// or out-of-range confidence.
func (e *ClaudeExtractor) materialize(raw []models.ExtractedFact, userCtx UserContext, utterance string) []models.Fact {
	now := time.Now().UTC()
	out := make([]models.Fact, 0, len(raw))
	for i := range raw {
		if !raw[i].Type.IsValid() {
			e.logger.Warn("dropping fact with unknown type", "type", raw[i].Type, "value", raw[i].Value)
			continue
		}
		if raw[i].Confidence < 0 || raw[i].Confidence > 1 || raw[i].Value == "" {
			e.logger.Warn("dropping malformed fact", "value", raw[i].Value, "confidence", raw[i].Confidence)
			continue
		}
		source := raw[i].RawText
		if source == "" {
			source = utterance
		}
		out = append(out, models.Fact{
			ID:     uuid.NewString(),
			UserID: userCtx.UserID,
			Type:   raw[i].Type,
			Payload: models.FactPayload{
				Value: raw[i].Value,
				Attrs: raw[i].Attrs,
			},
			Confidence:      raw[i].Confidence,
			SourceUtterance: source,
			ExtractedAt:     now,
		})
	}

	e.logger.Info("extracted facts", "total", len(raw), "kept", len(out))
	return out
}
