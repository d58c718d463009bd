package extractor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractionalquest/voicegraph/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
		wantErr  bool
	}{
		{
			name:     "wrapped object",
			response: `{"facts": [{"type": "skill", "value": "golang", "confidence": 0.9}]}`,
			want:     1,
		},
		{
			name:     "empty facts",
			response: `{"facts": []}`,
			want:     0,
		},
		{
			name:     "bare array",
			response: `[{"type": "skill", "value": "golang", "confidence": 0.9}]`,
			want:     1,
		},
		{
			name: "json wrapped in prose is salvaged",
			response: `Here are the extracted facts:
{"facts": [{"type": "company", "value": "Initech", "confidence": 0.85}]}
Let me know if you need anything else.`,
			want: 1,
		},
		{
			name:     "fenced code block is salvaged",
			response: "```json\n{\"facts\": [{\"type\": \"skill\", \"value\": \"golang\", \"confidence\": 0.9}]}\n```",
			want:     1,
		},
		{
			name:     "no json at all",
			response: "I could not extract anything from that.",
			wantErr:  true,
		},
		{
			name:     "unbalanced json",
			response: `{"facts": [{"type": "skill"`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := ParseFacts(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, facts, tt.want)
		})
	}
}

func TestParseFactsFields(t *testing.T) {
	facts, err := ParseFacts(`{"facts": [{
		"type": "role_preference",
		"value": "fractional COO",
		"attrs": {"seniority": "executive", "days_per_week": 3},
		"confidence": 0.72,
		"raw_text": "looking for fractional COO work"
	}]}`)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	f := facts[0]
	assert.Equal(t, models.FactTypeRolePreference, f.Type)
	assert.Equal(t, "fractional COO", f.Value)
	assert.InDelta(t, 0.72, f.Confidence, 1e-9)
	assert.Equal(t, "looking for fractional COO work", f.RawText)
	assert.Equal(t, "executive", f.Attrs["seniority"])
}

func TestExtractRejectsShortUtterance(t *testing.T) {
	e := NewClaudeExtractor("test-key", "test-model", 12, discardLogger())

	_, err := e.Extract(context.Background(), "hi", UserContext{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrUtteranceTooShort)

	// Whitespace padding does not count toward the minimum.
	_, err = e.Extract(context.Background(), "   hello     ", UserContext{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrUtteranceTooShort)

	// Length is measured in characters, not bytes: six kanji encode to 18
	// bytes but are still below a 12-character minimum.
	_, err = e.Extract(context.Background(), "東京在住六年", UserContext{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrUtteranceTooShort)
}
