package jsonsalvage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "object wrapped in prose",
			input:    `Here is the result: {"facts": []} hope that helps!`,
			expected: `{"facts": []}`,
		},
		{
			name:     "array in markdown fence",
			input:    "```json\n[{\"value\": \"go\"}]\n```",
			expected: `[{"value": "go"}]`,
		},
		{
			name:     "nested objects",
			input:    `x {"a": {"b": {"c": 3}}} y`,
			expected: `{"a": {"b": {"c": 3}}}`,
		},
		{
			name:     "braces inside string literals",
			input:    `{"note": "use {curly} braces", "ok": true}`,
			expected: `{"note": "use {curly} braces", "ok": true}`,
		},
		{
			name:     "escaped quote inside string",
			input:    `{"note": "she said \"hi\" {"}`,
			expected: `{"note": "she said \"hi\" {"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtract_NoJSON(t *testing.T) {
	for _, input := range []string{"", "no json here", "{unclosed", "[1, 2"} {
		_, err := Extract(input)
		assert.ErrorIs(t, err, ErrNoJSON, "input: %q", input)
	}
}
