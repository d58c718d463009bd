package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "golang", want: "golang"},
		{name: "mixed case", input: "Supply Chain", want: "supply-chain"},
		{name: "extra whitespace collapsed", input: "  supply   chain  ops ", want: "supply-chain-ops"},
		{name: "tabs and newlines", input: "supply\tchain\nops", want: "supply-chain-ops"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.input))
		})
	}
}

func TestFactNaturalKey(t *testing.T) {
	f := Fact{Payload: FactPayload{Value: "  Supply Chain  "}}
	assert.Equal(t, "supply-chain", f.NaturalKey())

	// Two facts with equivalent values collide on the same key.
	g := Fact{Payload: FactPayload{Value: "supply   CHAIN"}}
	assert.Equal(t, f.NaturalKey(), g.NaturalKey())
}

func TestFactTypeIsValid(t *testing.T) {
	for _, ft := range ValidFactTypes {
		assert.True(t, ft.IsValid(), "expected %q to be valid", ft)
	}
	assert.False(t, FactType("hobby").IsValid())
	assert.False(t, FactType("").IsValid())
}

func TestNodeKey(t *testing.T) {
	key := NodeKey("user-1", FactTypeSkill, "supply-chain")
	assert.Equal(t, "user-1:skill:supply-chain", key)

	f := Fact{
		UserID:     "user-1",
		Type:       FactTypeSkill,
		Payload:    FactPayload{Value: "Supply Chain"},
		Confidence: 0.92,
	}
	node := GraphNodeForFact(f, false)
	assert.Equal(t, key, node.Key)
	assert.Equal(t, "Supply Chain", node.Label)
	assert.False(t, node.Validated)
	assert.InDelta(t, 0.92, node.Confidence, 1e-9)

	// The same fact always maps to the same node key.
	assert.Equal(t, node.Key, GraphNodeForFact(f, true).Key)
}

func TestConfirmationStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusDenied.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestDecisionIsValid(t *testing.T) {
	assert.True(t, DecisionApprove.IsValid())
	assert.True(t, DecisionDeny.IsValid())
	assert.False(t, Decision("maybe").IsValid())
	assert.False(t, Decision("").IsValid())
}
