package models

import (
	"strings"
	"time"
)

// FactType classifies the kind of extracted fact.
type FactType string

const (
	FactTypeSkill             FactType = "skill"
	FactTypeCompany           FactType = "company"
	FactTypeRolePreference    FactType = "role_preference"
	FactTypeGeneralPreference FactType = "general_preference"
)

// ValidFactTypes is the set of all valid fact types.
var ValidFactTypes = []FactType{
	FactTypeSkill,
	FactTypeCompany,
	FactTypeRolePreference,
	FactTypeGeneralPreference,
}

// IsValid returns true if the fact type is recognized.
func (ft FactType) IsValid() bool {
	for i := range ValidFactTypes {
		if ft == ValidFactTypes[i] {
			return true
		}
	}
	return false
}

// FactPayload is the type-specific structured data carried by a Fact.
// Value is the primary extracted value and the source of the natural key;
// Attrs holds optional type-specific attributes (years, seniority, remote, ...).
type FactPayload struct {
	Value string         `json:"value"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Fact is a single extracted unit of user information. A Fact is immutable
// once created; corrections produce a new Fact with SupersedesID set.
type Fact struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Type            FactType    `json:"type"`
	Payload         FactPayload `json:"payload"`
	Confidence      float64     `json:"confidence"`
	SourceUtterance string      `json:"source_utterance,omitempty"`
	ExtractedAt     time.Time   `json:"extracted_at"`
	SupersedesID    string      `json:"supersedes_id,omitempty"`
}

// NaturalKey returns the business key used for de-duplication within
// (UserID, Type): the payload value lowercased with whitespace collapsed
// to single hyphens.
func (f Fact) NaturalKey() string {
	return NormalizeKey(f.Payload.Value)
}

// NormalizeKey lowercases s and collapses runs of whitespace into hyphens.
func NormalizeKey(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(fields, "-")
}

// Disposition is the routing decision for a Fact.
type Disposition string

const (
	DispositionAutoCommit        Disposition = "auto_commit"
	DispositionNeedsConfirmation Disposition = "needs_confirmation"
	DispositionReject            Disposition = "reject"
)

// ExtractedFact is the raw fact shape returned by the LLM extractor before
// IDs and timestamps are assigned.
type ExtractedFact struct {
	Type       FactType       `json:"type"`
	Value      string         `json:"value"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Confidence float64        `json:"confidence"`
	RawText    string         `json:"raw_text,omitempty"`
}
