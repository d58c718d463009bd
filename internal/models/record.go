package models

import "time"

// CanonicalRecord is the durable, de-duplicated representation of a Fact in
// the store of record. At most one record exists per
// (UserID, Type, NaturalKey); upserts overwrite rather than duplicate.
type CanonicalRecord struct {
	UserID      string      `json:"user_id"`
	Type        FactType    `json:"record_type"`
	NaturalKey  string      `json:"natural_key"`
	Payload     FactPayload `json:"payload"`
	Confidence  float64     `json:"confidence"`
	SourceFact  string      `json:"source_fact"`
	ExtractedAt time.Time   `json:"extracted_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PipelineStats holds summary statistics about the sync pipeline state.
type PipelineStats struct {
	TotalRecords          int64            `json:"total_records"`
	RecordsByType         map[string]int64 `json:"records_by_type"`
	ConfirmationsByStatus map[string]int64 `json:"confirmations_by_status"`
}
