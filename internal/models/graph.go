package models

// GraphNode is the fast-path mirror of a fact for immediate display. It is
// never authoritative and may be rebuilt wholesale from CanonicalRecords.
type GraphNode struct {
	Key        string         `json:"key"`
	UserID     string         `json:"user_id"`
	Type       FactType       `json:"type"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Validated  bool           `json:"validated"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// GraphEdge links two fast-path nodes.
type GraphEdge struct {
	FromKey string         `json:"from_key"`
	ToKey   string         `json:"to_key"`
	Label   string         `json:"label"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// NodeKey derives the stable fast-path node key for a fact. Re-sending the
// same fact maps to the same key, so fast-path writes are idempotent.
func NodeKey(userID string, ft FactType, naturalKey string) string {
	return userID + ":" + string(ft) + ":" + naturalKey
}

// GraphNodeForFact builds the fast-path node for a fact.
func GraphNodeForFact(f Fact, validated bool) GraphNode {
	return GraphNode{
		Key:        NodeKey(f.UserID, f.Type, f.NaturalKey()),
		UserID:     f.UserID,
		Type:       f.Type,
		Label:      f.Payload.Value,
		Confidence: f.Confidence,
		Validated:  validated,
		Attrs:      f.Payload.Attrs,
	}
}

// GraphNodeForRecord builds the fast-path node for a canonical record.
// Records are durable by definition, so the node is always validated.
func GraphNodeForRecord(rec CanonicalRecord) GraphNode {
	return GraphNode{
		Key:        NodeKey(rec.UserID, rec.Type, rec.NaturalKey),
		UserID:     rec.UserID,
		Type:       rec.Type,
		Label:      rec.Payload.Value,
		Confidence: rec.Confidence,
		Validated:  true,
		Attrs:      rec.Payload.Attrs,
	}
}
