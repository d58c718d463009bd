// Package graph is the fast-path mirror of canonical state: a low-latency,
// non-authoritative graph used purely for immediate display. It may be
// rebuilt wholesale from the store of record at any time.
package graph

import (
	"context"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// Writer is the fast-path graph capability. Implementations make no
// transactional guarantees; callers treat every write as best-effort.
type Writer interface {
	// UpsertNode writes or refreshes a node keyed by node.Key. Re-sending
	// the same fact maps to the same key, so duplicates collapse.
	UpsertNode(ctx context.Context, node models.GraphNode) error

	// UpsertEdge writes or refreshes an edge between two node keys.
	UpsertEdge(ctx context.Context, edge models.GraphEdge) error

	// DeleteNode removes a node and its edges. Used for corrective
	// invalidation when a shown fact is denied or expires.
	DeleteNode(ctx context.Context, key string) error

	// Close cleans up resources.
	Close(ctx context.Context) error
}

// NoopWriter discards all writes. Used when the fast path is disabled and
// as the failure-swallowing stand-in for tests.
type NoopWriter struct{}

func (NoopWriter) UpsertNode(context.Context, models.GraphNode) error { return nil }
func (NoopWriter) UpsertEdge(context.Context, models.GraphEdge) error { return nil }
func (NoopWriter) DeleteNode(context.Context, string) error           { return nil }
func (NoopWriter) Close(context.Context) error                        { return nil }
