package graph

import (
	"context"
	"log/slog"

	"github.com/fractionalquest/voicegraph/internal/metrics"
	"github.com/fractionalquest/voicegraph/internal/models"
)

// BestEffort wraps a Writer so that failures are logged and swallowed. The
// fast path is a display cache, not a correctness boundary, so no error ever
// reaches the caller.
type BestEffort struct {
	inner  Writer
	logger *slog.Logger
}

// NewBestEffort wraps inner. A nil inner behaves like NoopWriter.
func NewBestEffort(inner Writer, logger *slog.Logger) *BestEffort {
	if inner == nil {
		inner = NoopWriter{}
	}
	return &BestEffort{inner: inner, logger: logger}
}

func (b *BestEffort) UpsertNode(ctx context.Context, node models.GraphNode) error {
	if err := b.inner.UpsertNode(ctx, node); err != nil {
		metrics.Inc(metrics.FastPathFailures)
		b.logger.Warn("fast-path node write failed, continuing", "key", node.Key, "error", err)
	}
	return nil
}

func (b *BestEffort) UpsertEdge(ctx context.Context, edge models.GraphEdge) error {
	if err := b.inner.UpsertEdge(ctx, edge); err != nil {
		metrics.Inc(metrics.FastPathFailures)
		b.logger.Warn("fast-path edge write failed, continuing", "from", edge.FromKey, "to", edge.ToKey, "error", err)
	}
	return nil
}

func (b *BestEffort) DeleteNode(ctx context.Context, key string) error {
	if err := b.inner.DeleteNode(ctx, key); err != nil {
		metrics.Inc(metrics.FastPathFailures)
		b.logger.Warn("fast-path node delete failed, continuing", "key", key, "error", err)
	}
	return nil
}

func (b *BestEffort) Close(ctx context.Context) error {
	return b.inner.Close(ctx)
}
