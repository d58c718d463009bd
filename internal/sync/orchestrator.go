// Package sync composes extraction, routing, the confirmation queue, the
// fast-path graph and the reconciliation writer into the end-to-end
// voice-to-graph pipeline.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fractionalquest/voicegraph/internal/extractor"
	"github.com/fractionalquest/voicegraph/internal/graph"
	"github.com/fractionalquest/voicegraph/internal/metrics"
	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/queue"
	"github.com/fractionalquest/voicegraph/internal/reconcile"
	"github.com/fractionalquest/voicegraph/internal/router"
	"github.com/fractionalquest/voicegraph/internal/store"
)

// Result is the outcome of processing one utterance.
type Result struct {
	Committed            []models.CanonicalRecord     `json:"committed"`
	PendingConfirmations []models.PendingConfirmation `json:"pending_confirmations"`
	Rejected             int                          `json:"rejected"`
	Errors               []string                     `json:"errors,omitempty"`
}

// RetryPolicy bounds the durable-commit retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// Orchestrator drives the per-fact state machine:
//
//	Extracted -> AutoCommit         -> Committing -> Committed
//	Extracted -> NeedsConfirmation  -> Pending -(approve)-> Committing -> Committed
//	                                           -(deny)----> Discarded
//	                                           -(expire)--> Discarded
//	Extracted -> Reject             -> Discarded
//
// Fast-path writes run concurrently with the durable path and are never
// rolled back automatically; denial and expiry trigger an explicit
// corrective delete.
type Orchestrator struct {
	extractor extractor.Extractor
	router    *router.Router
	fastPath  graph.Writer
	queue     *queue.Queue
	writer    *reconcile.Writer
	store     store.Store
	retry     RetryPolicy
	logger    *slog.Logger
}

// New creates an Orchestrator. fastPath should already be wrapped for
// best-effort semantics; see graph.NewBestEffort.
func New(
	ext extractor.Extractor,
	rt *router.Router,
	fastPath graph.Writer,
	q *queue.Queue,
	w *reconcile.Writer,
	st store.Store,
	retry RetryPolicy,
	logger *slog.Logger,
) *Orchestrator {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Orchestrator{
		extractor: ext,
		router:    rt,
		fastPath:  fastPath,
		queue:     q,
		writer:    w,
		store:     st,
		retry:     retry,
		logger:    logger,
	}
}

// ProcessUtterance extracts facts from the utterance and routes each one.
// Extraction failures propagate; per-fact durable failures are collected in
// Result.Errors so one bad fact doesn't lose the rest.
func (o *Orchestrator) ProcessUtterance(ctx context.Context, userID, userKind, utterance string) (*Result, error) {
	metrics.Inc(metrics.UtterancesTotal)

	facts, err := o.extractor.Extract(ctx, utterance, extractor.UserContext{UserID: userID, UserKind: userKind})
	if err != nil {
		return nil, err
	}
	for range facts {
		metrics.Inc(metrics.FactsExtracted)
	}

	result := &Result{}

	// Fast-path writes fan out here so they never block the durable path.
	// The best-effort wrapper swallows individual failures.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))

	for i := range facts {
		fact := facts[i]
		disposition := o.router.Route(fact)

		switch disposition {
		case models.DispositionReject:
			metrics.Inc(metrics.FactsRejected)
			o.logger.Debug("fact rejected", "value", fact.Payload.Value, "confidence", fact.Confidence)
			result.Rejected++

		case models.DispositionAutoCommit:
			g.Go(func() error {
				return o.fastPath.UpsertNode(gctx, models.GraphNodeForFact(fact, false))
			})
			rec, commitErr := o.commitWithRetry(ctx, fact)
			if commitErr != nil {
				o.logger.Error("auto-commit failed", "fact_id", fact.ID, "error", commitErr)
				result.Errors = append(result.Errors, fmt.Sprintf("could not save %q", fact.Payload.Value))
				continue
			}
			metrics.Inc(metrics.FactsAutoCommitted)
			result.Committed = append(result.Committed, *rec)
			// Correct the cache now that the record is durable.
			g.Go(func() error {
				return o.fastPath.UpsertNode(gctx, models.GraphNodeForFact(fact, true))
			})

		case models.DispositionNeedsConfirmation:
			g.Go(func() error {
				return o.fastPath.UpsertNode(gctx, models.GraphNodeForFact(fact, false))
			})
			pc, enqErr := o.queue.Enqueue(ctx, fact, o.router.Reason(fact))
			// A duplicate-pending sentinel with a merged entry is a success;
			// anything without an entry is a failure regardless of sentinel.
			if pc == nil || (enqErr != nil && !errors.Is(enqErr, store.ErrDuplicatePending)) {
				o.logger.Error("enqueue failed", "fact_id", fact.ID, "error", enqErr)
				result.Errors = append(result.Errors, fmt.Sprintf("could not queue %q for confirmation", fact.Payload.Value))
				continue
			}
			result.PendingConfirmations = append(result.PendingConfirmations, *pc)
		}
	}

	_ = g.Wait()
	return result, nil
}

// ResolveConfirmation applies the user's decision to a pending confirmation.
// Approval commits the fact durably and returns the canonical record; denial
// returns (nil, nil) and invalidates the fact's fast-path node.
//
// The approve transition is claimed first (conditional update from pending,
// so concurrent resolvers race safely), then the commit runs. If the commit
// exhausts its retries the entry is moved back to pending so the user can
// retry without re-speaking.
func (o *Orchestrator) ResolveConfirmation(ctx context.Context, confirmationID string, decision models.Decision) (*models.CanonicalRecord, error) {
	pc, err := o.queue.Resolve(ctx, confirmationID, decision)
	if err != nil {
		return nil, err
	}

	if decision == models.DecisionDeny {
		o.invalidateFastPath(ctx, pc.Fact)
		return nil, nil
	}

	rec, commitErr := o.commitWithRetry(ctx, pc.Fact)
	if commitErr != nil {
		if reopenErr := o.store.ReopenConfirmation(ctx, confirmationID); reopenErr != nil {
			o.logger.Error("reopening confirmation after failed commit", "id", confirmationID, "error", reopenErr)
		}
		return nil, commitErr
	}

	if consumeErr := o.queue.MarkConsumed(ctx, confirmationID); consumeErr != nil {
		// The record is durable; a stale consumed flag only means the
		// recovery pass may re-commit, which is idempotent.
		o.logger.Warn("marking confirmation consumed", "id", confirmationID, "error", consumeErr)
	}

	_ = o.fastPath.UpsertNode(context.WithoutCancel(ctx), models.GraphNodeForFact(pc.Fact, true))
	return rec, nil
}

// ListPending returns the user's pending confirmations, oldest first.
func (o *Orchestrator) ListPending(ctx context.Context, userID string) ([]models.PendingConfirmation, error) {
	return o.queue.ListPending(ctx, userID)
}

// SweepExpired expires overdue confirmations and issues corrective fast-path
// deletes for the nodes they produced. Returns the number expired.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int, error) {
	swept, err := o.queue.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	for i := range swept {
		o.invalidateFastPath(ctx, swept[i].Fact)
	}
	return len(swept), nil
}

// RunSweeper runs SweepExpired on the given interval until ctx is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.SweepExpired(ctx); err != nil {
				o.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// RebuildGraph re-mirrors every canonical record for the user into the fast
// path. The cache is never authoritative, so a wholesale rebuild is always
// safe.
func (o *Orchestrator) RebuildGraph(ctx context.Context, userID string) (int, error) {
	records, err := o.store.ListRecords(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing canonical records: %w", err)
	}

	for i := range records {
		_ = o.fastPath.UpsertNode(ctx, models.GraphNodeForRecord(records[i]))
	}

	o.logger.Info("fast-path graph rebuilt", "user_id", userID, "nodes", len(records))
	return len(records), nil
}

// commitWithRetry calls the reconciliation writer with bounded exponential
// backoff. Transient store errors are retried; the final error propagates.
func (o *Orchestrator) commitWithRetry(ctx context.Context, fact models.Fact) (*models.CanonicalRecord, error) {
	backoff := o.retry.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		rec, err := o.writer.Commit(ctx, fact)
		if err == nil {
			return rec, nil
		}
		lastErr = err

		if attempt == o.retry.MaxAttempts {
			break
		}
		metrics.Inc(metrics.CommitRetries)
		o.logger.Warn("commit failed, retrying", "fact_id", fact.ID,
			"attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

// invalidateFastPath deletes the fast-path node for a discarded fact. When a
// canonical record already exists for the same natural key (an earlier
// auto-commit or approval), the durable state must stay mirrored, so the node
// is restored from the record after the delete.
func (o *Orchestrator) invalidateFastPath(ctx context.Context, fact models.Fact) {
	ctx = context.WithoutCancel(ctx)
	key := models.NodeKey(fact.UserID, fact.Type, fact.NaturalKey())
	_ = o.fastPath.DeleteNode(ctx, key)

	rec, err := o.store.GetRecord(ctx, fact.UserID, fact.Type, fact.NaturalKey())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("checking canonical record after fast-path delete", "key", key, "error", err)
		}
		return
	}
	_ = o.fastPath.UpsertNode(ctx, models.GraphNodeForRecord(*rec))
}
