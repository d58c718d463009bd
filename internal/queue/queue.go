// Package queue implements the durable confirmation queue. Every state
// transition is persisted synchronously before returning: the queue is the
// only record of "the user was asked but has not yet answered".
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fractionalquest/voicegraph/internal/metrics"
	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/store"
)

// Queue owns all writes to confirmation status. Other components only read
// approved entries and mark them consumed.
type Queue struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// New creates a Queue. ttl is how long an entry stays pending before the
// sweep expires it.
func New(st store.Store, ttl time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		store:  st,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (q *Queue) SetNowFunc(now func() time.Time) { q.now = now }

// Enqueue persists a new pending confirmation for the fact. When an
// unresolved entry already exists for the same (user, type, natural key) the
// entries are merged: the existing entry keeps its place in the FIFO order,
// adopts the new fact when its confidence is higher, and gets a fresh expiry.
// The merged entry is returned with store.ErrDuplicatePending so callers can
// tell the two outcomes apart.
func (q *Queue) Enqueue(ctx context.Context, fact models.Fact, reason string) (*models.PendingConfirmation, error) {
	now := q.now()
	pc := models.PendingConfirmation{
		ID:        uuid.NewString(),
		UserID:    fact.UserID,
		Fact:      fact,
		Reason:    reason,
		Status:    models.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}

	err := q.store.EnqueueConfirmation(ctx, pc)
	if err == nil {
		metrics.Inc(metrics.ConfirmationsQueued)
		q.logger.Info("confirmation queued", "id", pc.ID, "user_id", fact.UserID,
			"type", fact.Type, "natural_key", fact.NaturalKey(), "confidence", fact.Confidence)
		return &pc, nil
	}
	if !errors.Is(err, store.ErrDuplicatePending) {
		return nil, fmt.Errorf("enqueueing confirmation: %w", err)
	}

	merged, mergeErr := q.merge(ctx, fact, reason, now)
	if mergeErr != nil {
		return nil, mergeErr
	}
	metrics.Inc(metrics.ConfirmationsMerged)
	return merged, store.ErrDuplicatePending
}

// merge finds the pending entry for the fact's natural key and refreshes it.
func (q *Queue) merge(ctx context.Context, fact models.Fact, reason string, now time.Time) (*models.PendingConfirmation, error) {
	// List with a zero cutoff: an entry past its deadline but not yet swept
	// still holds the unique pending slot, so it must be merged into (and
	// revived by the refreshed expiry), not treated as absent.
	pending, err := q.store.ListPendingConfirmations(ctx, fact.UserID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("merging confirmation: %w", err)
	}

	for i := range pending {
		if pending[i].Fact.Type != fact.Type || pending[i].Fact.NaturalKey() != fact.NaturalKey() {
			continue
		}
		existing := pending[i]

		// Higher-confidence extraction replaces the embedded fact; the
		// lower one is still recorded as superseded for audit.
		mergedFact := existing.Fact
		mergedReason := existing.Reason
		if fact.Confidence > existing.Fact.Confidence {
			mergedFact = fact
			mergedFact.SupersedesID = existing.Fact.ID
			mergedReason = reason
		}

		expiresAt := now.Add(q.ttl)
		if err := q.store.UpdateConfirmationFact(ctx, existing.ID, mergedFact, mergedReason, expiresAt); err != nil {
			return nil, fmt.Errorf("merging confirmation %s: %w", existing.ID, err)
		}

		existing.Fact = mergedFact
		existing.Reason = mergedReason
		existing.ExpiresAt = expiresAt
		q.logger.Info("confirmation merged", "id", existing.ID, "user_id", fact.UserID,
			"natural_key", fact.NaturalKey(), "confidence", mergedFact.Confidence)
		return &existing, nil
	}

	// The duplicate resolved between the insert attempt and the list; retry
	// once as a plain enqueue.
	pc := models.PendingConfirmation{
		ID:        uuid.NewString(),
		UserID:    fact.UserID,
		Fact:      fact,
		Reason:    reason,
		Status:    models.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	if err := q.store.EnqueueConfirmation(ctx, pc); err != nil {
		if errors.Is(err, store.ErrDuplicatePending) {
			// Losing this second race is a real failure: callers must not see
			// the duplicate sentinel without a merged entry to go with it.
			return nil, fmt.Errorf("re-enqueueing confirmation for %s/%s: %v", fact.Type, fact.NaturalKey(), err)
		}
		return nil, fmt.Errorf("re-enqueueing confirmation: %w", err)
	}
	return &pc, nil
}

// ListPending returns unexpired pending entries for the user, oldest first.
func (q *Queue) ListPending(ctx context.Context, userID string) ([]models.PendingConfirmation, error) {
	return q.store.ListPendingConfirmations(ctx, userID, q.now())
}

// Resolve transitions a pending entry to approved or denied. Safe to call
// concurrently: exactly one caller wins, the rest get store.ErrAlreadyResolved.
func (q *Queue) Resolve(ctx context.Context, confirmationID string, decision models.Decision) (*models.PendingConfirmation, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("invalid decision %q", decision)
	}

	status := models.StatusApproved
	if decision == models.DecisionDeny {
		status = models.StatusDenied
	}

	pc, err := q.store.ResolveConfirmation(ctx, confirmationID, status, q.now())
	if err != nil {
		return nil, err
	}

	q.logger.Info("confirmation resolved", "id", confirmationID, "status", status)
	return pc, nil
}

// MarkConsumed records that an approved entry's fact has been committed.
func (q *Queue) MarkConsumed(ctx context.Context, confirmationID string) error {
	return q.store.MarkConfirmationConsumed(ctx, confirmationID)
}

// SweepExpired expires all pending entries past their deadline and returns
// the transitioned entries. Runs periodically, not per request, so entries
// don't expire under the user mid-interaction.
func (q *Queue) SweepExpired(ctx context.Context) ([]models.PendingConfirmation, error) {
	swept, err := q.store.SweepExpired(ctx, q.now())
	if err != nil {
		return nil, fmt.Errorf("sweeping expired confirmations: %w", err)
	}
	for range swept {
		metrics.Inc(metrics.ConfirmationsExpired)
	}
	if len(swept) > 0 {
		q.logger.Info("expired confirmations swept", "count", len(swept))
	}
	return swept, nil
}
