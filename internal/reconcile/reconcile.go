// Package reconcile writes approved and auto-committed facts into the store
// of record. This is the durability boundary: failures here are surfaced,
// never swallowed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/store"
)

// ErrPersistence wraps durable-store failures. The caller retries with
// backoff or surfaces the fact as "not saved".
var ErrPersistence = errors.New("persistence failed")

// Writer commits facts as canonical records.
type Writer struct {
	store  store.Store
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewWriter creates a reconciliation writer.
func NewWriter(st store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (w *Writer) SetNowFunc(now func() time.Time) { w.now = now }

// Commit upserts the fact into the store of record, keyed on
// (UserID, Type, NaturalKey). Insert if absent; on conflict the more
// recently extracted fact wins. Calling twice with the same fact yields the
// same single record.
func (w *Writer) Commit(ctx context.Context, fact models.Fact) (*models.CanonicalRecord, error) {
	if fact.UserID == "" {
		return nil, fmt.Errorf("commit: fact %s has no user", fact.ID)
	}
	if !fact.Type.IsValid() {
		return nil, fmt.Errorf("commit: fact %s has unknown type %q", fact.ID, fact.Type)
	}
	naturalKey := fact.NaturalKey()
	if naturalKey == "" {
		return nil, fmt.Errorf("commit: fact %s has an empty natural key", fact.ID)
	}

	rec := models.CanonicalRecord{
		UserID:      fact.UserID,
		Type:        fact.Type,
		NaturalKey:  naturalKey,
		Payload:     fact.Payload,
		Confidence:  fact.Confidence,
		SourceFact:  fact.ID,
		ExtractedAt: fact.ExtractedAt.UTC(),
		UpdatedAt:   w.now(),
	}

	persisted, err := w.store.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: upserting %s/%s/%s: %v", ErrPersistence, rec.UserID, rec.Type, rec.NaturalKey, err)
	}

	w.logger.Info("fact committed", "user_id", fact.UserID, "type", fact.Type,
		"natural_key", naturalKey, "source_fact", fact.ID)
	return persisted, nil
}
