package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/store"
)

var testTime = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func newTestWriter(t *testing.T) (*Writer, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	w := NewWriter(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.SetNowFunc(func() time.Time { return testTime })
	return w, st
}

func newFact(value string, confidence float64, extractedAt time.Time) models.Fact {
	return models.Fact{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		Type:        models.FactTypeSkill,
		Payload:     models.FactPayload{Value: value},
		Confidence:  confidence,
		ExtractedAt: extractedAt,
	}
}

func TestCommit(t *testing.T) {
	w, _ := newTestWriter(t)

	fact := newFact("Supply Chain", 0.92, testTime)
	rec, err := w.Commit(context.Background(), fact)
	require.NoError(t, err)

	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, models.FactTypeSkill, rec.Type)
	assert.Equal(t, "supply-chain", rec.NaturalKey)
	assert.Equal(t, fact.ID, rec.SourceFact)
	assert.Equal(t, testTime, rec.UpdatedAt)
}

func TestCommitIsIdempotent(t *testing.T) {
	w, st := newTestWriter(t)
	ctx := context.Background()

	fact := newFact("Supply Chain", 0.92, testTime)
	first, err := w.Commit(ctx, fact)
	require.NoError(t, err)
	second, err := w.Commit(ctx, fact)
	require.NoError(t, err)
	assert.Equal(t, first.SourceFact, second.SourceFact)

	records, err := st.ListRecords(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCommitLastWriteWins(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	older := newFact("supply chain", 0.85, testTime)
	newer := newFact("supply chain", 0.95, testTime.Add(time.Hour))

	// Arrival order does not matter; extraction recency does.
	_, err := w.Commit(ctx, newer)
	require.NoError(t, err)
	rec, err := w.Commit(ctx, older)
	require.NoError(t, err)

	assert.Equal(t, newer.ID, rec.SourceFact)
	assert.InDelta(t, 0.95, rec.Confidence, 1e-9)
}

func TestCommitValidation(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fact models.Fact
	}{
		{
			name: "missing user",
			fact: models.Fact{Type: models.FactTypeSkill, Payload: models.FactPayload{Value: "golang"}},
		},
		{
			name: "unknown type",
			fact: models.Fact{UserID: "user-1", Type: "hobby", Payload: models.FactPayload{Value: "golang"}},
		},
		{
			name: "empty natural key",
			fact: models.Fact{UserID: "user-1", Type: models.FactTypeSkill, Payload: models.FactPayload{Value: "   "}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Commit(ctx, tt.fact)
			assert.Error(t, err)
			// Validation failures are not persistence failures; no retry.
			assert.NotErrorIs(t, err, ErrPersistence)
		})
	}
}

func TestCommitWrapsStoreFailure(t *testing.T) {
	w, st := newTestWriter(t)
	st.FailUpserts = errors.New("disk full")

	_, err := w.Commit(context.Background(), newFact("golang", 0.9, testTime))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
}
