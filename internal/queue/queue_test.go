package queue

import (
	"context"
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

func newTestQueue(t *testing.T) (*Queue, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	q := New(st, 72*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.SetNowFunc(func() time.Time { return testTime })
	return q, st
}

func newFact(value string, confidence float64) models.Fact {
	return models.Fact{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		Type:        models.FactTypeGeneralPreference,
		Payload:     models.FactPayload{Value: value},
		Confidence:  confidence,
		ExtractedAt: testTime,
	}
}

func TestEnqueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	pc, err := q.Enqueue(ctx, newFact("remote only", 0.65), "please verify")
	require.NoError(t, err)
	require.NotNil(t, pc)

	assert.NotEmpty(t, pc.ID)
	assert.Equal(t, models.StatusPending, pc.Status)
	assert.Equal(t, "please verify", pc.Reason)
	assert.Equal(t, testTime.Add(72*time.Hour), pc.ExpiresAt)
}

func TestEnqueueDuplicateMergesHigherConfidence(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := newFact("remote only", 0.60)
	pc, err := q.Enqueue(ctx, first, "first reason")
	require.NoError(t, err)

	// Advance the clock so the merged expiry is observable.
	q.SetNowFunc(func() time.Time { return testTime.Add(time.Hour) })

	better := newFact("Remote Only", 0.75)
	merged, err := q.Enqueue(ctx, better, "second reason")
	assert.ErrorIs(t, err, store.ErrDuplicatePending)
	require.NotNil(t, merged)

	// Same queue entry, higher-confidence fact adopted, expiry refreshed.
	assert.Equal(t, pc.ID, merged.ID)
	assert.Equal(t, better.ID, merged.Fact.ID)
	assert.Equal(t, first.ID, merged.Fact.SupersedesID)
	assert.Equal(t, "second reason", merged.Reason)
	assert.Equal(t, testTime.Add(time.Hour+72*time.Hour), merged.ExpiresAt)
}

func TestEnqueueDuplicateKeepsHigherExistingConfidence(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := newFact("remote only", 0.75)
	pc, err := q.Enqueue(ctx, first, "first reason")
	require.NoError(t, err)

	worse := newFact("remote only", 0.55)
	merged, err := q.Enqueue(ctx, worse, "second reason")
	assert.ErrorIs(t, err, store.ErrDuplicatePending)
	require.NotNil(t, merged)

	assert.Equal(t, pc.ID, merged.ID)
	assert.Equal(t, first.ID, merged.Fact.ID)
	assert.Equal(t, "first reason", merged.Reason)
	assert.Empty(t, merged.Fact.SupersedesID)
}

func TestEnqueueMergesExpiredUnsweptEntry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := newFact("remote only", 0.65)
	pc, err := q.Enqueue(ctx, first, "please verify")
	require.NoError(t, err)

	// Past the deadline but before any sweep runs the entry is still
	// pending, so a re-arriving fact must merge into it rather than fail.
	q.SetNowFunc(func() time.Time { return testTime.Add(73 * time.Hour) })

	again := newFact("remote only", 0.65)
	merged, err := q.Enqueue(ctx, again, "please verify")
	assert.ErrorIs(t, err, store.ErrDuplicatePending)
	require.NotNil(t, merged)

	// Same entry, revived with a fresh deadline.
	assert.Equal(t, pc.ID, merged.ID)
	assert.Equal(t, testTime.Add(73*time.Hour+72*time.Hour), merged.ExpiresAt)

	pending, err := q.ListPending(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pc.ID, pending[0].ID)
}

func TestEnqueueMergeKeepsFIFOPosition(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	older, err := q.Enqueue(ctx, newFact("remote only", 0.60), "r")
	require.NoError(t, err)

	q.SetNowFunc(func() time.Time { return testTime.Add(time.Minute) })
	_, err = q.Enqueue(ctx, newFact("four day week", 0.60), "r")
	require.NoError(t, err)

	q.SetNowFunc(func() time.Time { return testTime.Add(2 * time.Minute) })
	_, err = q.Enqueue(ctx, newFact("remote only", 0.90), "r")
	assert.ErrorIs(t, err, store.ErrDuplicatePending)

	pending, err := q.ListPending(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
}

func TestResolve(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	pc, err := q.Enqueue(ctx, newFact("remote only", 0.65), "r")
	require.NoError(t, err)

	resolved, err := q.Resolve(ctx, pc.ID, models.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Second resolution loses the race.
	_, err = q.Resolve(ctx, pc.ID, models.DecisionDeny)
	assert.ErrorIs(t, err, store.ErrAlreadyResolved)
}

func TestResolveDeny(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	pc, err := q.Enqueue(ctx, newFact("remote only", 0.65), "r")
	require.NoError(t, err)

	resolved, err := q.Resolve(ctx, pc.ID, models.DecisionDeny)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, resolved.Status)
}

func TestResolveInvalidDecision(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Resolve(context.Background(), "any", models.Decision("maybe"))
	assert.Error(t, err)
}

func TestResolveMissing(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Resolve(context.Background(), "missing", models.DecisionApprove)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	overdue, err := q.Enqueue(ctx, newFact("remote only", 0.65), "r")
	require.NoError(t, err)

	// The second entry is enqueued later, so its deadline is further out.
	q.SetNowFunc(func() time.Time { return testTime.Add(time.Hour) })
	live, err := q.Enqueue(ctx, newFact("four day week", 0.65), "r")
	require.NoError(t, err)

	q.SetNowFunc(func() time.Time { return overdue.ExpiresAt })

	swept, err := q.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, overdue.ID, swept[0].ID)
	assert.Equal(t, models.StatusExpired, swept[0].Status)

	got, err := st.GetConfirmation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestMarkConsumed(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	pc, err := q.Enqueue(ctx, newFact("remote only", 0.65), "r")
	require.NoError(t, err)
	_, err = q.Resolve(ctx, pc.ID, models.DecisionApprove)
	require.NoError(t, err)

	require.NoError(t, q.MarkConsumed(ctx, pc.ID))

	got, err := st.GetConfirmation(ctx, pc.ID)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}
