package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// MemStore is an in-memory Store used in tests. It honors the same
// conditional-update and unique-pending semantics as the SQLite store.
type MemStore struct {
	mu            sync.Mutex
	records       map[string]models.CanonicalRecord      // userID/type/naturalKey
	confirmations map[string]*models.PendingConfirmation // by ID

	// FailUpserts makes UpsertRecord return the given error; used to test
	// persistence-failure handling.
	FailUpserts error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records:       make(map[string]models.CanonicalRecord),
		confirmations: make(map[string]*models.PendingConfirmation),
	}
}

func recordKey(userID string, ft models.FactType, naturalKey string) string {
	return userID + "/" + string(ft) + "/" + naturalKey
}

func (m *MemStore) Migrate(context.Context) error { return nil }

func (m *MemStore) UpsertRecord(_ context.Context, rec models.CanonicalRecord) (*models.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpserts != nil {
		return nil, m.FailUpserts
	}

	key := recordKey(rec.UserID, rec.Type, rec.NaturalKey)
	if existing, ok := m.records[key]; ok && rec.ExtractedAt.Before(existing.ExtractedAt) {
		out := existing
		return &out, nil
	}
	m.records[key] = rec
	out := rec
	return &out, nil
}

func (m *MemStore) GetRecord(_ context.Context, userID string, ft models.FactType, naturalKey string) (*models.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(userID, ft, naturalKey)]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemStore) ListRecords(_ context.Context, userID string) ([]models.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CanonicalRecord
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemStore) EnqueueConfirmation(_ context.Context, pc models.PendingConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.confirmations {
		if existing.Status == models.StatusPending &&
			existing.UserID == pc.UserID &&
			existing.Fact.Type == pc.Fact.Type &&
			existing.Fact.NaturalKey() == pc.Fact.NaturalKey() {
			return ErrDuplicatePending
		}
	}

	cp := pc
	m.confirmations[pc.ID] = &cp
	return nil
}

func (m *MemStore) UpdateConfirmationFact(_ context.Context, id string, fact models.Fact, reason string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.confirmations[id]
	if !ok || pc.Status != models.StatusPending {
		return ErrNotFound
	}
	pc.Fact = fact
	pc.Reason = reason
	pc.ExpiresAt = expiresAt
	return nil
}

func (m *MemStore) GetConfirmation(_ context.Context, id string) (*models.PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.confirmations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *pc
	return &out, nil
}

func (m *MemStore) ListPendingConfirmations(_ context.Context, userID string, now time.Time) ([]models.PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PendingConfirmation
	for _, pc := range m.confirmations {
		if pc.UserID == userID && pc.Status == models.StatusPending && pc.ExpiresAt.After(now) {
			out = append(out, *pc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) ResolveConfirmation(_ context.Context, id string, status models.ConfirmationStatus, resolvedAt time.Time) (*models.PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.confirmations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if pc.Status != models.StatusPending {
		return nil, ErrAlreadyResolved
	}
	pc.Status = status
	t := resolvedAt
	pc.ResolvedAt = &t
	out := *pc
	return &out, nil
}

func (m *MemStore) MarkConfirmationConsumed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.confirmations[id]
	if !ok {
		return ErrNotFound
	}
	pc.Consumed = true
	return nil
}

func (m *MemStore) ReopenConfirmation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.confirmations[id]
	if !ok || pc.Status != models.StatusApproved || pc.Consumed {
		return ErrNotFound
	}
	pc.Status = models.StatusPending
	pc.ResolvedAt = nil
	return nil
}

func (m *MemStore) SweepExpired(_ context.Context, now time.Time) ([]models.PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var swept []models.PendingConfirmation
	for _, pc := range m.confirmations {
		if pc.Status == models.StatusPending && !pc.ExpiresAt.After(now) {
			pc.Status = models.StatusExpired
			t := now
			pc.ResolvedAt = &t
			swept = append(swept, *pc)
		}
	}
	return swept, nil
}

func (m *MemStore) Stats(context.Context) (*models.PipelineStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.PipelineStats{
		RecordsByType:         map[string]int64{},
		ConfirmationsByStatus: map[string]int64{},
	}
	for _, rec := range m.records {
		stats.RecordsByType[string(rec.Type)]++
		stats.TotalRecords++
	}
	for _, pc := range m.confirmations {
		stats.ConfirmationsByStatus[string(pc.Status)]++
	}
	return stats, nil
}

func (m *MemStore) Close() error { return nil }
