package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// schema creates both tables. The partial unique index enforces at most one
// unresolved confirmation per (user, type, natural key); terminal entries are
// kept for audit and excluded from the constraint.
const schema = `
CREATE TABLE IF NOT EXISTS pending_confirmations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	fact_json    TEXT NOT NULL,
	fact_type    TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	confidence   REAL NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	consumed     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	expires_at   TIMESTAMP NOT NULL,
	resolved_at  TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_unresolved
	ON pending_confirmations(user_id, fact_type, natural_key)
	WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_pending_user
	ON pending_confirmations(user_id, status, created_at);

CREATE TABLE IF NOT EXISTS canonical_records (
	user_id      TEXT NOT NULL,
	record_type  TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	confidence   REAL NOT NULL,
	source_fact  TEXT NOT NULL,
	extracted_at TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, record_type, natural_key)
);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Pass ":memory:"
// for an ephemeral store in tests.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store at %s: %w", path, err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	logger.Info("opened sqlite store", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec models.CanonicalRecord) (*models.CanonicalRecord, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling payload: %w", err)
	}

	// Last-write-wins by extraction recency; equal timestamps favor the
	// incoming row. A stale upsert leaves the row untouched but is not an
	// error, so retries stay idempotent.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO canonical_records
			(user_id, record_type, natural_key, payload_json, confidence, source_fact, extracted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, record_type, natural_key) DO UPDATE SET
			payload_json = excluded.payload_json,
			confidence   = excluded.confidence,
			source_fact  = excluded.source_fact,
			extracted_at = excluded.extracted_at,
			updated_at   = excluded.updated_at
		WHERE excluded.extracted_at >= canonical_records.extracted_at`,
		rec.UserID, rec.Type, rec.NaturalKey, string(payload), rec.Confidence,
		rec.SourceFact, rec.ExtractedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting canonical record %s/%s/%s: %w", rec.UserID, rec.Type, rec.NaturalKey, err)
	}

	return s.GetRecord(ctx, rec.UserID, rec.Type, rec.NaturalKey)
}

func (s *SQLiteStore) GetRecord(ctx context.Context, userID string, ft models.FactType, naturalKey string) (*models.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, record_type, natural_key, payload_json, confidence, source_fact, extracted_at, updated_at
		FROM canonical_records
		WHERE user_id = ? AND record_type = ? AND natural_key = ?`,
		userID, ft, naturalKey,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting canonical record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, userID string) ([]models.CanonicalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, record_type, natural_key, payload_json, confidence, source_fact, extracted_at, updated_at
		FROM canonical_records
		WHERE user_id = ?
		ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing canonical records: %w", err)
	}
	defer rows.Close()

	var out []models.CanonicalRecord
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning canonical record: %w", scanErr)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) EnqueueConfirmation(ctx context.Context, pc models.PendingConfirmation) error {
	factJSON, err := json.Marshal(pc.Fact)
	if err != nil {
		return fmt.Errorf("marshalling fact: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_confirmations
			(id, user_id, fact_json, fact_type, natural_key, confidence, reason, status, consumed, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		pc.ID, pc.UserID, string(factJSON), pc.Fact.Type, pc.Fact.NaturalKey(),
		pc.Fact.Confidence, pc.Reason, pc.Status, pc.CreatedAt.UTC(), pc.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePending
		}
		return fmt.Errorf("enqueueing confirmation %s: %w", pc.ID, err)
	}

	s.logger.Debug("enqueued confirmation", "id", pc.ID, "user_id", pc.UserID, "natural_key", pc.Fact.NaturalKey())
	return nil
}

func (s *SQLiteStore) UpdateConfirmationFact(ctx context.Context, id string, fact models.Fact, reason string, expiresAt time.Time) error {
	factJSON, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshalling fact: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET fact_json = ?, confidence = ?, reason = ?, expires_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(factJSON), fact.Confidence, reason, expiresAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating confirmation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating confirmation %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetConfirmation(ctx context.Context, id string) (*models.PendingConfirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, fact_json, reason, status, consumed, created_at, expires_at, resolved_at
		FROM pending_confirmations
		WHERE id = ?`,
		id,
	)
	pc, err := scanConfirmation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting confirmation %s: %w", id, err)
	}
	return pc, nil
}

func (s *SQLiteStore) ListPendingConfirmations(ctx context.Context, userID string, now time.Time) ([]models.PendingConfirmation, error) {
	// FIFO: the user confirms in the order facts were spoken.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, fact_json, reason, status, consumed, created_at, expires_at, resolved_at
		FROM pending_confirmations
		WHERE user_id = ? AND status = 'pending' AND expires_at > ?
		ORDER BY created_at ASC`,
		userID, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending confirmations: %w", err)
	}
	defer rows.Close()

	var out []models.PendingConfirmation
	for rows.Next() {
		pc, scanErr := scanConfirmation(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning confirmation: %w", scanErr)
		}
		out = append(out, *pc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResolveConfirmation(ctx context.Context, id string, status models.ConfirmationStatus, resolvedAt time.Time) (*models.PendingConfirmation, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("resolve requires a terminal status, got %q", status)
	}

	// Conditional update out of pending is the race guard: of two concurrent
	// resolvers exactly one affects a row.
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET status = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		status, resolvedAt.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving confirmation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolving confirmation %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := s.GetConfirmation(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyResolved
	}

	s.logger.Debug("resolved confirmation", "id", id, "status", status)
	return s.GetConfirmation(ctx, id)
}

func (s *SQLiteStore) MarkConfirmationConsumed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_confirmations SET consumed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking confirmation %s consumed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking confirmation %s consumed: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ReopenConfirmation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET status = 'pending', resolved_at = NULL
		WHERE id = ? AND status = 'approved' AND consumed = 0`, id)
	if err != nil {
		return fmt.Errorf("reopening confirmation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reopening confirmation %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Warn("confirmation reopened after failed commit", "id", id)
	return nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) ([]models.PendingConfirmation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sweeping expired confirmations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, fact_json, reason, status, consumed, created_at, expires_at, resolved_at
		FROM pending_confirmations
		WHERE status = 'pending' AND expires_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("selecting expired confirmations: %w", err)
	}

	var swept []models.PendingConfirmation
	for rows.Next() {
		pc, scanErr := scanConfirmation(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning expired confirmation: %w", scanErr)
		}
		swept = append(swept, *pc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(swept) == 0 {
		return nil, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET status = 'expired', resolved_at = ?
		WHERE status = 'pending' AND expires_at <= ?`,
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("expiring confirmations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sweeping expired confirmations: %w", err)
	}

	resolvedAt := now.UTC()
	for i := range swept {
		swept[i].Status = models.StatusExpired
		swept[i].ResolvedAt = &resolvedAt
	}
	return swept, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.PipelineStats, error) {
	stats := &models.PipelineStats{
		RecordsByType:         map[string]int64{},
		ConfirmationsByStatus: map[string]int64{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_type, COUNT(*) FROM canonical_records GROUP BY record_type`)
	if err != nil {
		return nil, fmt.Errorf("counting canonical records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt string
		var n int64
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, fmt.Errorf("scanning record stats: %w", err)
		}
		stats.RecordsByType[rt] = n
		stats.TotalRecords += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM pending_confirmations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting confirmations: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var st string
		var n int64
		if err := crows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scanning confirmation stats: %w", err)
		}
		stats.ConfirmationsByStatus[st] = n
	}
	return stats, crows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- row scanning ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*models.CanonicalRecord, error) {
	var rec models.CanonicalRecord
	var payload string
	if err := row.Scan(&rec.UserID, &rec.Type, &rec.NaturalKey, &payload,
		&rec.Confidence, &rec.SourceFact, &rec.ExtractedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("unmarshalling payload: %w", err)
	}
	return &rec, nil
}

func scanConfirmation(row scannable) (*models.PendingConfirmation, error) {
	var pc models.PendingConfirmation
	var factJSON string
	var resolvedAt sql.NullTime
	if err := row.Scan(&pc.ID, &pc.UserID, &factJSON, &pc.Reason, &pc.Status,
		&pc.Consumed, &pc.CreatedAt, &pc.ExpiresAt, &resolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(factJSON), &pc.Fact); err != nil {
		return nil, fmt.Errorf("unmarshalling fact: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		pc.ResolvedAt = &t
	}
	return &pc, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
