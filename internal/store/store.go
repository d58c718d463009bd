package store

import (
	"context"
	"errors"
	"time"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePending is returned by EnqueueConfirmation when an unresolved
// entry already exists for the same (user, type, natural key). Callers merge
// into the existing entry instead of creating a second one.
var ErrDuplicatePending = errors.New("duplicate pending confirmation")

// ErrAlreadyResolved is returned by ResolveConfirmation when the entry has
// already left the pending state. Benign under concurrent resolution.
var ErrAlreadyResolved = errors.New("confirmation already resolved")

// Store is the durable store of record. It is the single arbiter of
// conflicting concurrent writes: canonical upserts resolve by natural key,
// and confirmation resolution is a conditional update out of pending.
type Store interface {
	// Migrate creates the schema if it doesn't exist.
	Migrate(ctx context.Context) error

	// UpsertRecord inserts or updates a canonical record keyed on
	// (UserID, Type, NaturalKey). When a row exists, the incoming record
	// wins only if its ExtractedAt is at least as recent. Returns the row
	// as persisted.
	UpsertRecord(ctx context.Context, rec models.CanonicalRecord) (*models.CanonicalRecord, error)

	// GetRecord retrieves one canonical record.
	GetRecord(ctx context.Context, userID string, ft models.FactType, naturalKey string) (*models.CanonicalRecord, error)

	// ListRecords returns all canonical records for a user.
	ListRecords(ctx context.Context, userID string) ([]models.CanonicalRecord, error)

	// EnqueueConfirmation persists a new pending confirmation. Fails with
	// ErrDuplicatePending when an unresolved entry already exists for the
	// same (user, type, natural key).
	EnqueueConfirmation(ctx context.Context, pc models.PendingConfirmation) error

	// UpdateConfirmationFact refreshes the embedded fact, reason and expiry
	// of a still-pending entry. Used for DuplicatePending merges.
	UpdateConfirmationFact(ctx context.Context, id string, fact models.Fact, reason string, expiresAt time.Time) error

	// GetConfirmation retrieves a confirmation by ID.
	GetConfirmation(ctx context.Context, id string) (*models.PendingConfirmation, error)

	// ListPendingConfirmations returns unexpired pending entries for a user,
	// oldest first.
	ListPendingConfirmations(ctx context.Context, userID string, now time.Time) ([]models.PendingConfirmation, error)

	// ResolveConfirmation conditionally transitions an entry from pending to
	// the given terminal status. Fails with ErrAlreadyResolved when the entry
	// is no longer pending, ErrNotFound when it does not exist.
	ResolveConfirmation(ctx context.Context, id string, status models.ConfirmationStatus, resolvedAt time.Time) (*models.PendingConfirmation, error)

	// MarkConfirmationConsumed records that an approved entry's fact has been
	// committed to the canonical store.
	MarkConfirmationConsumed(ctx context.Context, id string) error

	// ReopenConfirmation moves an approved, unconsumed entry back to pending.
	// Compensating step when the commit after approval fails: the user can
	// retry the confirmation without re-speaking.
	ReopenConfirmation(ctx context.Context, id string) error

	// SweepExpired transitions pending entries past their expiry to expired
	// and returns the entries that changed, so callers can invalidate any
	// fast-path state they produced. Never touches terminal entries.
	SweepExpired(ctx context.Context, now time.Time) ([]models.PendingConfirmation, error)

	// Stats returns pipeline statistics.
	Stats(ctx context.Context) (*models.PipelineStats, error)

	// Close cleans up resources.
	Close() error
}
