// Package store defines the narrow local record store contract the core
// reads and writes through, plus thin in-memory and JSON-file-backed
// implementations. The storage engine itself is outside the core: anything
// that can honor this interface can sit behind it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// ErrNotFound is returned when an id does not resolve to a stored record.
var ErrNotFound = errors.New("record not found")

// ChangeKind classifies a change notification.
type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeEvent is delivered to subscribers after a mutation commits.
// Record is nil for deletions.
type ChangeEvent struct {
	Kind   ChangeKind
	ID     string
	Record *domain.TransactionRecord
}

// RecordStore is the local persistence contract. Implementations are not
// assumed safe for unsynchronized concurrent mutation, so every mutating
// operation must serialize through a single mutex or queue per instance.
type RecordStore interface {
	// Insert persists a new record, assigns its id and returns it.
	Insert(ctx context.Context, rec *domain.TransactionRecord) (string, error)

	// Upsert writes a record under its existing id, creating or replacing.
	// Used by the reconciler to materialize remote-origin records; ordinary
	// ingestion goes through Insert.
	Upsert(ctx context.Context, rec *domain.TransactionRecord) error

	// Update applies an explicit field edit to an existing record.
	Update(ctx context.Context, id string, patch domain.RecordPatch) error

	// Delete removes a record and leaves a tombstone so the next sync can
	// propagate the deletion instead of re-materializing the record.
	Delete(ctx context.Context, id string) error

	// Reset removes every record (bulk user reset), tombstoning each.
	Reset(ctx context.Context) error

	// Get returns a copy of the record with the given id.
	Get(ctx context.Context, id string) (*domain.TransactionRecord, error)

	// QueryAll returns copies of all records ordered by OccurredAt
	// descending.
	QueryAll(ctx context.Context) ([]*domain.TransactionRecord, error)

	// HasDuplicate reports whether any stored record carries the given
	// external reference, or, when the reference is empty, exactly the
	// given raw text.
	HasDuplicate(ctx context.Context, externalRef, rawText string) (bool, error)

	// MarkSynced stamps the record's last confirmed remote write time.
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// Tombstones lists ids deleted locally but not yet propagated.
	Tombstones(ctx context.Context) ([]string, error)

	// ClearTombstone drops a tombstone once its deletion has been
	// propagated remotely.
	ClearTombstone(ctx context.Context, id string) error

	// OnChange registers a change callback and returns its unsubscribe
	// handle. Callbacks run after the mutation commits, outside the store
	// lock.
	OnChange(fn func(ChangeEvent)) (unsubscribe func())
}
