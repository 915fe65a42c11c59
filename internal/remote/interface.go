// Package remote defines the remote record provider contract the
// reconciler converges against, and its Notion, BigQuery and in-memory
// implementations. The transport is outside the core: the reconciler only
// sees get/list/put/delete plus an optional live event channel.
package remote

import (
	"context"
	"errors"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// ErrNotFound is returned by Get when the remote store holds no record
// with the given id.
var ErrNotFound = errors.New("remote record not found")

// ErrSubscribeUnsupported is returned by providers whose backend cannot
// push change notifications. The reconciler then relies on full syncs.
var ErrSubscribeUnsupported = errors.New("live updates not supported by this provider")

// Event is one live change notification.
type Event struct {
	// ID is always set; Record is nil when Deleted.
	ID      string
	Record  *domain.TransactionRecord
	Deleted bool

	// Local marks an echo of this handle's own just-completed write.
	// Subscribers must ignore local echoes or they feed their own writes
	// back into themselves.
	Local bool
}

// Provider is the remote record store contract.
type Provider interface {
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.TransactionRecord, error)

	// List returns every record held for the account.
	List(ctx context.Context) ([]*domain.TransactionRecord, error)

	// Put upserts one record keyed by its id.
	Put(ctx context.Context, rec *domain.TransactionRecord) error

	// Delete removes the record with the given id. Deleting an absent id
	// is not an error: deletion propagation must be idempotent.
	Delete(ctx context.Context, id string) error

	// Subscribe registers a live change callback and returns its
	// unsubscribe handle, or ErrSubscribeUnsupported.
	Subscribe(fn func(Event)) (func(), error)
}
