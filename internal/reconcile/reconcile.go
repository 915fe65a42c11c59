// Package reconcile keeps the local record store and a remote provider
// convergent: per-record uploads after ingestion, full two-way syncs on a
// schedule or trigger, and optional live updates where the provider
// supports a change feed. Conflicts resolve last-writer-wins on CreatedAt.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aman124598/upi-tracker/internal/domain"
	"github.com/aman124598/upi-tracker/internal/logger"
	"github.com/aman124598/upi-tracker/internal/remote"
	"github.com/aman124598/upi-tracker/internal/store"
)

// ErrSyncInProgress is returned by Sync when another sync holds the flag.
// Callers treat it as "try again later", not a failure.
var ErrSyncInProgress = errors.New("sync already in progress")

// Status is the observable reconciler state for "last sync failed"
// surfaces. LastError is nil after a fully clean sync.
type Status struct {
	InProgress bool
	LastSyncAt time.Time
	LastError  error
}

// Reconciler merges the local store with one remote provider.
type Reconciler struct {
	store  store.RecordStore
	remote remote.Provider

	mu         sync.Mutex
	inProgress bool
	lastSyncAt time.Time
	lastErr    error
}

// New creates a reconciler between the store and the provider.
func New(st store.RecordStore, provider remote.Provider) *Reconciler {
	return &Reconciler{store: st, remote: provider}
}

// Status returns a snapshot of the reconciler state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		InProgress: r.inProgress,
		LastSyncAt: r.lastSyncAt,
		LastError:  r.lastErr,
	}
}

func (r *Reconciler) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// Upload pushes one local record to the remote store and stamps its
// SyncedAt on success. Safe to call repeatedly for the same id: Put is an
// upsert keyed by record id.
func (r *Reconciler) Upload(ctx context.Context, id string) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between enqueue and upload; the tombstone pass
			// handles it.
			return nil
		}
		return fmt.Errorf("Upload %s: %w", id, err)
	}

	if err := r.remote.Put(ctx, rec); err != nil {
		err = fmt.Errorf("Upload %s: %w", id, err)
		r.setErr(err)
		return err
	}
	if err := r.store.MarkSynced(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("Upload %s: %w", id, err)
	}
	r.setErr(nil)
	return nil
}

// Sync runs one full two-way reconciliation. At most one sync runs at a
// time; concurrent calls get ErrSyncInProgress. Per-record failures are
// logged and skipped so one bad record cannot wedge the whole sync; they
// still surface through Status.
func (r *Reconciler) Sync(ctx context.Context) error {
	r.mu.Lock()
	if r.inProgress {
		r.mu.Unlock()
		return ErrSyncInProgress
	}
	r.inProgress = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProgress = false
		r.mu.Unlock()
	}()

	log := logger.FromContext(ctx)
	var recordErr error

	// Deletions first: a tombstoned id must not be re-materialized from
	// the remote set below.
	deleted := 0
	tombstoned := make(map[string]bool)
	ids, err := r.store.Tombstones(ctx)
	if err != nil {
		r.setErr(err)
		return fmt.Errorf("Sync: listing tombstones: %w", err)
	}
	for _, id := range ids {
		if err := r.remote.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("record_id", id).Msg("Failed to propagate deletion")
			recordErr = err
			tombstoned[id] = true
			continue
		}
		if err := r.store.ClearTombstone(ctx, id); err != nil {
			log.Warn().Err(err).Str("record_id", id).Msg("Failed to clear tombstone")
			recordErr = err
		}
		deleted++
	}

	remoteRecs, err := r.remote.List(ctx)
	if err != nil {
		r.setErr(err)
		return fmt.Errorf("Sync: listing remote records: %w", err)
	}
	localRecs, err := r.store.QueryAll(ctx)
	if err != nil {
		r.setErr(err)
		return fmt.Errorf("Sync: listing local records: %w", err)
	}

	localByID := make(map[string]*domain.TransactionRecord, len(localRecs))
	for _, rec := range localRecs {
		localByID[rec.ID] = rec
	}
	remoteByID := make(map[string]*domain.TransactionRecord, len(remoteRecs))
	for _, rec := range remoteRecs {
		remoteByID[rec.ID] = rec
	}

	pushed, pulled := 0, 0

	// Remote-only or remote-newer records materialize locally.
	for _, rem := range remoteRecs {
		if tombstoned[rem.ID] {
			continue
		}
		local, seen := localByID[rem.ID]
		if seen && !rem.NewerThan(local) {
			continue
		}
		if err := r.store.Upsert(ctx, rem); err != nil {
			log.Warn().Err(err).Str("record_id", rem.ID).Msg("Failed to materialize remote record")
			recordErr = err
			continue
		}
		pulled++
	}

	// Local-only or local-newer records push to the remote.
	now := time.Now()
	for _, local := range localRecs {
		rem, seen := remoteByID[local.ID]
		if seen && !local.NewerThan(rem) {
			continue
		}
		if err := r.remote.Put(ctx, local); err != nil {
			log.Warn().Err(err).Str("record_id", local.ID).Msg("Failed to push local record")
			recordErr = err
			continue
		}
		if err := r.store.MarkSynced(ctx, local.ID, now); err != nil {
			log.Warn().Err(err).Str("record_id", local.ID).Msg("Failed to stamp synced time")
			recordErr = err
		}
		pushed++
	}

	r.mu.Lock()
	r.lastSyncAt = time.Now()
	r.lastErr = recordErr
	r.mu.Unlock()

	log.Info().
		Int("pushed", pushed).
		Int("pulled", pulled).
		Int("deleted", deleted).
		Int("local", len(localRecs)).
		Int("remote", len(remoteRecs)).
		Msg("Sync completed")
	return nil
}

// StartLiveUpdates subscribes to the provider's change feed and applies
// foreign changes to the local store under the same last-writer-wins
// rule. Echoes of this reconciler's own writes are ignored. Returns the
// unsubscribe handle, or the provider's ErrSubscribeUnsupported.
func (r *Reconciler) StartLiveUpdates(ctx context.Context) (func(), error) {
	log := logger.FromContext(ctx)

	unsubscribe, err := r.remote.Subscribe(func(ev remote.Event) {
		if ev.Local {
			return
		}
		if ev.Deleted {
			if err := r.store.Delete(ctx, ev.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Warn().Err(err).Str("record_id", ev.ID).Msg("Failed to apply remote deletion")
				return
			}
			// The remote already deleted this id; no tombstone to carry.
			_ = r.store.ClearTombstone(ctx, ev.ID)
			return
		}

		local, err := r.store.Get(ctx, ev.ID)
		if err == nil && !ev.Record.NewerThan(local) {
			return
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("record_id", ev.ID).Msg("Failed to read local record for live update")
			return
		}
		if err := r.store.Upsert(ctx, ev.Record); err != nil {
			log.Warn().Err(err).Str("record_id", ev.ID).Msg("Failed to apply live update")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("StartLiveUpdates: %w", err)
	}
	return unsubscribe, nil
}
