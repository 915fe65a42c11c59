package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// Memory is an in-memory implementation of RecordStore. It stores copies
// of records keyed by id and is safe for concurrent use; all mutations
// serialize on one mutex. Data is lost on restart - use the file-backed
// store for persistence.
type Memory struct {
	mu         sync.Mutex
	records    map[string]*domain.TransactionRecord
	tombstones map[string]bool

	subMu   sync.Mutex
	subs    map[int]func(ChangeEvent)
	nextSub int
}

// NewMemory creates an empty in-memory record store.
func NewMemory() *Memory {
	return &Memory{
		records:    make(map[string]*domain.TransactionRecord),
		tombstones: make(map[string]bool),
		subs:       make(map[int]func(ChangeEvent)),
	}
}

// Insert implements RecordStore. It assigns the id and refuses records
// that violate the amount invariant.
func (m *Memory) Insert(ctx context.Context, rec *domain.TransactionRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("Insert: nil record")
	}
	if !rec.Amount.IsPositive() {
		return "", fmt.Errorf("Insert: amount must be positive, got %s", rec.Amount)
	}

	m.mu.Lock()
	id := uuid.NewString()
	rec.ID = id
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records[id] = rec.Clone()
	m.mu.Unlock()

	m.notify(ChangeEvent{Kind: ChangeInserted, ID: id, Record: rec.Clone()})
	return id, nil
}

// Upsert implements RecordStore.
func (m *Memory) Upsert(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("Upsert: record id is required")
	}
	if !rec.Amount.IsPositive() {
		return fmt.Errorf("Upsert: amount must be positive, got %s", rec.Amount)
	}

	m.mu.Lock()
	_, existed := m.records[rec.ID]
	m.records[rec.ID] = rec.Clone()
	m.mu.Unlock()

	kind := ChangeInserted
	if existed {
		kind = ChangeUpdated
	}
	m.notify(ChangeEvent{Kind: kind, ID: rec.ID, Record: rec.Clone()})
	return nil
}

// Update implements RecordStore.
func (m *Memory) Update(ctx context.Context, id string, patch domain.RecordPatch) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("Update %s: %w", id, ErrNotFound)
	}
	if err := patch.Apply(rec); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("Update %s: %w", id, err)
	}
	updated := rec.Clone()
	m.mu.Unlock()

	m.notify(ChangeEvent{Kind: ChangeUpdated, ID: id, Record: updated})
	return nil
}

// Delete implements RecordStore. The id goes into the tombstone set so
// the reconciler can propagate the deletion.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.records[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("Delete %s: %w", id, ErrNotFound)
	}
	delete(m.records, id)
	m.tombstones[id] = true
	m.mu.Unlock()

	m.notify(ChangeEvent{Kind: ChangeDeleted, ID: id})
	return nil
}

// Reset implements RecordStore.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
		m.tombstones[id] = true
	}
	m.records = make(map[string]*domain.TransactionRecord)
	m.mu.Unlock()

	for _, id := range ids {
		m.notify(ChangeEvent{Kind: ChangeDeleted, ID: id})
	}
	return nil
}

// Get implements RecordStore.
func (m *Memory) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("Get %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// QueryAll implements RecordStore, ordered by OccurredAt descending.
func (m *Memory) QueryAll(ctx context.Context) ([]*domain.TransactionRecord, error) {
	m.mu.Lock()
	out := make([]*domain.TransactionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

// HasDuplicate implements RecordStore: external reference first, exact
// raw text as the fallback when no reference is available.
func (m *Memory) HasDuplicate(ctx context.Context, externalRef, rawText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if externalRef != "" {
		for _, rec := range m.records {
			if rec.ExternalRef == externalRef {
				return true, nil
			}
		}
		return false, nil
	}
	if rawText == "" {
		return false, nil
	}
	for _, rec := range m.records {
		if rec.RawText == rawText {
			return true, nil
		}
	}
	return false, nil
}

// MarkSynced implements RecordStore. A missing record is not an error:
// it may have been deleted between upload and confirmation.
func (m *Memory) MarkSynced(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		t := at
		rec.SyncedAt = &t
	}
	return nil
}

// Tombstones implements RecordStore.
func (m *Memory) Tombstones(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.tombstones))
	for id := range m.tombstones {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ClearTombstone implements RecordStore.
func (m *Memory) ClearTombstone(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tombstones, id)
	return nil
}

// OnChange implements RecordStore.
func (m *Memory) OnChange(fn func(ChangeEvent)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// notify fans an event out to current subscribers, outside the store
// lock so callbacks may re-enter the store.
func (m *Memory) notify(ev ChangeEvent) {
	m.subMu.Lock()
	fns := make([]func(ChangeEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

var _ RecordStore = (*Memory)(nil)
