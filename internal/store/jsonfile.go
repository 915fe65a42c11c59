package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// fileSnapshot is the on-disk shape of a JSONFile store.
type fileSnapshot struct {
	Records    []*domain.TransactionRecord `json:"records"`
	Tombstones []string                    `json:"tombstones,omitempty"`
}

// JSONFile is a RecordStore persisted to a single JSON file. It keeps the
// working set in an embedded Memory store and rewrites the file after
// every committed mutation. Suitable for a single process owning the
// file; the single-writer model is enforced by the inner store's mutex.
type JSONFile struct {
	path string
	mem  *Memory
}

// NewJSONFile opens or creates the store at path.
func NewJSONFile(path string) (*JSONFile, error) {
	s := &JSONFile{path: path, mem: NewMemory()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("NewJSONFile: reading %s: %w", path, err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("NewJSONFile: decoding %s: %w", path, err)
	}
	for _, rec := range snap.Records {
		s.mem.records[rec.ID] = rec
	}
	for _, id := range snap.Tombstones {
		s.mem.tombstones[id] = true
	}
	return s, nil
}

func (s *JSONFile) save() error {
	s.mem.mu.Lock()
	snap := fileSnapshot{
		Records:    make([]*domain.TransactionRecord, 0, len(s.mem.records)),
		Tombstones: make([]string, 0, len(s.mem.tombstones)),
	}
	for _, rec := range s.mem.records {
		snap.Records = append(snap.Records, rec.Clone())
	}
	for id := range s.mem.tombstones {
		snap.Tombstones = append(snap.Tombstones, id)
	}
	s.mem.mu.Unlock()

	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })
	sort.Strings(snap.Tombstones)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("save: encoding: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("save: writing %s: %w", s.path, err)
	}
	return nil
}

// Insert implements RecordStore.
func (s *JSONFile) Insert(ctx context.Context, rec *domain.TransactionRecord) (string, error) {
	id, err := s.mem.Insert(ctx, rec)
	if err != nil {
		return "", err
	}
	return id, s.save()
}

// Upsert implements RecordStore.
func (s *JSONFile) Upsert(ctx context.Context, rec *domain.TransactionRecord) error {
	if err := s.mem.Upsert(ctx, rec); err != nil {
		return err
	}
	return s.save()
}

// Update implements RecordStore.
func (s *JSONFile) Update(ctx context.Context, id string, patch domain.RecordPatch) error {
	if err := s.mem.Update(ctx, id, patch); err != nil {
		return err
	}
	return s.save()
}

// Delete implements RecordStore.
func (s *JSONFile) Delete(ctx context.Context, id string) error {
	if err := s.mem.Delete(ctx, id); err != nil {
		return err
	}
	return s.save()
}

// Reset implements RecordStore.
func (s *JSONFile) Reset(ctx context.Context) error {
	if err := s.mem.Reset(ctx); err != nil {
		return err
	}
	return s.save()
}

// Get implements RecordStore.
func (s *JSONFile) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	return s.mem.Get(ctx, id)
}

// QueryAll implements RecordStore.
func (s *JSONFile) QueryAll(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return s.mem.QueryAll(ctx)
}

// HasDuplicate implements RecordStore.
func (s *JSONFile) HasDuplicate(ctx context.Context, externalRef, rawText string) (bool, error) {
	return s.mem.HasDuplicate(ctx, externalRef, rawText)
}

// MarkSynced implements RecordStore.
func (s *JSONFile) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if err := s.mem.MarkSynced(ctx, id, at); err != nil {
		return err
	}
	return s.save()
}

// Tombstones implements RecordStore.
func (s *JSONFile) Tombstones(ctx context.Context) ([]string, error) {
	return s.mem.Tombstones(ctx)
}

// ClearTombstone implements RecordStore.
func (s *JSONFile) ClearTombstone(ctx context.Context, id string) error {
	if err := s.mem.ClearTombstone(ctx, id); err != nil {
		return err
	}
	return s.save()
}

// OnChange implements RecordStore.
func (s *JSONFile) OnChange(fn func(ChangeEvent)) func() {
	return s.mem.OnChange(fn)
}

var _ RecordStore = (*JSONFile)(nil)
