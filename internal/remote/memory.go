package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// Hub is an in-process remote backend shared by any number of client
// handles. Each handle sees every other handle's writes as foreign events
// and its own writes as local echoes, which is exactly the contract the
// reconciler's live-update path is written against. Used as the test
// double and for offline runs.
type Hub struct {
	mu      sync.Mutex
	records map[string]*domain.TransactionRecord

	subMu   sync.Mutex
	subs    map[int]hubSub
	nextSub int
}

type hubSub struct {
	session string
	fn      func(Event)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		records: make(map[string]*domain.TransactionRecord),
		subs:    make(map[int]hubSub),
	}
}

// Client opens a new session handle on the hub.
func (h *Hub) Client() *MemoryProvider {
	return &MemoryProvider{hub: h, session: uuid.NewString()}
}

func (h *Hub) publish(ev Event, source string) {
	h.subMu.Lock()
	subs := make([]hubSub, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subMu.Unlock()

	for _, s := range subs {
		ev.Local = s.session == source
		s.fn(ev)
	}
}

// MemoryProvider is one session handle on a Hub.
type MemoryProvider struct {
	hub     *Hub
	session string
}

// Get implements Provider.
func (p *MemoryProvider) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()

	rec, ok := p.hub.records[id]
	if !ok {
		return nil, fmt.Errorf("Get %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// List implements Provider.
func (p *MemoryProvider) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	p.hub.mu.Lock()
	out := make([]*domain.TransactionRecord, 0, len(p.hub.records))
	for _, rec := range p.hub.records {
		out = append(out, rec.Clone())
	}
	p.hub.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put implements Provider.
func (p *MemoryProvider) Put(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("Put: record id is required")
	}

	p.hub.mu.Lock()
	p.hub.records[rec.ID] = rec.Clone()
	p.hub.mu.Unlock()

	p.hub.publish(Event{ID: rec.ID, Record: rec.Clone()}, p.session)
	return nil
}

// Delete implements Provider. Absent ids are silently accepted.
func (p *MemoryProvider) Delete(ctx context.Context, id string) error {
	p.hub.mu.Lock()
	_, existed := p.hub.records[id]
	delete(p.hub.records, id)
	p.hub.mu.Unlock()

	if existed {
		p.hub.publish(Event{ID: id, Deleted: true}, p.session)
	}
	return nil
}

// Subscribe implements Provider.
func (p *MemoryProvider) Subscribe(fn func(Event)) (func(), error) {
	p.hub.subMu.Lock()
	id := p.hub.nextSub
	p.hub.nextSub++
	p.hub.subs[id] = hubSub{session: p.session, fn: fn}
	p.hub.subMu.Unlock()

	return func() {
		p.hub.subMu.Lock()
		delete(p.hub.subs, id)
		p.hub.subMu.Unlock()
	}, nil
}

var _ Provider = (*MemoryProvider)(nil)
