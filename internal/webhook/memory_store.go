package webhook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory webhook record store for demo/development mode.
type MemoryStore struct {
	records map[string]*Record // keyed by record ID
	seen    map[string]string  // "provider:externalEventId" -> record ID
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory webhook record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		seen:    make(map[string]string),
	}
}

func dedupeKey(provider, externalEventID string) string {
	return provider + ":" + externalEventID
}

func (m *MemoryStore) Insert(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := dedupeKey(r.Provider, r.ExternalEventID)
	if _, ok := m.seen[k]; ok {
		return ErrDuplicateEvent
	}

	cp := *r
	m.records[r.ID] = &cp
	m.seen[k] = r.ID
	return nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, id, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return errors.New("webhook: record not found")
	}
	now := time.Now()
	r.ProcessedAt = &now
	r.Note = note
	r.LastError = ""
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return errors.New("webhook: record not found")
	}
	r.Attempts++
	r.LastError = errMsg
	return nil
}

func (m *MemoryStore) ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.ProcessedAt == nil && r.Attempts < maxAttempts {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a record by ID (test helper).
func (m *MemoryStore) Get(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

var _ Store = (*MemoryStore)(nil)
