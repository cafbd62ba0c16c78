package subscription

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory subscription store for demo/development mode.
type MemoryStore struct {
	byUser map[string][]*Subscription // append order = creation order
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byUser[s.UserID] {
		if existing.Status != StatusCanceled {
			return ErrAlreadyExists
		}
	}

	cp := *s
	m.byUser[s.UserID] = append(m.byUser[s.UserID], &cp)
	return nil
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.byUser[userID]
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	cp := *subs[len(subs)-1]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, subs := range m.byUser {
		for i, existing := range subs {
			if existing.ID == s.ID {
				cp := *s
				subs[i] = &cp
				return nil
			}
		}
	}
	return ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
