package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory quota store for demo/development mode.
type MemoryStore struct {
	periods map[string]*Usage // "userID:period" -> usage
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods: make(map[string]*Usage),
	}
}

func key(userID, period string) string {
	return userID + ":" + period
}

func (m *MemoryStore) GetUsage(ctx context.Context, userID, period string) (*Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u, ok := m.periods[key(userID, period)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) OpenPeriod(ctx context.Context, userID, period string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(userID, period)
	if _, ok := m.periods[k]; ok {
		// Already open, limit snapshot stays as it was
		return nil
	}
	m.periods[k] = &Usage{
		UserID:    userID,
		Period:    period,
		Used:      0,
		Limit:     limit,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (m *MemoryStore) Consume(ctx context.Context, userID, period string, amount int) (*Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.periods[key(userID, period)]
	if !ok {
		return nil, ErrPeriodClosed
	}

	if u.Used+amount > u.Limit {
		return nil, ErrQuotaExceeded
	}

	u.Used += amount
	u.UpdatedAt = time.Now()

	cp := *u
	return &cp, nil
}
