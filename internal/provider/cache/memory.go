package cache

import (
	"context"
	"sync"
	"time"

	"shippingquote/internal/provider"
)

// entry stores cached quotes for a single key with expiry.
type entry struct {
	expiresAt time.Time
	quotes    []provider.Quote
}

// MemoryStore is an in-process Store bounded by MaxItems.
type MemoryStore struct {
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

func NewMemoryStore(maxItems int) *MemoryStore {
	return &MemoryStore{MaxItems: maxItems, items: make(map[string]entry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]provider.Quote, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]provider.Quote(nil), e.quotes...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, quotes []provider.Quote, ttl time.Duration) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]entry)
	}
	m.items[key] = entry{expiresAt: now.Add(ttl), quotes: append([]provider.Quote(nil), quotes...)}

	if m.MaxItems > 0 && len(m.items) > m.MaxItems {
		// remove expired first, then arbitrary keys until under the limit
		for k, v := range m.items {
			if !now.Before(v.expiresAt) {
				delete(m.items, k)
			}
		}
		for k := range m.items {
			if len(m.items) <= m.MaxItems {
				break
			}
			if k != key {
				delete(m.items, k)
			}
		}
	}
	return nil
}

// Len reports the number of stored keys, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
