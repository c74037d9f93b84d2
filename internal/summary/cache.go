package summary

import (
	"context"
	"sync"
)

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

// NewMemoryCache creates an empty in-memory summary cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int64]Entry)}
}

func (m *MemoryCache) Get(_ context.Context, productID int64) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[productID]
	return e, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, productID int64, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[productID]; ok && cur.Version > entry.Version {
		return nil
	}
	m.entries[productID] = entry
	return nil
}
