package service

import (
	"context"
	"sync"
	"time"
)

// IdempotencyStore remembers review submissions by client key.
//
// Claim reserves key and reports claimed=true for the first caller. Later
// callers get the stored result, or nil while the first request is running.
// Release drops a claim whose request failed.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (prior []byte, claimed bool, err error)
	Complete(ctx context.Context, key string, result []byte) error
	Release(ctx context.Context, key string) error
}

type idempotencyEntry struct {
	result  []byte
	expires time.Time
}

// MemoryIdempotencyStore is the in-process IdempotencyStore used without Redis
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]idempotencyEntry
}

// NewMemoryIdempotencyStore creates an in-memory idempotency store
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]idempotencyEntry),
	}
}

func (m *MemoryIdempotencyStore) Claim(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	if e, ok := m.entries[key]; ok {
		return e.result, false, nil
	}
	m.entries[key] = idempotencyEntry{expires: now.Add(m.ttl)}
	return nil, true, nil
}

func (m *MemoryIdempotencyStore) Complete(_ context.Context, key string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = idempotencyEntry{
		result:  append([]byte(nil), result...),
		expires: m.now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryIdempotencyStore) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
