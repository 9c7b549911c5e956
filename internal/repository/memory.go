package repository

import (
	"context"
	"sync"
	"time"
)

type idempotencyEntry struct {
	reservationID string
	expiresAt     time.Time
}

// MemoryIdempotencyStore keeps keys in process. Used as the fallback when Redis is unavailable.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

func (r *MemoryIdempotencyStore) Lookup(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return "", false, nil
	}
	if r.now().After(entry.expiresAt) {
		delete(r.entries, key)
		return "", false, nil
	}
	return entry.reservationID, true, nil
}

func (r *MemoryIdempotencyStore) Remember(_ context.Context, key, reservationID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry, ok := r.entries[key]; ok && !now.After(entry.expiresAt) {
		return nil
	}
	r.entries[key] = idempotencyEntry{reservationID: reservationID, expiresAt: now.Add(ttl)}
	return nil
}

func (r *MemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// Sweep drops expired keys and returns how many were removed.
func (r *MemoryIdempotencyStore) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}
