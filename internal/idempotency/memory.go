package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory. Used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, *Reply, error) {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && now.Before(e.Expires) {
		return e.claimFor(fingerprint)
	}
	s.entries[id] = entry{Fingerprint: fingerprint, Expires: expiry(now, ttl)}
	return Claimed, nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, reply Reply, now time.Time, ttl time.Duration) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && e.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	s.entries[id] = entry{Fingerprint: fingerprint, Reply: &reply, Expires: expiry(now, ttl)}
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key, fingerprint string) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && e.Fingerprint == fingerprint {
		delete(s.entries, id)
	}
	return nil
}
