package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	principal Principal
	expiresAt time.Time
}

// MemoryStore is a process-local session store for single-node deployments
// without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, jti string, principal Principal, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !expiresAt.After(now) {
		return fmt.Errorf("save session %s: already expired", jti)
	}
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = now.UTC()
	}
	s.entries[jti] = memoryEntry{principal: principal, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, jti string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[jti]
	if !ok {
		return Principal{}, ErrNotFound
	}
	if !entry.expiresAt.After(s.now()) {
		delete(s.entries, jti)
		return Principal{}, ErrNotFound
	}
	return entry.principal, nil
}

func (s *MemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jti)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
