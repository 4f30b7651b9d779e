// Package cache provides an in-process transaction snapshot cache for
// deployments that run without Redis.
package cache

import (
	"context"
	"sync"
	"time"

	"donation/internal/domain"
	"donation/internal/redis"
)

var _ redis.SessionStoreInterface = (*MemorySessionStore)(nil)

type entry struct {
	snap      domain.TransactionSnapshot
	expiresAt time.Time
}

// MemorySessionStore is a mutex-guarded map with per-entry expiry. Expired
// entries are invisible to readers immediately and swept by a janitor.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewMemorySessionStore creates a store and starts its janitor. A
// non-positive ttl selects redis.DefaultSessionTTL; a non-positive sweep
// interval disables the janitor.
func NewMemorySessionStore(ttl, sweep time.Duration) *MemorySessionStore {
	return newMemorySessionStore(ttl, sweep, time.Now)
}

func newMemorySessionStore(ttl, sweep time.Duration, now func() time.Time) *MemorySessionStore {
	if ttl <= 0 {
		ttl = redis.DefaultSessionTTL
	}
	s := &MemorySessionStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go s.janitor(sweep)
	}
	return s
}

// Store writes the snapshot and resets its TTL.
func (s *MemorySessionStore) Store(_ context.Context, snap *domain.TransactionSnapshot) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *snap
	if stored.LastAccessedAt.IsZero() {
		stored.LastAccessedAt = now
	}
	s.entries[snap.TransactionID] = entry{snap: stored, expiresAt: now.Add(s.ttl)}
	return nil
}

// Get returns a copy of the snapshot, or nil when absent or expired.
func (s *MemorySessionStore) Get(_ context.Context, transactionID string) (*domain.TransactionSnapshot, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[transactionID]
	if !ok {
		return nil, nil
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, transactionID)
		return nil, nil
	}

	e.snap.LastAccessedAt = now
	e.expiresAt = now.Add(s.ttl)
	s.entries[transactionID] = e

	out := e.snap
	return &out, nil
}

// UpdateStatus changes the status of a live entry and is a no-op otherwise.
func (s *MemorySessionStore) UpdateStatus(_ context.Context, transactionID string, status domain.TransactionStatus) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[transactionID]
	if !ok || !now.Before(e.expiresAt) {
		return nil
	}
	e.snap.Status = status
	e.expiresAt = now.Add(s.ttl)
	s.entries[transactionID] = e
	return nil
}

// Len returns the number of entries, expired or not, still held.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the janitor. It is safe to call more than once.
func (s *MemorySessionStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemorySessionStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemorySessionStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}
