// Package cache provides an in-process counter store on go-cache.
package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CounterStore keeps rate limit counters in process memory. Counts are not
// shared between instances.
type CounterStore struct {
	backend *gocache.Cache
	mu      sync.Mutex
}

// NewCounterStore creates a counter store; expired entries are swept every
// cleanupInterval.
func NewCounterStore(cleanupInterval time.Duration) *CounterStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &CounterStore{
		backend: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Increment adds one to key, starting a ttl window when the key is new or expired.
func (s *CounterStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// IncrementInt64 fails for a missing key and for an expired one the
	// janitor has not swept yet; both start a new window
	count, err := s.backend.IncrementInt64(key, 1)
	if err != nil {
		s.backend.Set(key, int64(1), normalizeTTL(ttl))
		return 1, nil
	}
	return count, nil
}

// Block marks key as blocked for ttl.
func (s *CounterStore) Block(_ context.Context, key string, ttl time.Duration) error {
	s.backend.Set(key, true, normalizeTTL(ttl))
	return nil
}

// Blocked reports whether key is currently blocked.
func (s *CounterStore) Blocked(_ context.Context, key string) (bool, error) {
	_, ok := s.backend.Get(key)
	return ok, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
