package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps window counters in a process-local TTL cache.
// Counters do not survive a restart; an accepted limitation of the
// default store.
type MemoryStore struct {
	mu sync.Mutex
	c  *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	// Per-entry TTLs come from the window at Incr time; the default
	// expiration is never used.
	return &MemoryStore{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (s *MemoryStore) Incr(_ context.Context, clientID string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, err := s.c.IncrementInt64(clientID, 1); err == nil {
		return n, nil
	}
	// No live window for this client: start one.
	s.c.Set(clientID, int64(1), window)
	return 1, nil
}
