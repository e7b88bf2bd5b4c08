package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter enforces a fixed-window request quota per client identifier.
// The backing store is injectable so the in-memory default can be
// swapped for Redis or Postgres without touching call sites.
type Limiter struct {
	store  Store
	window time.Duration
	max    int64
}

func New(store Store, window time.Duration, max int) *Limiter {
	return &Limiter{store: store, window: window, max: int64(max)}
}

// Allow reports whether the client may proceed. Requests over the quota
// are rejected before any downstream cost is incurred. A store failure
// fails open with a warning log.
func (l *Limiter) Allow(ctx context.Context, clientID string) bool {
	count, err := l.store.Incr(ctx, clientID, l.window)
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("ratelimit: store unavailable, allowing")
		return true
	}
	return count <= l.max
}
