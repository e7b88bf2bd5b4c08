package ratelimit

import (
	"context"
	"time"
)

// Store counts requests per client identifier within a fixed window.
// Incr bumps the client's counter, starting a fresh window when none is
// active, and returns the count for the current window. Implementations
// must be safe for concurrent use against the same client id.
type Store interface {
	Incr(ctx context.Context, clientID string, window time.Duration) (int64, error)
}
