package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore counts windows in a rate_limits table, shared across
// gateway instances. Driver registration (lib/pq) is the caller's
// concern.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the counter table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limits (
			client_id       TEXT PRIMARY KEY,
			count           BIGINT NOT NULL,
			window_reset_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Incr bumps the client's counter in one round trip, resetting the
// window when the stored one has elapsed.
func (s *PostgresStore) Incr(ctx context.Context, clientID string, window time.Duration) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (client_id, count, window_reset_at)
		VALUES ($1, 1, now() + $2 * interval '1 second')
		ON CONFLICT (client_id) DO UPDATE SET
			count = CASE
				WHEN rate_limits.window_reset_at <= now() THEN 1
				ELSE rate_limits.count + 1
			END,
			window_reset_at = CASE
				WHEN rate_limits.window_reset_at <= now() THEN now() + $2 * interval '1 second'
				ELSE rate_limits.window_reset_at
			END
		RETURNING count
	`, clientID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
