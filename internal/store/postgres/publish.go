package postgres

import (
	"context"
	"fmt"
)

// Publish sends a NOTIFY on the engine's shared channel via the pool —
// it runs after the dispatcher's transaction has committed, so it is
// deliberately not part of any goalTx.
func (s *Store) Publish(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, '')`, s.channel); err != nil {
		return fmt.Errorf("postgres: publish on %q: %w", s.channel, err)
	}
	return nil
}
