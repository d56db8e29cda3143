package postgres

import (
	"context"
	"fmt"
)

// TruncateAll clears every engine table, for use between integration
// tests that share one long-lived database. Not used by production
// code paths.
func TruncateAll(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE TABLE goal_progress, worker_tracking, goal_preconditions, goals
	`)
	if err != nil {
		return fmt.Errorf("postgres: truncate all: %w", err)
	}
	return nil
}
