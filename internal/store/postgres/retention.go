package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SweepRetention deletes ACHIEVED goals with updated_at before cutoff
// that are not referenced by any non-terminal goal. Failed
// goals (GIVEN_UP/CORRUPTED/NOT_GOING_TO_HAPPEN_SOON) are never
// touched: they are filtered out by the state = 'achieved' clause
// below, not by a separate check, so there is no way for this query to
// ever delete one.
func (s *Store) SweepRetention(ctx context.Context, cutoff time.Time) (deleted, skipped int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: begin retention tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM goals
		WHERE state = 'achieved' AND updated_at < $1
		FOR UPDATE SKIP LOCKED
	`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: select retention candidates: %w", err)
	}
	var candidates []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("postgres: scan retention candidate: %w", err)
		}
		candidates = append(candidates, id)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return 0, 0, fmt.Errorf("postgres: retention candidates: %w", rowsErr)
	}

	for _, id := range candidates {
		var referents int
		row := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM goal_preconditions gp
			JOIN goals g ON g.id = gp.dependent_id
			WHERE gp.prerequisite_id = $1
			  AND g.state NOT IN ('achieved', 'given_up', 'corrupted', 'not_going_to_happen_soon')
		`, id)
		if err := row.Scan(&referents); err != nil {
			return 0, 0, fmt.Errorf("postgres: count referents of %s: %w", id, err)
		}
		if referents > 0 {
			skipped++
			continue
		}

		// Only terminal dependents still hold edges to id here; drop
		// them so the ON DELETE RESTRICT edge cannot block the delete.
		if _, err := tx.Exec(ctx, `DELETE FROM goal_preconditions WHERE prerequisite_id = $1`, id); err != nil {
			return 0, 0, fmt.Errorf("postgres: delete edges to retained goal %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM goals WHERE id = $1`, id); err != nil {
			return 0, 0, fmt.Errorf("postgres: delete retained goal %s: %w", id, err)
		}
		deleted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("postgres: commit retention tx: %w", err)
	}
	return deleted, skipped, nil
}
