package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
)

// Cancel administratively marks goalID CORRUPTED — the same state the
// Killer-Task Guard and the dispatcher's own non-recoverable-failure
// path use — without requiring a worker to have ever claimed it. A
// goal already in a terminal state (ACHIEVED, GIVEN_UP, CORRUPTED, or
// NOT_GOING_TO_HAPPEN_SOON) never changes state again except via an
// explicit administrative retry, which Cancel is not, so Cancel
// refuses with goals.ErrAlreadyTerminal instead of touching it.
func (s *Store) Cancel(ctx context.Context, goalID uuid.UUID, note string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin cancel tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE goals SET state = 'corrupted', updated_at = now()
		WHERE id = $1
		  AND state NOT IN ('achieved', 'given_up', 'corrupted', 'not_going_to_happen_soon')
	`, goalID)
	if err != nil {
		return fmt.Errorf("postgres: cancel %s: %w", goalID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetGoal(ctx, goalID); err != nil {
			return err
		}
		return goals.ErrAlreadyTerminal
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO goal_progress (goal_id, started_at, finished_at, success, message, traceback)
		VALUES ($1, now(), now(), false, $2, 'administrative cancel')
	`, goalID, note); err != nil {
		return fmt.Errorf("postgres: append cancel progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit cancel tx: %w", err)
	}
	return nil
}
