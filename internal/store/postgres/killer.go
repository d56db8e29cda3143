package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TrackingCounts groups WorkerTracking rows by goal_id and returns the
// distinct started_at count per goal, for the Killer-Task Guard. It
// runs on the shared pool, outside any goal transaction.
func (s *Store) TrackingCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT goal_id, COUNT(DISTINCT started_at)
		FROM worker_tracking
		GROUP BY goal_id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: tracking counts: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan tracking count: %w", err)
		}
		out[id] = count
	}
	return out, rows.Err()
}

// MarkCorruptedByKiller marks a goal CORRUPTED and deletes its tracking
// rows, outside any goal transaction. The two statements
// run in one short transaction purely so a crash mid-guard can't leave
// the goal CORRUPTED with stale tracking rows still present (or vice
// versa); this is unrelated to, and does not reuse, any dispatcher
// transaction.
func (s *Store) MarkCorruptedByKiller(ctx context.Context, goalID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin killer tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE goals SET state = 'corrupted', updated_at = now() WHERE id = $1`, goalID); err != nil {
		return fmt.Errorf("postgres: mark corrupted by killer: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM worker_tracking WHERE goal_id = $1`, goalID); err != nil {
		return fmt.Errorf("postgres: delete tracking for killed goal: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO goal_progress (goal_id, started_at, finished_at, success, message, traceback)
		VALUES ($1, now(), now(), false, 'corrupted', 'killer-task guard: repeated worker death')
	`, goalID); err != nil {
		return fmt.Errorf("postgres: append killer progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit killer tx: %w", err)
	}
	return nil
}

// MarkCorrupted is the side-connection path used when the main
// transaction cannot be used to record a failure. The caller has already rolled back
// its own transaction.
func (s *Store) MarkCorrupted(ctx context.Context, goalID uuid.UUID, note string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin corrupt tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE goals SET state = 'corrupted', updated_at = now() WHERE id = $1`, goalID); err != nil {
		return fmt.Errorf("postgres: mark corrupted: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO goal_progress (goal_id, started_at, finished_at, success, message, traceback)
		VALUES ($1, now(), now(), false, $2, 'corrupted')
	`, goalID, note); err != nil {
		return fmt.Errorf("postgres: append corrupt progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit corrupt tx: %w", err)
	}
	return nil
}
