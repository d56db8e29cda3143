package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/EE/goals/internal/store"
)

// tracking is a single dedicated connection used only for
// WorkerTracking writes, outside the main transactional pool. Writes
// commit immediately (autocommit); this is why a two-connections-
// per-worker model is unavoidable.
//
// started remembers the started_at this handle used for each goal it
// currently holds open, since the table's primary key now includes
// started_at (one row per attempt, not per worker/goal pair) and Stop
// must delete the exact row Start inserted.
type tracking struct {
	conn *pgx.Conn

	mu      sync.Mutex
	started map[uuid.UUID]time.Time
}

// OpenTracking dials a fresh, standalone connection for the caller's
// exclusive use as its WorkerTracking handle.
func (s *Store) OpenTracking(ctx context.Context) (store.Tracking, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open tracking connection: %w", err)
	}
	return &tracking{conn: conn, started: make(map[uuid.UUID]time.Time)}, nil
}

// Start inserts a new WorkerTracking row just before handler
// invocation. It must be visible to other connections immediately,
// which a bare Exec on this dedicated connection already guarantees
// (no open transaction wraps it). A worker that restarts under the
// same worker ID and retries the same goal inserts a second row
// rather than overwriting its prior attempt, so the Killer-Task Guard
// can see every attempt a crash-looping worker has made against a
// goal, not just the latest one.
func (t *tracking) Start(ctx context.Context, workerID string, goalID uuid.UUID) error {
	startedAt := time.Now().UTC()
	if _, err := t.conn.Exec(ctx, `
		INSERT INTO worker_tracking (worker_id, goal_id, started_at) VALUES ($1, $2, $3)
	`, workerID, goalID, startedAt); err != nil {
		return fmt.Errorf("postgres: track start %s/%s: %w", workerID, goalID, err)
	}
	t.mu.Lock()
	t.started[goalID] = startedAt
	t.mu.Unlock()
	return nil
}

// Stop deletes the tracking row this handle's last Start for goalID
// inserted. Callers must invoke this before committing the main
// dispatch transaction, not after, otherwise a crash between commit
// and delete would look like a killed attempt.
func (t *tracking) Stop(ctx context.Context, workerID string, goalID uuid.UUID) error {
	t.mu.Lock()
	startedAt, ok := t.started[goalID]
	delete(t.started, goalID)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("postgres: track stop %s/%s: no open Start for this handle", workerID, goalID)
	}

	if _, err := t.conn.Exec(ctx, `
		DELETE FROM worker_tracking WHERE worker_id = $1 AND goal_id = $2 AND started_at = $3
	`, workerID, goalID, startedAt); err != nil {
		return fmt.Errorf("postgres: track stop %s/%s: %w", workerID, goalID, err)
	}
	return nil
}

func (t *tracking) Close(ctx context.Context) error {
	return t.conn.Close(ctx)
}
