package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

// ClaimReadyWork runs the claim query and, if a row
// was won, opens a transaction holding its lock for the caller.
func (s *Store) ClaimReadyWork(ctx context.Context, horizon *time.Duration) (store.ClaimOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.ClaimOutcome{}, fmt.Errorf("postgres: begin claim tx: %w", err)
	}

	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE state = 'waiting_for_worker'`
	args := []any{}
	if horizon != nil {
		// A NULL deadline never matches a horizon-bounded claim: a goal
		// with no deadline is only picked up by an unbounded worker.
		query += ` AND deadline IS NOT NULL AND deadline <= $1`
		args = append(args, time.Now().UTC().Add(*horizon))
	}
	query += `
		ORDER BY precondition_date NULLS FIRST, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	row := tx.QueryRow(ctx, query, args...)
	g, err := scanGoal(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		if err == pgx.ErrNoRows {
			return store.ClaimOutcome{Found: false}, nil
		}
		return store.ClaimOutcome{}, fmt.Errorf("postgres: claim query: %w", err)
	}

	return store.ClaimOutcome{Found: true, Tx: &goalTx{tx: tx, goal: g}}, nil
}

// goalTx implements store.GoalTx over one open pgx.Tx holding the row
// lock acquired by ClaimReadyWork.
type goalTx struct {
	tx   pgx.Tx
	goal *goals.Goal
}

func (t *goalTx) Goal() *goals.Goal { return t.goal }

func (t *goalTx) AppendProgress(ctx context.Context, p goals.Progress) (int, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO goal_progress (goal_id, started_at, finished_at, success, message, traceback)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.goal.ID, p.StartedAt, p.FinishedAt, p.Success, p.FailureMessage, p.Traceback); err != nil {
		return 0, fmt.Errorf("postgres: append progress: %w", err)
	}

	var count int
	row := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM goal_progress WHERE goal_id = $1`, t.goal.ID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count progress: %w", err)
	}
	return count, nil
}

func (t *goalTx) SetState(ctx context.Context, st goals.State) error {
	if _, err := t.tx.Exec(ctx, `UPDATE goals SET state = $1, updated_at = $2 WHERE id = $3`,
		st, time.Now().UTC(), t.goal.ID); err != nil {
		return fmt.Errorf("postgres: set state: %w", err)
	}
	t.goal.State = st
	return nil
}

func (t *goalTx) ReplacePreconditions(ctx context.Context, prerequisiteIDs []uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM goal_preconditions WHERE dependent_id = $1`, t.goal.ID); err != nil {
		return fmt.Errorf("postgres: clear preconditions: %w", err)
	}
	for _, prereqID := range prerequisiteIDs {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO goal_preconditions (dependent_id, prerequisite_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, t.goal.ID, prereqID); err != nil {
			return fmt.Errorf("postgres: insert precondition edge: %w", err)
		}
	}
	return nil
}

func (t *goalTx) SetPreconditionDate(ctx context.Context, at *time.Time) error {
	if _, err := t.tx.Exec(ctx, `UPDATE goals SET precondition_date = $1, updated_at = $2 WHERE id = $3`,
		at, time.Now().UTC(), t.goal.ID); err != nil {
		return fmt.Errorf("postgres: set precondition date: %w", err)
	}
	t.goal.PreconditionDate = at
	return nil
}

func (t *goalTx) Prerequisites(ctx context.Context) (goals.PrereqStates, error) {
	return prereqStates(ctx, t.tx, t.goal.ID)
}

// DependentsAwaitingPreconditions implements goals.ResolverStore.
func (t *goalTx) DependentsAwaitingPreconditions(ctx context.Context, prerequisiteID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT gp.dependent_id
		FROM goal_preconditions gp
		JOIN goals g ON g.id = gp.dependent_id
		WHERE gp.prerequisite_id = $1 AND g.state = 'waiting_for_preconditions'
	`, prerequisiteID)
	if err != nil {
		return nil, fmt.Errorf("postgres: dependents of %s: %w", prerequisiteID, err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan dependent id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LoadForTransition implements goals.ResolverStore.
func (t *goalTx) LoadForTransition(ctx context.Context, goalID uuid.UUID) (*goals.Goal, goals.PrereqStates, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, goalID)
	g, err := scanGoal(row)
	if err != nil {
		return nil, goals.PrereqStates{}, fmt.Errorf("postgres: load %s for transition: %w", goalID, err)
	}
	ps, err := prereqStates(ctx, t.tx, goalID)
	if err != nil {
		return nil, goals.PrereqStates{}, err
	}
	return g, ps, nil
}

// ApplyState implements goals.ResolverStore.
func (t *goalTx) ApplyState(ctx context.Context, goalID uuid.UUID, newState goals.State) error {
	if _, err := t.tx.Exec(ctx, `UPDATE goals SET state = $1, updated_at = $2 WHERE id = $3`,
		newState, time.Now().UTC(), goalID); err != nil {
		return fmt.Errorf("postgres: apply state %s to %s: %w", newState, goalID, err)
	}
	return nil
}

func (t *goalTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit goal tx: %w", err)
	}
	return nil
}

func (t *goalTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("postgres: rollback goal tx: %w", err)
	}
	return nil
}
