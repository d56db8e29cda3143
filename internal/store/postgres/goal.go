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

// Schedule creates a goal and its PreconditionEdge set atomically and
// computes its initial state with goals.NextState.
func (s *Store) Schedule(ctx context.Context, p store.ScheduleParams) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("postgres: begin schedule tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := goals.NewGoalID()
	now := time.Now().UTC()

	mode := p.PreconditionsMode
	if mode == "" {
		mode = goals.ModeAll
	}

	initial := goals.StateWaitingForPreconditions
	if p.Blocked {
		initial = goals.StateBlocked
	}

	g := &goals.Goal{
		ID:                          id,
		Handler:                     p.Handler,
		Args:                        p.Args,
		Kwargs:                      p.Kwargs,
		State:                       initial,
		PreconditionDate:            p.PreconditionDate,
		Deadline:                    p.Deadline,
		PreconditionsMode:           mode,
		PreconditionFailuresAllowed: p.PreconditionFailuresAllowed,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO goals (id, handler, args, kwargs, state, precondition_date, deadline,
			preconditions_mode, precondition_failures_allowed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, g.ID, g.Handler, g.Args, g.Kwargs, g.State, g.PreconditionDate, g.Deadline,
		string(g.PreconditionsMode), g.PreconditionFailuresAllowed, g.CreatedAt, g.UpdatedAt); err != nil {
		return uuid.Nil, fmt.Errorf("postgres: insert goal: %w", err)
	}

	for _, prereqID := range p.PreconditionGoals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO goal_preconditions (dependent_id, prerequisite_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, g.ID, prereqID); err != nil {
			return uuid.Nil, fmt.Errorf("postgres: insert precondition edge: %w", err)
		}
	}

	if !p.Blocked {
		ps, err := prereqStates(ctx, tx, g.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("postgres: load prereq states for new goal: %w", err)
		}
		next := goals.NextState(g, ps, now)
		if next != g.State {
			if _, err := tx.Exec(ctx, `UPDATE goals SET state = $1, updated_at = $2 WHERE id = $3`,
				next, time.Now().UTC(), g.ID); err != nil {
				return uuid.Nil, fmt.Errorf("postgres: set initial state: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("postgres: commit schedule tx: %w", err)
	}

	return g.ID, nil
}

// GetGoal is a convenience read used by tests and administrative
// tooling.
func (s *Store) GetGoal(ctx context.Context, id uuid.UUID) (*goals.Goal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id)
	g, err := scanGoal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, goals.ErrGoalNotFound
		}
		return nil, fmt.Errorf("postgres: get goal %s: %w", id, err)
	}
	return g, nil
}
