package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/EE/goals/internal/goals"
)

// rowQuerier is satisfied by *pgxpool.Pool, pgx.Tx, and *pgx.Conn —
// whatever connection happens to be running a given query.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const goalColumns = `id, handler, args, kwargs, state, precondition_date, deadline,
	preconditions_mode, precondition_failures_allowed, created_at, updated_at`

func scanGoal(row pgx.Row) (*goals.Goal, error) {
	var g goals.Goal
	var mode string
	err := row.Scan(
		&g.ID, &g.Handler, &g.Args, &g.Kwargs, &g.State,
		&g.PreconditionDate, &g.Deadline, &mode,
		&g.PreconditionFailuresAllowed, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.PreconditionsMode = goals.PreconditionsMode(mode)
	return &g, nil
}

// prereqStates computes goals.PrereqStates for goalID by joining
// goal_preconditions to the current state of each prerequisite. It is
// shared by GoalTx.Prerequisites and the Resolver's LoadForTransition.
func prereqStates(ctx context.Context, q rowQuerier, goalID uuid.UUID) (goals.PrereqStates, error) {
	var ps goals.PrereqStates
	row := q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE g2.state = 'achieved'),
			COUNT(*) FILTER (WHERE g2.state IN ('given_up', 'corrupted', 'not_going_to_happen_soon'))
		FROM goal_preconditions gp
		JOIN goals g2 ON g2.id = gp.prerequisite_id
		WHERE gp.dependent_id = $1
	`, goalID)
	if err := row.Scan(&ps.Total, &ps.Achieved, &ps.Failed); err != nil {
		return goals.PrereqStates{}, err
	}
	return ps, nil
}
