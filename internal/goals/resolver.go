package goals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolverStore is the narrow slice of storage the Resolver needs. A
// concrete Store implementation (internal/store/postgres) satisfies
// this from within the same transaction that set a goal terminal, so
// observers either see the full cascade or none.
type ResolverStore interface {
	// DependentsAwaitingPreconditions returns the IDs of goals Y such
	// that (Y, prerequisiteID) is a PreconditionEdge and Y.State is
	// currently WAITING_FOR_PRECONDITIONS. This is the only query that
	// feeds the cascade, which is what makes the Resolver the sole way
	// a goal leaves that state.
	DependentsAwaitingPreconditions(ctx context.Context, prerequisiteID uuid.UUID) ([]uuid.UUID, error)

	// LoadForTransition loads a dependent goal and its own prerequisite
	// summary, ready to feed into NextState.
	LoadForTransition(ctx context.Context, goalID uuid.UUID) (*Goal, PrereqStates, error)

	// ApplyState writes the dependent's recomputed state.
	ApplyState(ctx context.Context, goalID uuid.UUID, newState State) error
}

// Resolver propagates achievement (or any terminal transition) outward
// through the dynamic PreconditionEdge graph. It is the only component
// that moves a goal out of WAITING_FOR_PRECONDITIONS.
type Resolver struct {
	Store ResolverStore
	// Now supplies the current time; defaults to time.Now when nil so
	// tests can inject a fixed clock.
	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Cascade re-evaluates every WAITING_FOR_PRECONDITIONS dependent of
// fromGoalID, transitively: if recomputing a dependent's state lands it
// in another terminal state, that dependent's own dependents are
// re-evaluated in turn within the same call (and so within the same
// caller transaction). It returns the IDs of goals that transitioned
// into WAITING_FOR_WORKER. Cascade itself publishes nothing; the
// dispatcher sends a single notification after its transaction commits.
func (r *Resolver) Cascade(ctx context.Context, fromGoalID uuid.UUID) ([]uuid.UUID, error) {
	var readyToDispatch []uuid.UUID
	seen := map[uuid.UUID]bool{fromGoalID: true}
	queue := []uuid.UUID{fromGoalID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		dependents, err := r.Store.DependentsAwaitingPreconditions(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("resolver: load dependents of %s: %w", cur, err)
		}

		for _, depID := range dependents {
			if seen[depID] {
				continue
			}
			seen[depID] = true

			g, prereqs, err := r.Store.LoadForTransition(ctx, depID)
			if err != nil {
				return nil, fmt.Errorf("resolver: load %s for transition: %w", depID, err)
			}

			next := NextState(g, prereqs, r.now())
			if next == g.State {
				continue
			}

			if err := r.Store.ApplyState(ctx, depID, next); err != nil {
				return nil, fmt.Errorf("resolver: apply state %s to %s: %w", next, depID, err)
			}

			if next == StateWaitingForWorker {
				readyToDispatch = append(readyToDispatch, depID)
			}
			if next.Terminal() {
				queue = append(queue, depID)
			}
		}
	}

	return readyToDispatch, nil
}
