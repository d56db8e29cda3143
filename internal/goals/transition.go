package goals

import "time"

// PrereqStates summarizes the states of a goal's direct prerequisites,
// as needed by next_state. Callers build this from whatever the Store
// returns for a goal's PreconditionEdge set; the engine itself never
// touches the database.
type PrereqStates struct {
	// Total is the number of direct prerequisites.
	Total int
	// Achieved is how many of them are StateAchieved.
	Achieved int
	// Failed is how many are in a failed terminal state: GIVEN_UP,
	// CORRUPTED, or NOT_GOING_TO_HAPPEN_SOON.
	Failed int
}

// AllAchieved reports whether every prerequisite is ACHIEVED.
func (p PrereqStates) AllAchieved() bool {
	return p.Total > 0 && p.Achieved == p.Total
}

// AnyAchieved reports whether at least one prerequisite is ACHIEVED.
func (p PrereqStates) AnyAchieved() bool {
	return p.Achieved > 0
}

// HasFailure reports whether at least one prerequisite is in a failed
// terminal state.
func (p PrereqStates) HasFailure() bool {
	return p.Failed > 0
}

// NextState computes the state a goal should be in given its current
// row and the states of its direct prerequisites. It is
// a pure function: it never writes anything. Writers (scheduler,
// dispatcher, resolver) call it and then apply the result within their
// own transaction.
//
// Priority order:
//  1. BLOCKED or any terminal state is unchanged.
//  2. A failed prerequisite with PreconditionFailuresAllowed=false
//     propagates as NOT_GOING_TO_HAPPEN_SOON.
//  3. Prerequisite satisfaction per mode (ALL/ANY); unsatisfied ->
//     WAITING_FOR_PRECONDITIONS.
//  4. A future PreconditionDate -> WAITING_FOR_DATE.
//  5. Otherwise -> WAITING_FOR_WORKER.
func NextState(g *Goal, prereqs PrereqStates, now time.Time) State {
	if g.State == StateBlocked || g.State.Terminal() {
		return g.State
	}

	if prereqs.HasFailure() && !g.PreconditionFailuresAllowed {
		return StateNotGoingToHappenSoon
	}

	satisfied := false
	switch g.PreconditionsMode {
	case ModeAny:
		satisfied = prereqs.Total == 0 || prereqs.AnyAchieved()
	default: // ModeAll
		satisfied = prereqs.Total == 0 || prereqs.AllAchieved()
	}

	if !satisfied {
		return StateWaitingForPreconditions
	}

	if g.PreconditionDate != nil && g.PreconditionDate.After(now) {
		return StateWaitingForDate
	}

	return StateWaitingForWorker
}
