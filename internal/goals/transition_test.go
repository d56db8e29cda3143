package goals

import (
	"testing"
	"time"
)

func baseGoal() *Goal {
	return &Goal{
		ID:                          NewGoalID(),
		State:                       StateWaitingForPreconditions,
		PreconditionsMode:           ModeAll,
		PreconditionFailuresAllowed: true,
	}
}

func TestNextState_TerminalAndBlockedAreSticky(t *testing.T) {
	now := time.Now()
	for _, st := range []State{StateBlocked, StateAchieved, StateGivenUp, StateCorrupted, StateNotGoingToHappenSoon} {
		g := baseGoal()
		g.State = st
		if got := NextState(g, PrereqStates{}, now); got != st {
			t.Errorf("state %s: expected sticky, got %s", st, got)
		}
	}
}

func TestNextState_FailurePropagatesWhenNotAllowed(t *testing.T) {
	g := baseGoal()
	g.PreconditionFailuresAllowed = false
	prereqs := PrereqStates{Total: 2, Achieved: 0, Failed: 1}
	if got := NextState(g, prereqs, time.Now()); got != StateNotGoingToHappenSoon {
		t.Errorf("expected NOT_GOING_TO_HAPPEN_SOON, got %s", got)
	}
}

func TestNextState_FailureToleratedWhenAllowed(t *testing.T) {
	g := baseGoal()
	g.PreconditionFailuresAllowed = true
	prereqs := PrereqStates{Total: 2, Achieved: 1, Failed: 1}
	// ALL mode: one failed, one achieved -> still not all achieved -> waiting
	if got := NextState(g, prereqs, time.Now()); got != StateWaitingForPreconditions {
		t.Errorf("expected WAITING_FOR_PRECONDITIONS, got %s", got)
	}
}

func TestNextState_AllMode(t *testing.T) {
	g := baseGoal()
	g.PreconditionsMode = ModeAll

	if got := NextState(g, PrereqStates{Total: 2, Achieved: 1}, time.Now()); got != StateWaitingForPreconditions {
		t.Errorf("partial ALL: expected WAITING_FOR_PRECONDITIONS, got %s", got)
	}
	if got := NextState(g, PrereqStates{Total: 2, Achieved: 2}, time.Now()); got != StateWaitingForWorker {
		t.Errorf("complete ALL: expected WAITING_FOR_WORKER, got %s", got)
	}
}

func TestNextState_AnyMode(t *testing.T) {
	g := baseGoal()
	g.PreconditionsMode = ModeAny

	if got := NextState(g, PrereqStates{Total: 2, Achieved: 0}, time.Now()); got != StateWaitingForPreconditions {
		t.Errorf("none achieved ANY: expected WAITING_FOR_PRECONDITIONS, got %s", got)
	}
	if got := NextState(g, PrereqStates{Total: 2, Achieved: 1}, time.Now()); got != StateWaitingForWorker {
		t.Errorf("one achieved ANY: expected WAITING_FOR_WORKER, got %s", got)
	}
}

func TestNextState_NoPrereqsGoesToDateOrWorker(t *testing.T) {
	g := baseGoal()
	g.PreconditionsMode = ModeAll

	now := time.Now()
	future := now.Add(time.Hour)
	g.PreconditionDate = &future
	if got := NextState(g, PrereqStates{}, now); got != StateWaitingForDate {
		t.Errorf("future precondition_date: expected WAITING_FOR_DATE, got %s", got)
	}

	past := now.Add(-time.Hour)
	g.PreconditionDate = &past
	if got := NextState(g, PrereqStates{}, now); got != StateWaitingForWorker {
		t.Errorf("past precondition_date: expected WAITING_FOR_WORKER, got %s", got)
	}

	g.PreconditionDate = nil
	if got := NextState(g, PrereqStates{}, now); got != StateWaitingForWorker {
		t.Errorf("no precondition_date: expected WAITING_FOR_WORKER, got %s", got)
	}
}
