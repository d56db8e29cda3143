package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

func TestSchedule_NoPreconditionsIsImmediatelyDispatchable(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.Schedule(ctx, store.ScheduleParams{Handler: "noop"})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	g, err := st.GetGoal(ctx, id)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.State != goals.StateWaitingForWorker {
		t.Fatalf("want waiting_for_worker, got %v", g.State)
	}
}

func TestSchedule_WithPreconditionsWaits(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	prereq, err := st.Schedule(ctx, store.ScheduleParams{Handler: "noop"})
	if err != nil {
		t.Fatalf("Schedule prereq: %v", err)
	}

	dependent, err := st.Schedule(ctx, store.ScheduleParams{
		Handler:           "noop",
		PreconditionGoals: []uuid.UUID{prereq},
	})
	if err != nil {
		t.Fatalf("Schedule dependent: %v", err)
	}

	g, err := st.GetGoal(ctx, dependent)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.State != goals.StateWaitingForPreconditions {
		t.Fatalf("want waiting_for_preconditions, got %v", g.State)
	}
}

func TestSchedule_Blocked(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.Schedule(ctx, store.ScheduleParams{Handler: "noop", Blocked: true})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	g, err := st.GetGoal(ctx, id)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.State != goals.StateBlocked {
		t.Fatalf("want blocked, got %v", g.State)
	}
}
