package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/dispatch"
	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

func TestDispatcher_AchievingAGoalCascadesToItsDependent(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	prereq, err := st.Schedule(ctx, store.ScheduleParams{Handler: "finish"})
	if err != nil {
		t.Fatalf("Schedule prereq: %v", err)
	}
	dependent, err := st.Schedule(ctx, store.ScheduleParams{
		Handler:           "finish",
		PreconditionGoals: []uuid.UUID{prereq},
	})
	if err != nil {
		t.Fatalf("Schedule dependent: %v", err)
	}

	registry := goals.NewRegistry()
	registry.Register("finish", func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return goals.AllDone{}, nil
	})

	tracking, err := st.OpenTracking(ctx)
	if err != nil {
		t.Fatalf("OpenTracking: %v", err)
	}
	defer func() { _ = tracking.Close(ctx) }()

	d := &dispatch.Dispatcher{
		Store:    st,
		Tracking: tracking,
		Registry: registry,
		WorkerID: "storetest-worker",
	}

	outcome, err := d.Once(ctx, nil)
	if err != nil {
		t.Fatalf("Once (prereq): %v", err)
	}
	if outcome != dispatch.OutcomeProgressed {
		t.Fatalf("want progressed, got %v", outcome)
	}

	g, err := st.GetGoal(ctx, prereq)
	if err != nil {
		t.Fatalf("GetGoal prereq: %v", err)
	}
	if g.State != goals.StateAchieved {
		t.Fatalf("want prereq achieved, got %v", g.State)
	}

	dep, err := st.GetGoal(ctx, dependent)
	if err != nil {
		t.Fatalf("GetGoal dependent: %v", err)
	}
	if dep.State != goals.StateWaitingForWorker {
		t.Fatalf("want dependent waiting_for_worker after cascade, got %v", dep.State)
	}

	outcome, err = d.Once(ctx, nil)
	if err != nil {
		t.Fatalf("Once (dependent): %v", err)
	}
	if outcome != dispatch.OutcomeProgressed {
		t.Fatalf("want progressed, got %v", outcome)
	}

	dep, err = st.GetGoal(ctx, dependent)
	if err != nil {
		t.Fatalf("GetGoal dependent: %v", err)
	}
	if dep.State != goals.StateAchieved {
		t.Fatalf("want dependent achieved, got %v", dep.State)
	}
}
