package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

func achieve(t *testing.T, ctx context.Context, st interface {
	ClaimReadyWork(ctx context.Context, horizon *time.Duration) (store.ClaimOutcome, error)
}, id uuid.UUID) {
	t.Helper()
	outcome, err := st.ClaimReadyWork(ctx, nil)
	if err != nil {
		t.Fatalf("ClaimReadyWork: %v", err)
	}
	if !outcome.Found || outcome.Tx.Goal().ID != id {
		t.Fatalf("want to claim %s", id)
	}
	if err := outcome.Tx.SetState(ctx, goals.StateAchieved); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := outcome.Tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSweepRetention_DeletesUnreferencedAchievedGoals(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.Schedule(ctx, store.ScheduleParams{Handler: "noop"})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	achieve(t, ctx, st, id)

	future := time.Now().UTC().Add(time.Hour)
	deleted, skipped, err := st.SweepRetention(ctx, future)
	if err != nil {
		t.Fatalf("SweepRetention: %v", err)
	}
	if deleted != 1 || skipped != 0 {
		t.Fatalf("want 1 deleted, 0 skipped, got %d/%d", deleted, skipped)
	}

	if _, err := st.GetGoal(ctx, id); err != goals.ErrGoalNotFound {
		t.Fatalf("want ErrGoalNotFound after sweep, got %v", err)
	}
}

func TestSweepRetention_SkipsGoalsStillReferenced(t *testing.T) {
	st, cleanup := Open(t)
	defer cleanup()
	ctx := context.Background()

	prereq, err := st.Schedule(ctx, store.ScheduleParams{Handler: "noop"})
	if err != nil {
		t.Fatalf("Schedule prereq: %v", err)
	}
	achieve(t, ctx, st, prereq)

	// dependent is scheduled after prereq is achieved, so it starts in
	// waiting_for_worker: still a non-terminal referent.
	if _, err := st.Schedule(ctx, store.ScheduleParams{
		Handler:           "noop",
		PreconditionGoals: []uuid.UUID{prereq},
	}); err != nil {
		t.Fatalf("Schedule dependent: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	deleted, skipped, err := st.SweepRetention(ctx, future)
	if err != nil {
		t.Fatalf("SweepRetention: %v", err)
	}
	if deleted != 0 || skipped != 1 {
		t.Fatalf("want 0 deleted, 1 skipped, got %d/%d", deleted, skipped)
	}

	if _, err := st.GetGoal(ctx, prereq); err != nil {
		t.Fatalf("want prereq to survive sweep, got %v", err)
	}
}
