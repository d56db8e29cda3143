package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

// fakeStore is a minimal in-memory store.Store good enough to drive the
// Dispatcher through one iteration without a real database.
type fakeStore struct {
	goal       *goals.Goal
	prereqs    goals.PrereqStates
	progress   []goals.Progress
	corrupted  bool
	corruptMsg string
	tracking   *fakeTracking
	published  int
	committed  bool
}

func (s *fakeStore) Schedule(ctx context.Context, p store.ScheduleParams) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not implemented")
}

func (s *fakeStore) ClaimReadyWork(ctx context.Context, horizon *time.Duration) (store.ClaimOutcome, error) {
	if s.goal == nil || s.goal.State != goals.StateWaitingForWorker {
		return store.ClaimOutcome{Found: false}, nil
	}
	return store.ClaimOutcome{Found: true, Tx: &fakeTx{s: s}}, nil
}

func (s *fakeStore) MarkCorrupted(ctx context.Context, goalID uuid.UUID, note string) error {
	s.corrupted = true
	s.corruptMsg = note
	s.goal.State = goals.StateCorrupted
	return nil
}

func (s *fakeStore) OpenTracking(ctx context.Context) (store.Tracking, error) {
	return s.tracking, nil
}

func (s *fakeStore) TrackingCounts(ctx context.Context) (map[uuid.UUID]int, error) { return nil, nil }

func (s *fakeStore) MarkCorruptedByKiller(ctx context.Context, goalID uuid.UUID) error { return nil }

func (s *fakeStore) SweepRetention(ctx context.Context, cutoff time.Time) (int, int, error) {
	return 0, 0, nil
}

func (s *fakeStore) GetGoal(ctx context.Context, id uuid.UUID) (*goals.Goal, error) {
	return s.goal, nil
}

func (s *fakeStore) Publish(ctx context.Context) error {
	s.published++
	return nil
}

func (s *fakeStore) TryAdvisoryLock(ctx context.Context, key string) (bool, func(ctx context.Context) error, error) {
	return true, func(ctx context.Context) error { return nil }, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeTracking is a no-op store.Tracking that records Start/Stop calls.
type fakeTracking struct {
	started, stopped int
}

func (t *fakeTracking) Start(ctx context.Context, workerID string, goalID uuid.UUID) error {
	t.started++
	return nil
}

func (t *fakeTracking) Stop(ctx context.Context, workerID string, goalID uuid.UUID) error {
	t.stopped++
	return nil
}

func (t *fakeTracking) Close(ctx context.Context) error { return nil }

// fakeTx implements store.GoalTx directly against fakeStore's single
// goal, with no real transactional isolation — good enough since the
// Dispatcher only ever holds one goalTx at a time in these tests.
type fakeTx struct {
	s          *fakeStore
	rolledBack bool
}

func (t *fakeTx) Goal() *goals.Goal { return t.s.goal }

func (t *fakeTx) AppendProgress(ctx context.Context, p goals.Progress) (int, error) {
	t.s.progress = append(t.s.progress, p)
	return len(t.s.progress), nil
}

func (t *fakeTx) SetState(ctx context.Context, st goals.State) error {
	t.s.goal.State = st
	return nil
}

func (t *fakeTx) ReplacePreconditions(ctx context.Context, prerequisiteIDs []uuid.UUID) error {
	return nil
}

func (t *fakeTx) SetPreconditionDate(ctx context.Context, at *time.Time) error {
	t.s.goal.PreconditionDate = at
	return nil
}

func (t *fakeTx) Prerequisites(ctx context.Context) (goals.PrereqStates, error) {
	return t.s.prereqs, nil
}

func (t *fakeTx) DependentsAwaitingPreconditions(ctx context.Context, prerequisiteID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (t *fakeTx) LoadForTransition(ctx context.Context, goalID uuid.UUID) (*goals.Goal, goals.PrereqStates, error) {
	return t.s.goal, t.s.prereqs, nil
}

func (t *fakeTx) ApplyState(ctx context.Context, goalID uuid.UUID, newState goals.State) error {
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.s.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

func newFixture(handler goals.Handler) (*fakeStore, *Dispatcher) {
	g := &goals.Goal{
		ID:      uuid.New(),
		Handler: "noop",
		State:   goals.StateWaitingForWorker,
	}
	s := &fakeStore{goal: g, tracking: &fakeTracking{}}
	reg := goals.NewRegistry()
	if handler != nil {
		reg.Register("noop", handler)
	}
	tracking, _ := s.OpenTracking(context.Background())
	d := &Dispatcher{
		Store:    s,
		Tracking: tracking,
		Registry: reg,
		Limits:   Limits{MaxProgressCount: 3},
		WorkerID: "w1",
	}
	return s, d
}

func TestOnce_NothingReady(t *testing.T) {
	s, d := newFixture(nil)
	s.goal.State = goals.StateBlocked

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeIdle {
		t.Fatalf("want OutcomeIdle, got %v", out)
	}
}

func TestOnce_AllDoneMarksAchieved(t *testing.T) {
	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return goals.AllDone{}, nil
	})

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if s.goal.State != goals.StateAchieved {
		t.Fatalf("want achieved, got %v", s.goal.State)
	}
	if len(s.progress) != 1 || !s.progress[0].Success {
		t.Fatalf("want one successful progress entry, got %+v", s.progress)
	}
	if !s.committed {
		t.Fatal("want commit")
	}
	if s.published != 1 {
		t.Fatalf("want one publish, got %d", s.published)
	}
	if s.tracking.started != 1 || s.tracking.stopped != 1 {
		t.Fatalf("want tracking start+stop once each, got %d/%d", s.tracking.started, s.tracking.stopped)
	}
}

func TestOnce_RetryMeLaterKeepsWaiting(t *testing.T) {
	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return goals.RetryMeLater{Message: "not yet"}, nil
	})

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if s.goal.State != goals.StateWaitingForWorker {
		t.Fatalf("want still waiting_for_worker, got %v", s.goal.State)
	}
	if len(s.progress) != 1 {
		t.Fatalf("want one progress entry, got %d", len(s.progress))
	}
}

func TestOnce_RecoverableFailureAppendsProgress(t *testing.T) {
	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return nil, errors.New("transient")
	})

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if s.goal.State != goals.StateWaitingForWorker {
		t.Fatalf("want still waiting_for_worker, got %v", s.goal.State)
	}
	if len(s.progress) != 1 || s.progress[0].Success {
		t.Fatalf("want one failed progress entry, got %+v", s.progress)
	}
}

func TestOnce_ProgressCapForcesGivenUp(t *testing.T) {
	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return nil, errors.New("transient")
	})
	s.progress = []goals.Progress{{}, {}} // two prior failures, cap is 3

	out, err := d.Once(context.Background(), nil)
	if !errors.Is(err, goals.ErrProgressCapExceeded) {
		t.Fatalf("want ErrProgressCapExceeded, got %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if s.goal.State != goals.StateGivenUp {
		t.Fatalf("want given_up at cap, got %v", s.goal.State)
	}
	if !s.committed {
		t.Fatal("want the capped iteration to still commit")
	}
}

func TestOnce_UnknownHandlerMarksCorrupted(t *testing.T) {
	s, d := newFixture(nil)
	d.Registry = goals.NewRegistry() // no handlers registered at all

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if !s.corrupted {
		t.Fatal("want corrupted")
	}
	if s.goal.State != goals.StateCorrupted {
		t.Fatalf("want corrupted state, got %v", s.goal.State)
	}
}

func TestOnce_NonRecoverableFailureMarksCorrupted(t *testing.T) {
	wantErr := errors.New("connection refused")
	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		return nil, wantErr
	})
	d.Classify = func(err error) bool { return !errors.Is(err, wantErr) }

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if !s.corrupted {
		t.Fatal("want corrupted")
	}
	if len(s.progress) != 0 {
		t.Fatalf("want no progress entry recorded on the main path, got %d", len(s.progress))
	}
}

func TestOnce_HandlerTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	s, d := newFixture(func(ctx context.Context, g *goals.Goal) (goals.Result, error) {
		<-ctx.Done()
		<-block
		return goals.AllDone{}, nil
	})
	d.Limits.TimeLimit = 10 * time.Millisecond

	out, err := d.Once(context.Background(), nil)
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if out != OutcomeProgressed {
		t.Fatalf("want OutcomeProgressed, got %v", out)
	}
	if len(s.progress) != 1 || s.progress[0].Success {
		t.Fatalf("want one failed progress entry from the timeout, got %+v", s.progress)
	}
	if s.goal.State != goals.StateWaitingForWorker {
		t.Fatalf("want still waiting_for_worker after recoverable timeout, got %v", s.goal.State)
	}
}
