package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

type fakeStore struct {
	lastCutoff       time.Time
	deleted, skipped int
	err              error
}

func (s *fakeStore) Schedule(ctx context.Context, p store.ScheduleParams) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (s *fakeStore) ClaimReadyWork(ctx context.Context, horizon *time.Duration) (store.ClaimOutcome, error) {
	return store.ClaimOutcome{}, nil
}
func (s *fakeStore) MarkCorrupted(ctx context.Context, goalID uuid.UUID, note string) error {
	return nil
}
func (s *fakeStore) OpenTracking(ctx context.Context) (store.Tracking, error) { return nil, nil }
func (s *fakeStore) TrackingCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	return nil, nil
}
func (s *fakeStore) MarkCorruptedByKiller(ctx context.Context, goalID uuid.UUID) error { return nil }
func (s *fakeStore) SweepRetention(ctx context.Context, cutoff time.Time) (int, int, error) {
	s.lastCutoff = cutoff
	return s.deleted, s.skipped, s.err
}
func (s *fakeStore) GetGoal(ctx context.Context, id uuid.UUID) (*goals.Goal, error) { return nil, nil }
func (s *fakeStore) Publish(ctx context.Context) error                             { return nil }
func (s *fakeStore) TryAdvisoryLock(ctx context.Context, key string) (bool, func(ctx context.Context) error, error) {
	return true, func(ctx context.Context) error { return nil }, nil
}
func (s *fakeStore) Close() error { return nil }

func TestOnce_ComputesCutoffFromWindow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &fakeStore{deleted: 2, skipped: 1}
	sw := &Sweeper{Store: s, Window: 24 * time.Hour, Now: func() time.Time { return fixed }}

	deleted, skipped, err := sw.Once(context.Background())
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if deleted != 2 || skipped != 1 {
		t.Fatalf("want 2/1, got %d/%d", deleted, skipped)
	}
	want := fixed.Add(-24 * time.Hour)
	if !s.lastCutoff.Equal(want) {
		t.Fatalf("want cutoff %v, got %v", want, s.lastCutoff)
	}
}

func TestOnce_PropagatesError(t *testing.T) {
	s := &fakeStore{err: errors.New("boom")}
	sw := &Sweeper{Store: s, Window: time.Hour}

	if _, _, err := sw.Once(context.Background()); err == nil {
		t.Fatal("want error")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := &fakeStore{}
	sw := &Sweeper{Store: s, Window: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sw.Run(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
