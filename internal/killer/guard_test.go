package killer

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
	counts       map[uuid.UUID]int
	retiredCalls []uuid.UUID
	failOn       uuid.UUID
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
	return s.counts, nil
}
func (s *fakeStore) MarkCorruptedByKiller(ctx context.Context, goalID uuid.UUID) error {
	if goalID == s.failOn {
		return errors.New("boom")
	}
	s.retiredCalls = append(s.retiredCalls, goalID)
	return nil
}
func (s *fakeStore) SweepRetention(ctx context.Context, cutoff time.Time) (int, int, error) {
	return 0, 0, nil
}
func (s *fakeStore) GetGoal(ctx context.Context, id uuid.UUID) (*goals.Goal, error) { return nil, nil }
func (s *fakeStore) Publish(ctx context.Context) error                             { return nil }
func (s *fakeStore) TryAdvisoryLock(ctx context.Context, key string) (bool, func(ctx context.Context) error, error) {
	return true, func(ctx context.Context) error { return nil }, nil
}
func (s *fakeStore) Close() error { return nil }

func TestScan_RetiresGoalsAtThreshold(t *testing.T) {
	stuck := uuid.New()
	fine := uuid.New()
	s := &fakeStore{counts: map[uuid.UUID]int{stuck: 3, fine: 1}}
	g := &Guard{Store: s, Threshold: 3}

	retired, err := g.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(retired) != 1 || retired[0] != stuck {
		t.Fatalf("want only %s retired, got %v", stuck, retired)
	}
}

func TestScan_DefaultThreshold(t *testing.T) {
	stuck := uuid.New()
	s := &fakeStore{counts: map[uuid.UUID]int{stuck: DefaultThreshold}}
	g := &Guard{Store: s}

	retired, err := g.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(retired) != 1 {
		t.Fatalf("want one goal retired under default threshold, got %d", len(retired))
	}
}

func TestScan_PropagatesStoreError(t *testing.T) {
	stuck := uuid.New()
	s := &fakeStore{counts: map[uuid.UUID]int{stuck: 5}, failOn: stuck}
	g := &Guard{Store: s, Threshold: 3}

	_, err := g.Scan(context.Background())
	if err == nil {
		t.Fatal("want error")
	}
}
