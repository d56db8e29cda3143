// Package retention runs the periodic garbage-collection pass over
// ACHIEVED goals: a goal that has sat ACHIEVED longer than
// its retention window is deleted, unless some other non-terminal goal
// still lists it as a prerequisite.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EE/goals/internal/store"
)

// Sweeper periodically deletes retained ACHIEVED goals.
type Sweeper struct {
	Store  store.Store
	Window time.Duration
	Log    *slog.Logger
	// Now supplies the current time; defaults to time.Now when nil.
	Now func() time.Time
	// WindowFunc, if set, is consulted instead of Window on every
	// Once, so a caller backed by a live-reloaded config can change
	// the retention window between sweeps without restarting it.
	WindowFunc func() time.Duration
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) window() time.Duration {
	if s.WindowFunc != nil {
		return s.WindowFunc()
	}
	return s.Window
}

func (s *Sweeper) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Once runs a single sweep pass. A window of zero or less disables
// retention: nothing is swept.
func (s *Sweeper) Once(ctx context.Context) (deleted, skipped int, err error) {
	window := s.window()
	if window <= 0 {
		return 0, 0, nil
	}
	cutoff := s.now().Add(-window)
	deleted, skipped, err = s.Store.SweepRetention(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("retention: sweep: %w", err)
	}
	if deleted > 0 || skipped > 0 {
		s.log().Info("retention sweep", "deleted", deleted, "skipped", skipped, "cutoff", cutoff)
	}
	return deleted, skipped, nil
}

// Run blocks, sweeping every interval until ctx is canceled. Workers
// that own a Sweeper typically call this in its own goroutine.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.Once(ctx); err != nil {
				s.log().Error("retention sweep failed", "error", err)
			}
		}
	}
}
