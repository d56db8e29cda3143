// Package killer implements the Killer-Task Guard: a
// worker that died mid-handler leaves its WorkerTracking row behind,
// since that row is written on a dedicated autocommit connection and
// only deleted right before the dispatcher's own transaction commits.
// The guard treats a goal whose tracking row has survived across K
// distinct worker attempts as permanently stuck and marks it CORRUPTED.
package killer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/store"
)

// DefaultThreshold is K, the number of distinct crashed attempts a goal
// must accumulate in worker_tracking before the guard gives up on it.
const DefaultThreshold = 3

// Guard scans the tracking table and retires goals that have crossed
// Threshold.
type Guard struct {
	Store     store.Store
	Threshold int
	Log       *slog.Logger

	// ThresholdFunc, if set, is consulted instead of Threshold on every
	// Scan, so a caller backed by a live-reloaded config can change K
	// between scans without restarting the guard.
	ThresholdFunc func() int
}

func (g *Guard) threshold() int {
	if g.ThresholdFunc != nil {
		if t := g.ThresholdFunc(); t > 0 {
			return t
		}
	}
	if g.Threshold <= 0 {
		return DefaultThreshold
	}
	return g.Threshold
}

func (g *Guard) log() *slog.Logger {
	if g.Log == nil {
		return slog.Default()
	}
	return g.Log
}

// Scan runs one pass: every goal_id whose distinct-started_at count in
// worker_tracking is >= the threshold is marked CORRUPTED. It returns
// the IDs it retired.
func (g *Guard) Scan(ctx context.Context) ([]uuid.UUID, error) {
	counts, err := g.Store.TrackingCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("killer: tracking counts: %w", err)
	}

	var retired []uuid.UUID
	for goalID, count := range counts {
		if count < g.threshold() {
			continue
		}
		if err := g.Store.MarkCorruptedByKiller(ctx, goalID); err != nil {
			return retired, fmt.Errorf("killer: mark corrupted for %s: %w", goalID, err)
		}
		g.log().Warn("killer-task guard retired goal",
			"goal_id", goalID, "attempts", count, "threshold", g.threshold())
		retired = append(retired, goalID)
	}
	return retired, nil
}
