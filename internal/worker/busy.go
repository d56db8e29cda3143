package worker

import (
	"context"
	"time"

	"github.com/EE/goals/internal/dispatch"
)

// Busy runs the busy-wait loop: poll, dispatch, sleep PollInterval
// when idle, repeat. workerID must be unique across the
// fleet; horizon, if non-nil, bounds the claim to goals whose deadline
// falls within that duration. Busy returns when ctx is canceled.
func Busy(ctx context.Context, d Deps, workerID string, horizon *time.Duration) error {
	if err := runKillerScan(ctx, d); err != nil {
		return err
	}
	maybeStartSweeper(ctx, d)

	disp, tracking, err := newDispatcher(ctx, d, workerID)
	if err != nil {
		return err
	}
	defer func() { _ = tracking.Close(context.Background()) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := disp.Once(ctx, horizon)
		if err != nil {
			if !logOnceErr(d.log(), workerID, err) {
				sleep(ctx, d.pollInterval())
			}
			continue
		}
		if outcome == dispatch.OutcomeIdle {
			sleep(ctx, d.pollInterval())
		}
	}
}
