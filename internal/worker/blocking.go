package worker

import (
	"context"
	"time"

	"github.com/EE/goals/internal/dispatch"
	"github.com/EE/goals/internal/notify"
)

// Blocking runs the notification-driven loop: poll, dispatch, and when
// idle block on the Notifier rather than sleeping a fixed interval. A
// missed notification is never fatal to correctness; WaitFor falls
// back to its own timeout, after which the loop simply polls again.
func Blocking(ctx context.Context, d Deps, n *notify.Notifier, workerID string) error {
	if err := runKillerScan(ctx, d); err != nil {
		return err
	}
	maybeStartSweeper(ctx, d)

	disp, tracking, err := newDispatcher(ctx, d, workerID)
	if err != nil {
		return err
	}
	defer func() { _ = tracking.Close(context.Background()) }()

	fallback := d.pollInterval()
	if fallback < 5*time.Second {
		fallback = 5 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := disp.Once(ctx, nil)
		if err != nil {
			if !logOnceErr(d.log(), workerID, err) {
				sleep(ctx, d.pollInterval())
			}
			continue
		}
		if outcome == dispatch.OutcomeIdle {
			n.WaitFor(ctx, fallback)
		}
	}
}
