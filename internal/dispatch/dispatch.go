// Package dispatch implements one iteration of the engine's core loop:
// claim a ready goal under a row lock, invoke its handler, interpret
// the result, and commit.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

// Outcome is the result of one Dispatcher.Once call.
type Outcome string

const (
	// OutcomeIdle means the claim query found nothing ready.
	OutcomeIdle Outcome = "idle"
	// OutcomeProgressed means a goal was claimed and handled, whatever
	// the handler's result — success, retry, or failure.
	OutcomeProgressed Outcome = "progressed"
)

// Limits bounds a single handler invocation.
type Limits struct {
	// MaxProgressCount is GOALS_MAX_PROGRESS_COUNT: a goal whose
	// Progress log reaches this many entries is forced GIVEN_UP.
	MaxProgressCount int
	// TimeLimit is GOALS_TIME_LIMIT_SECONDS; zero means unbounded. A
	// handler that exceeds it is treated as a recoverable failure.
	TimeLimit time.Duration
}

// Classify reports whether err, returned from either a handler
// invocation or a Store call, leaves the in-flight transaction usable
// to record a failure Progress (true) or not (false, a connection or
// transaction-level failure). The concrete Store implementation
// supplies this — e.g. postgres.Recoverable — since the distinction is
// inherently database-specific.
type Classify func(err error) bool

// Dispatcher runs one claim-invoke-commit cycle at a time for a single
// logical worker. Callers (the worker loops) call Once repeatedly.
type Dispatcher struct {
	Store    store.Store
	Tracking store.Tracking
	Registry *goals.Registry
	Limits   Limits
	WorkerID string
	Classify Classify
	// Now supplies the current time; defaults to time.Now when nil so
	// tests can inject a fixed clock.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// atCap reports whether count has reached the configured Progress cap.
// MaxProgressCount <= 0 means unlimited.
func (d *Dispatcher) atCap(count int) bool {
	return d.Limits.MaxProgressCount > 0 && count >= d.Limits.MaxProgressCount
}

// Once performs exactly one dispatch iteration. horizon, if
// non-nil, restricts the claim to goals whose deadline falls within
// that duration from now; goals with a NULL deadline are excluded from
// a horizon-bounded claim.
//
// Once can return OutcomeProgressed alongside a non-nil error wrapping
// goals.ErrProgressCapExceeded: the iteration completed and committed
// normally, but the goal's Progress count reached the configured cap
// and it was forced GIVEN_UP. Callers should check for this with
// errors.Is rather than treating every non-nil error the same way.
func (d *Dispatcher) Once(ctx context.Context, horizon *time.Duration) (Outcome, error) {
	outcome, err := d.Store.ClaimReadyWork(ctx, horizon)
	if err != nil {
		return "", fmt.Errorf("dispatch: claim: %w", err)
	}
	if !outcome.Found {
		return OutcomeIdle, nil
	}

	tx := outcome.Tx
	g := tx.Goal()

	handler, err := d.Registry.Lookup(g.Handler)
	if err != nil {
		_ = tx.Rollback(ctx)
		if markErr := d.Store.MarkCorrupted(ctx, g.ID, err.Error()); markErr != nil {
			return "", fmt.Errorf("dispatch: mark corrupted for unknown handler: %w", markErr)
		}
		return OutcomeProgressed, nil
	}

	if err := d.Tracking.Start(ctx, d.WorkerID, g.ID); err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("dispatch: track start: %w", err)
	}

	started := d.now()
	result, handlerErr := d.invoke(ctx, handler, g)
	finished := d.now()

	if handlerErr != nil {
		return d.handleFailure(ctx, tx, g, started, finished, handlerErr)
	}

	return d.handleResult(ctx, tx, g, started, finished, result)
}

// invoke runs the handler under the configured wall-time limit. Go has
// no primitive to forcibly preempt a running goroutine; the context
// deadline is the idiomatic stand-in — a well-behaved handler observes
// ctx.Done(), and a misbehaving one simply leaks its goroutine while
// the dispatcher moves on and treats the goal as a recoverable
// failure.
func (d *Dispatcher) invoke(ctx context.Context, h goals.Handler, g *goals.Goal) (goals.Result, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if d.Limits.TimeLimit > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.Limits.TimeLimit)
		defer cancel()
	}

	type outcome struct {
		result goals.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("dispatch: handler panic: %v", r)}
			}
		}()
		res, err := h(callCtx, g)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("dispatch: handler exceeded time limit: %w", callCtx.Err())
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, tx store.GoalTx, g *goals.Goal, started, finished time.Time, handlerErr error) (Outcome, error) {
	recoverable := true
	if d.Classify != nil {
		recoverable = d.Classify(handlerErr)
	}

	if !recoverable {
		_ = tx.Rollback(ctx)
		if err := d.Store.MarkCorrupted(ctx, g.ID, handlerErr.Error()); err != nil {
			return "", fmt.Errorf("dispatch: mark corrupted (non-recoverable): %w", err)
		}
		if err := d.Tracking.Stop(ctx, d.WorkerID, g.ID); err != nil {
			return "", fmt.Errorf("dispatch: track stop after corruption: %w", err)
		}
		return OutcomeProgressed, nil
	}

	count, err := tx.AppendProgress(ctx, goals.Progress{
		GoalID: g.ID, StartedAt: started, FinishedAt: finished,
		Success: false, FailureMessage: handlerErr.Error(),
	})
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("dispatch: append failure progress: %w", err)
	}

	next := goals.StateWaitingForWorker
	capped := d.atCap(count)
	if capped {
		next = goals.StateGivenUp
	}
	if err := tx.SetState(ctx, next); err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("dispatch: set state after failure: %w", err)
	}

	outcome, err := d.finish(ctx, tx, g.ID)
	if err != nil {
		return outcome, err
	}
	if capped {
		return outcome, fmt.Errorf("dispatch: goal %s: %w", g.ID, goals.ErrProgressCapExceeded)
	}
	return outcome, nil
}

func (d *Dispatcher) handleResult(ctx context.Context, tx store.GoalTx, g *goals.Goal, started, finished time.Time, result goals.Result) (Outcome, error) {
	var (
		count int
		err   error
	)

	switch r := result.(type) {
	case goals.AllDone:
		if err = tx.SetState(ctx, goals.StateAchieved); err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: mark achieved: %w", err)
		}
		count, err = tx.AppendProgress(ctx, goals.Progress{
			GoalID: g.ID, StartedAt: started, FinishedAt: finished, Success: true,
		})
		if err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: append success progress: %w", err)
		}

		resolver := &goals.Resolver{Store: tx, Now: d.now}
		if _, err := resolver.Cascade(ctx, g.ID); err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: resolver cascade: %w", err)
		}

	case goals.RetryMeLater:
		if r.PreconditionGoals != nil {
			if err = tx.ReplacePreconditions(ctx, r.PreconditionGoals); err != nil {
				_ = tx.Rollback(ctx)
				return "", fmt.Errorf("dispatch: replace preconditions: %w", err)
			}
		}
		if r.PreconditionDate != nil {
			if err = tx.SetPreconditionDate(ctx, r.PreconditionDate); err != nil {
				_ = tx.Rollback(ctx)
				return "", fmt.Errorf("dispatch: set precondition date: %w", err)
			}
		}

		count, err = tx.AppendProgress(ctx, goals.Progress{
			GoalID: g.ID, StartedAt: started, FinishedAt: finished, Success: true, FailureMessage: r.Message,
		})
		if err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: append retry progress: %w", err)
		}

		prereqs, err := tx.Prerequisites(ctx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: load prerequisites: %w", err)
		}
		next := goals.NextState(tx.Goal(), prereqs, d.now())
		if err := tx.SetState(ctx, next); err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: set retry state: %w", err)
		}

	default:
		_ = tx.Rollback(ctx)
		return "", errors.New("dispatch: handler returned an unrecognized Result type")
	}

	// Progress-cap enforcement applies uniformly across both branches;
	// it is a no-op whenever the state above is already terminal.
	capped := d.atCap(count) && !tx.Goal().State.Terminal()
	if capped {
		if err := tx.SetState(ctx, goals.StateGivenUp); err != nil {
			_ = tx.Rollback(ctx)
			return "", fmt.Errorf("dispatch: force given-up at cap: %w", err)
		}
	}

	outcome, err := d.finish(ctx, tx, g.ID)
	if err != nil {
		return outcome, err
	}
	if capped {
		return outcome, fmt.Errorf("dispatch: goal %s: %w", g.ID, goals.ErrProgressCapExceeded)
	}
	return outcome, nil
}

// finish deletes the tracking row before commit, commits, and
// publishes one notification.
func (d *Dispatcher) finish(ctx context.Context, tx store.GoalTx, goalID uuid.UUID) (Outcome, error) {
	if err := d.Tracking.Stop(ctx, d.WorkerID, goalID); err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("dispatch: track stop: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("dispatch: commit: %w", err)
	}
	if err := d.Store.Publish(ctx); err != nil {
		return "", fmt.Errorf("dispatch: publish: %w", err)
	}
	return OutcomeProgressed, nil
}
