// Package worker implements the three long-running loop variants built
// around the Dispatcher: busy-wait, blocking (notification-
// driven), and threaded (N logical workers per process, each with its
// own deadline-horizon tier).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EE/goals/internal/dispatch"
	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/killer"
	"github.com/EE/goals/internal/retention"
	"github.com/EE/goals/internal/store"
)

// Deps are the collaborators every loop variant shares.
type Deps struct {
	Store    store.Store
	Registry *goals.Registry
	Limits   dispatch.Limits
	Classify dispatch.Classify
	Log      *slog.Logger

	// PollInterval is how long the busy loop sleeps after an idle
	// iteration. Default 1s.
	PollInterval time.Duration

	// RetentionWindow, if > 0, starts the retention sweeper alongside
	// the loop. 0 disables it.
	RetentionWindow time.Duration
	SweepInterval   time.Duration // default 5m
	// WindowFunc, if set, lets the sweeper re-read the retention
	// window on every tick instead of using the fixed RetentionWindow
	// value it started with.
	WindowFunc func() time.Duration

	// KillerThreshold is K for the startup Killer-Task Guard scan.
	// 0 uses killer.DefaultThreshold.
	KillerThreshold int
	// ThresholdFunc, if set, lets the guard re-read K at scan time
	// instead of using the fixed KillerThreshold value.
	ThresholdFunc func() int
}

func (d Deps) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

func (d Deps) pollInterval() time.Duration {
	if d.PollInterval <= 0 {
		return time.Second
	}
	return d.PollInterval
}

func (d Deps) sweepInterval() time.Duration {
	if d.SweepInterval <= 0 {
		return 5 * time.Minute
	}
	return d.SweepInterval
}

// newDispatcher opens the dedicated tracking connection this worker
// needs and builds its Dispatcher. The returned Tracking must be
// closed by the caller when the loop exits.
func newDispatcher(ctx context.Context, d Deps, workerID string) (*dispatch.Dispatcher, store.Tracking, error) {
	tracking, err := d.Store.OpenTracking(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("worker: open tracking connection for %s: %w", workerID, err)
	}
	disp := &dispatch.Dispatcher{
		Store:    d.Store,
		Tracking: tracking,
		Registry: d.Registry,
		Limits:   d.Limits,
		WorkerID: workerID,
		Classify: d.Classify,
	}
	return disp, tracking, nil
}

// runKillerScan performs the startup Killer-Task Guard pass: "on startup, each worker scans WorkerTracking."
func runKillerScan(ctx context.Context, d Deps) error {
	g := &killer.Guard{Store: d.Store, Threshold: d.KillerThreshold, ThresholdFunc: d.ThresholdFunc, Log: d.log()}
	retired, err := g.Scan(ctx)
	if err != nil {
		return fmt.Errorf("worker: killer-task guard: %w", err)
	}
	if len(retired) > 0 {
		d.log().Warn("killer-task guard retired goals at startup", "count", len(retired))
	}
	return nil
}

// maybeStartSweeper starts the retention sweeper in its own goroutine
// if Deps.RetentionWindow is configured. Only one process-wide sweeper
// is needed; callers of a threaded worker start it once, not per
// thread.
func maybeStartSweeper(ctx context.Context, d Deps) {
	if d.RetentionWindow <= 0 {
		return
	}
	sw := &retention.Sweeper{Store: d.Store, Window: d.RetentionWindow, WindowFunc: d.WindowFunc, Log: d.log()}
	go sw.Run(ctx, d.sweepInterval())
}

// logOnceErr logs the error from a Dispatcher.Once call and reports
// whether the iteration should be treated as a normal one rather than
// a failure worth backing off for. A goal forced GIVEN_UP at the
// progress cap committed successfully; it isn't a dispatch failure.
func logOnceErr(log *slog.Logger, workerID string, err error) (handled bool) {
	if errors.Is(err, goals.ErrProgressCapExceeded) {
		log.Info("goal forced to given_up: progress cap exceeded", "worker_id", workerID, "error", err)
		return true
	}
	log.Error("dispatch iteration failed", "worker_id", workerID, "error", err)
	return false
}

// sleep blocks for d or until ctx is canceled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
