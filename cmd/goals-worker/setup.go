package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/config"
	"github.com/EE/goals/internal/dispatch"
	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/logging"
	"github.com/EE/goals/internal/store/postgres"
)

// runtime bundles everything a worker subcommand needs, assembled
// once from the process environment.
type runtime struct {
	cfg      *config.Config
	store    *postgres.Store
	registry *goals.Registry
	log      *slog.Logger
	closeLog func() error
	workerID string

	// thresholdNanos/windowNanos back thresholdFunc/windowFunc. They
	// start at cfg's values and are only ever overwritten by the
	// --watch-config file watcher's onChange callback.
	thresholdNanos atomic.Int64
	windowNanos    atomic.Int64
	watcher        *config.Watcher
}

func setup(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logPath := cfg.LogPath
	if flagPath, _ := cmd.Flags().GetString("log-path"); flagPath != "" {
		logPath = flagPath
	}
	log, closer := logging.New(logging.Options{Level: "info", LogPath: logPath})
	closeLog := func() error {
		if closer == nil {
			return nil
		}
		return closer.Close()
	}

	if cfg.MemoryLimitMiB > 0 {
		debug.SetMemoryLimit(int64(cfg.MemoryLimitMiB) * 1024 * 1024)
	}

	store, err := postgres.New(cmd.Context(), cfg.DatabaseURL, postgres.WithListenChannel(cfg.ListenChannel))
	if err != nil {
		return nil, fmt.Errorf("goals-worker: open store: %w", err)
	}

	workerID, _ := cmd.Flags().GetString("worker-id")
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	r := &runtime{
		cfg:      cfg,
		store:    store,
		registry: handlerRegistry(),
		log:      log,
		closeLog: closeLog,
		workerID: workerID,
	}
	r.thresholdNanos.Store(int64(cfg.KillerThreshold))
	r.windowNanos.Store(int64(cfg.Retention()))

	watchConfig, _ := cmd.Flags().GetBool("watch-config")
	if watchConfig {
		configFile, _ := cmd.Flags().GetString("config-file")
		if configFile == "" {
			return nil, fmt.Errorf("goals-worker: --watch-config requires --config-file")
		}
		w, err := config.NewWatcher(configFile, log, func(killerThreshold, retentionSeconds int) {
			r.thresholdNanos.Store(int64(killerThreshold))
			r.windowNanos.Store(int64(time.Duration(retentionSeconds) * time.Second))
		})
		if err != nil {
			return nil, fmt.Errorf("goals-worker: watch config: %w", err)
		}
		r.watcher = w
	}

	return r, nil
}

func (r *runtime) close() {
	_ = r.store.Close()
	_ = r.closeLog()
}

func (r *runtime) limits() dispatch.Limits {
	return dispatch.Limits{
		MaxProgressCount: r.cfg.MaxProgressCount,
		TimeLimit:        r.cfg.TimeLimit(),
	}
}

func (r *runtime) thresholdFunc() int {
	return int(r.thresholdNanos.Load())
}

func (r *runtime) windowFunc() time.Duration {
	return time.Duration(r.windowNanos.Load())
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// handlerRegistry returns the process's handler set. Handlers are an
// application extension point; this binary ships none of
// its own, so operators embedding this command register theirs before
// rootCmd.Execute in a fork, or a future subcommand loads them from a
// plugin. An empty registry is valid: goals referencing an unregistered
// handler are marked CORRUPTED rather than crashing the worker.
func handlerRegistry() *goals.Registry {
	return goals.NewRegistry()
}
