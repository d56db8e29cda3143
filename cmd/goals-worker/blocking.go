package main

import (
	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/notify"
	"github.com/EE/goals/internal/store/postgres"
	"github.com/EE/goals/internal/worker"
)

var blockingCmd = &cobra.Command{
	Use:     "blocking",
	Short:   "Run the LISTEN/NOTIFY-driven worker loop",
	GroupID: "loops",
	Long: `Runs the blocking worker loop : claim, dispatch, and
when nothing is ready, block on a Postgres LISTEN/NOTIFY channel
instead of sleeping a fixed interval. A missed notification just falls
back to polling again after --poll-interval (at least 5s).

Examples:
  goals-worker blocking`,
	RunE: runBlocking,
}

func init() {
	blockingCmd.Flags().Duration("poll-interval", 0, "Fallback wait when no notification arrives (default 5s)")
	rootCmd.AddCommand(blockingCmd)
}

func runBlocking(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	n, err := notify.New(cmd.Context(), rt.cfg.DatabaseURL, rt.cfg.ListenChannel)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	poll, _ := cmd.Flags().GetDuration("poll-interval")
	deps := worker.Deps{
		Store:           rt.store,
		Registry:        rt.registry,
		Limits:          rt.limits(),
		Classify:        postgres.Recoverable,
		Log:             rt.log,
		PollInterval:    poll,
		RetentionWindow: rt.cfg.Retention(),
		WindowFunc:      rt.windowFunc,
		KillerThreshold: rt.cfg.KillerThreshold,
		ThresholdFunc:   rt.thresholdFunc,
	}

	return worker.Blocking(cmd.Context(), deps, n, rt.workerID)
}
