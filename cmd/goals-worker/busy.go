package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/store/postgres"
	"github.com/EE/goals/internal/worker"
)

var busyCmd = &cobra.Command{
	Use:     "busy",
	Short:   "Run the poll-and-sleep worker loop",
	GroupID: "loops",
	Long: `Runs the busy-wait worker loop : claim, dispatch, and
when nothing is ready, sleep --poll-interval before trying again.

Examples:
  goals-worker busy
  goals-worker busy --deadline-horizon 1h --poll-interval 2s`,
	RunE: runBusy,
}

func init() {
	busyCmd.Flags().Duration("poll-interval", time.Second, "Sleep duration between idle polls")
	busyCmd.Flags().String("deadline-horizon", "", "Only claim goals whose deadline is within this duration (e.g. 1h); empty means unbounded")
	rootCmd.AddCommand(busyCmd)
}

func runBusy(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	poll, _ := cmd.Flags().GetDuration("poll-interval")
	horizonFlag, _ := cmd.Flags().GetString("deadline-horizon")
	var horizon *time.Duration
	if horizonFlag != "" {
		d, err := time.ParseDuration(horizonFlag)
		if err != nil {
			return fmt.Errorf("goals-worker: --deadline-horizon: %w", err)
		}
		horizon = &d
	}

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

	return worker.Busy(cmd.Context(), deps, rt.workerID, horizon)
}
