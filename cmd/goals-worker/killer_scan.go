package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/killer"
)

// killerScanLockKey names the advisory lock held for the duration of a
// standalone killer-scan run, so overlapping cron invocations against
// the same database never run concurrently.
const killerScanLockKey = "goals-worker:killer-scan"

var killerScanCmd = &cobra.Command{
	Use:     "killer-scan",
	Short:   "Run the Killer-Task Guard once and exit",
	GroupID: "ops",
	Long: `Runs one Killer-Task Guard pass against the tracking
table and exits. Every worker loop already runs this at startup; this
subcommand is for operators who want to run it standalone, e.g. from a
cron job or after restoring a backup. Takes a Postgres advisory lock
for its duration, so two overlapping cron invocations against the same
database never scan at once; the second one exits immediately instead
of racing the first.

Examples:
  goals-worker killer-scan`,
	RunE: runKillerScan,
}

func init() {
	rootCmd.AddCommand(killerScanCmd)
}

func runKillerScan(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	acquired, release, err := rt.store.TryAdvisoryLock(cmd.Context(), killerScanLockKey)
	if err != nil {
		return fmt.Errorf("goals-worker: killer-scan lock: %w", err)
	}
	if !acquired {
		fmt.Println("another killer-scan is already running, exiting")
		return nil
	}
	defer func() { _ = release(cmd.Context()) }()

	g := &killer.Guard{Store: rt.store, Threshold: rt.cfg.KillerThreshold, ThresholdFunc: rt.thresholdFunc, Log: rt.log}
	retired, err := g.Scan(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("retired %d goal(s)\n", len(retired))
	return nil
}
