package main

import (
	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/store/postgres"
	"github.com/EE/goals/internal/worker"
)

var threadedCmd = &cobra.Command{
	Use:     "threaded",
	Short:   "Run N logical workers per process, with horizon tiers",
	GroupID: "loops",
	Long: `Runs the threaded worker loop : spawns N busy-style
goroutines for each --threads "N" or "N:Δ" entry, each restricted to
that entry's deadline horizon. Repeat --threads for multiple tiers.

Examples:
  goals-worker threaded --threads 5
  goals-worker threaded --threads 2:30m --threads 3:none`,
	RunE: runThreaded,
}

func init() {
	threadedCmd.Flags().StringArray("threads", nil, `Thread tier as "N" or "N:Δ" (Δ is <int>(s|m|h|d) or "none")`)
	rootCmd.AddCommand(threadedCmd)
}

func runThreaded(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	raw, _ := cmd.Flags().GetStringArray("threads")
	if len(raw) == 0 {
		raw = []string{"1"}
	}
	specs, err := worker.ParseThreadSpecs(raw)
	if err != nil {
		return err
	}

	deps := worker.Deps{
		Store:           rt.store,
		Registry:        rt.registry,
		Limits:          rt.limits(),
		Classify:        postgres.Recoverable,
		Log:             rt.log,
		RetentionWindow: rt.cfg.Retention(),
		WindowFunc:      rt.windowFunc,
		KillerThreshold: rt.cfg.KillerThreshold,
		ThresholdFunc:   rt.thresholdFunc,
	}

	return worker.RunThreaded(cmd.Context(), deps, rt.workerID, specs)
}
