// Command goals-worker runs the goal scheduling and execution engine
// against a PostgreSQL database: the busy, blocking, and threaded
// worker loops, plus standalone operator subcommands
// for the Killer-Task Guard and manual scheduling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version and Build are set at build time via -ldflags.
var (
	Version = "dev"
	Build   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "goals-worker",
	Short: "Goal scheduling and execution engine worker",
	Long: `goals-worker runs the dispatcher loop that claims ready goals from
a PostgreSQL-backed goal table and invokes their registered handlers.

Commands:
  busy          Poll-and-sleep worker loop
  blocking      LISTEN/NOTIFY-driven worker loop
  threaded      N logical workers per process, with horizon tiers
  killer-scan   Run the Killer-Task Guard once and exit
  schedule      Schedule a goal from the command line
  cancel        Administratively cancel a non-terminal goal

Environment Variables:
  GOALS_DATABASE_URL               PostgreSQL connection string (required)
  GOALS_MAX_PROGRESS_COUNT         Progress cap before GIVEN_UP (default 100)
  GOALS_RETENTION_SECONDS          ACHIEVED goal retention window (default 7 days)
  GOALS_DEFAULT_DEADLINE_SECONDS   Default deadline for schedule (default 7 days)
  GOALS_MEMORY_LIMIT_MIB           Soft memory limit applied to the process
  GOALS_TIME_LIMIT_SECONDS         Per-handler wall-time limit
  GOALS_KILLER_THRESHOLD           Killer-Task Guard threshold K (default 3)
  GOALS_LISTEN_CHANNEL             LISTEN/NOTIFY channel name (default "goals")
  GOALS_LOG_PATH                   Rotating JSON log file path (default: stderr only)

Live-reloadable config:
  --watch-config --config-file path/to/config.yaml re-reads the killer
  threshold and retention window from that file on every write, without
  restarting the worker. Everything else is fixed at startup.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("goals-worker version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().String("worker-id", "", "Unique identifier for this worker (default: hostname-pid)")
	rootCmd.PersistentFlags().Bool("watch-config", false, "Watch a config file for killer-threshold/retention-window changes")
	rootCmd.PersistentFlags().String("config-file", "", "Path to the config file to watch with --watch-config")
	rootCmd.PersistentFlags().String("log-path", "", "Rotating JSON log file path (overrides GOALS_LOG_PATH; default: stderr only)")

	rootCmd.AddGroup(&cobra.Group{ID: "loops", Title: "Worker Loops:"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operator Commands:"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
