package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/goals"
	"github.com/EE/goals/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule --handler <id>",
	Short:   "Schedule a goal from the command line",
	GroupID: "ops",
	Long: `A thin CLI wrapper over the in-process schedule(...) API,
for operators who want to create a goal without writing a program
against the handler registry.

Examples:
  goals-worker schedule --handler send-welcome-email --args '{"user_id":42}'
  goals-worker schedule --handler archive-report --mode any --precondition-goal 8f14...-uuid --precondition-goal a921...-uuid`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().String("handler", "", "Registered handler identifier (required)")
	scheduleCmd.Flags().String("args", "", "Opaque args payload, passed to the handler verbatim")
	scheduleCmd.Flags().String("kwargs", "", "Opaque kwargs payload, passed to the handler verbatim")
	scheduleCmd.Flags().StringArray("precondition-goal", nil, "A prerequisite goal ID; repeat for more than one")
	scheduleCmd.Flags().String("mode", "all", `Preconditions mode: "all" or "any"`)
	scheduleCmd.Flags().Bool("allow-precondition-failures", false, "Tolerate a failed prerequisite instead of propagating it as NOT_GOING_TO_HAPPEN_SOON")
	scheduleCmd.Flags().Duration("deadline", 0, "Deadline relative to now; 0 means GOALS_DEFAULT_DEADLINE_SECONDS")
	scheduleCmd.Flags().Bool("no-deadline", false, "Schedule with no deadline at all")
	scheduleCmd.Flags().Bool("blocked", false, "Create BLOCKED instead of computing the initial state")
	_ = scheduleCmd.MarkFlagRequired("handler")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	handler, _ := cmd.Flags().GetString("handler")
	argsPayload, _ := cmd.Flags().GetString("args")
	kwargsPayload, _ := cmd.Flags().GetString("kwargs")
	rawPrereqs, _ := cmd.Flags().GetStringArray("precondition-goal")
	modeFlag, _ := cmd.Flags().GetString("mode")
	allowFailures, _ := cmd.Flags().GetBool("allow-precondition-failures")
	deadlineRel, _ := cmd.Flags().GetDuration("deadline")
	noDeadline, _ := cmd.Flags().GetBool("no-deadline")
	blocked, _ := cmd.Flags().GetBool("blocked")

	mode := goals.ModeAll
	if modeFlag == "any" {
		mode = goals.ModeAny
	}

	prereqs := make([]uuid.UUID, 0, len(rawPrereqs))
	for _, raw := range rawPrereqs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("goals-worker: --precondition-goal %q: %w", raw, err)
		}
		prereqs = append(prereqs, id)
	}

	var deadline *time.Time
	if !noDeadline {
		d := deadlineRel
		if d == 0 {
			d = rt.cfg.DefaultDeadline()
		}
		t := time.Now().UTC().Add(d)
		deadline = &t
	}

	id, err := rt.store.Schedule(cmd.Context(), store.ScheduleParams{
		Handler:                     handler,
		Args:                        []byte(argsPayload),
		Kwargs:                      []byte(kwargsPayload),
		PreconditionGoals:           prereqs,
		PreconditionsMode:           mode,
		PreconditionFailuresAllowed: allowFailures,
		Deadline:                    deadline,
		Blocked:                     blocked,
	})
	if err != nil {
		return fmt.Errorf("goals-worker: schedule: %w", err)
	}

	fmt.Println(id)
	return nil
}
