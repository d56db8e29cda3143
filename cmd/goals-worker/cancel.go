package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/EE/goals/internal/goals"
)

var cancelCmd = &cobra.Command{
	Use:     "cancel <goal-id>",
	Short:   "Administratively cancel a non-terminal goal",
	GroupID: "ops",
	Long: `Marks a goal CORRUPTED outside of the normal dispatch path, for
operators retiring a goal by hand. Refuses if the goal has already
reached a terminal state (ACHIEVED, GIVEN_UP, CORRUPTED, or
NOT_GOING_TO_HAPPEN_SOON), since those only change again via an
explicit administrative retry.

Examples:
  goals-worker cancel 8f14e45f-ceea-4420-8b4b-2c1e8c2c1234 --note "duplicate of another goal"`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().String("note", "", "Reason recorded in the goal's Progress log")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("goals-worker: %q: %w", args[0], err)
	}

	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	note, _ := cmd.Flags().GetString("note")
	if err := rt.store.Cancel(cmd.Context(), id, note); err != nil {
		if errors.Is(err, goals.ErrAlreadyTerminal) {
			return fmt.Errorf("goals-worker: %s is already terminal, use an explicit retry instead: %w", id, err)
		}
		return err
	}

	fmt.Printf("canceled %s\n", id)
	return nil
}
