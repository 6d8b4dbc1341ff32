package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/memory"
)

// newOrphansCmdWith creates the "hawat orphans" subcommand wired to a tracker.
func newOrphansCmdWith(tracker *memory.Tracker) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List messages that belong to no conversation",
		Long:  "Check that every stored message is attached to a conversation.\nExits with an error when orphans are found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrphans(cmd, tracker)
		},
	}
}

// newOrphansCmd creates the "hawat orphans" subcommand.
func newOrphansCmd() *cobra.Command {
	cmd := newOrphansCmdWith(nil)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("orphans: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg, true)
		if err != nil {
			return fmt.Errorf("orphans: %w", err)
		}
		defer a.cleanup()
		return runOrphans(cmd, a.manager.Tracker())
	}
	return cmd
}

func runOrphans(cmd *cobra.Command, tracker *memory.Tracker) error {
	ids, err := tracker.Orphans(cmd.Context())
	if err != nil {
		return fmt.Errorf("orphans: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No orphaned messages")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
	}
	return fmt.Errorf("orphans: %d messages without a conversation", len(ids))
}
