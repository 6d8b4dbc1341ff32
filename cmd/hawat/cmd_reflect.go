package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/llm"
	"github.com/dslachut/hawat/memory"
)

// newReflectCmdWith creates the "hawat reflect" subcommand wired to a
// manager and summarizer.
func newReflectCmdWith(manager *memory.SimpleManager, summarizer memory.Summarizer) *cobra.Command {
	return &cobra.Command{
		Use:   "reflect",
		Short: "Summarize stale conversations once and exit",
		Long: "Run one reflection sweep: every conversation without a summary, or with\n" +
			"messages newer than its summary, is summarized and re-embedded.\n\n" +
			"The sweep lock is per process. Run this while no server is running, or\n" +
			"against a server started with --no-reflection.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReflect(cmd, manager, summarizer)
		},
	}
}

// newReflectCmd creates the "hawat reflect" subcommand.
func newReflectCmd() *cobra.Command {
	cmd := newReflectCmdWith(nil, nil)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("reflect: %w", err)
		}
		completer, err := newCompleter(cfg)
		if err != nil {
			return fmt.Errorf("reflect: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg, true)
		if err != nil {
			return fmt.Errorf("reflect: %w", err)
		}
		defer a.cleanup()
		return runReflect(cmd, a.manager, llm.NewSummarizer(completer))
	}
	return cmd
}

func runReflect(cmd *cobra.Command, manager *memory.SimpleManager, summarizer memory.Summarizer) error {
	n, err := manager.NewReflector(summarizer).Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("reflect: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Summarized %d conversations\n", n)
	return nil
}
