package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/engine"
	"github.com/dslachut/hawat/llm"
	"github.com/dslachut/hawat/server"
)

// newServeCmd creates the "hawat serve" subcommand.
func newServeCmd() *cobra.Command {
	var noReflection bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server and the reflection scheduler",
		Long:  "Serve hawat.HawatChat over gRPC and /ws over HTTP.\nIf the database is unreachable the server still answers, without memory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			completer, err := newCompleter(cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.cleanup()

			if a.manager.Available() && !noReflection {
				reflector := a.manager.NewReflector(llm.NewSummarizer(completer))
				reflector.Start(ctx)
				defer reflector.Stop()
			}

			srv, err := server.New(server.Config{
				Engine:   engine.NewEngine(completer, engine.WithMemory(a.manager)),
				GRPCAddr: cfg.GRPCAddr,
				HTTPAddr: cfg.HTTPAddr,
				Health: func() map[string]any {
					return map[string]any{"memory": a.manager.Available()}
				},
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			log.Printf("[SERVER] hawat ready (db=%s, llm=%s, embedder=%s, memory=%t)",
				cfg.DBDriver, cfg.LLMProvider, cfg.Embedder, a.manager.Available())
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noReflection, "no-reflection", false, "do not run the background summarization loop")
	return cmd
}
