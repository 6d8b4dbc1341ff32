package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hawat",
		Short:         "Hawat conversational assistant with long-term memory",
		Long:          "hawat serves a chat assistant over gRPC and websocket.\nEvery message is remembered, grouped into conversations, and summarized in the background.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newChatCmd(nil),
		newReflectCmd(),
		newOrphansCmd(),
	)

	return cmd
}
