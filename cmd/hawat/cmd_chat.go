package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dslachut/hawat/server"
)

const (
	chatStartMsg = "Welcome to Hawat!\nType to begin chatting...\n"
	chatCloseMsg = "---\nClosing. Have a nice day!"
)

// chatSender is the client side of hawat.HawatChat.
type chatSender interface {
	SendChat(ctx context.Context, message string) (string, error)
}

// newChatCmd creates the "hawat chat" subcommand. A nil sender dials --addr.
func newChatCmd(sender chatSender) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running hawat server from the terminal",
		Long:  "Read messages line by line from stdin and print each reply.\nEnd the session with EOF (Ctrl-D).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sender == nil {
				client, err := server.Dial(addr)
				if err != nil {
					return fmt.Errorf("chat: %w", err)
				}
				defer func() { _ = client.Close() }()
				sender = client
			}
			return runChat(cmd, sender)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC address of the hawat server")
	return cmd
}

func runChat(cmd *cobra.Command, sender chatSender) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, chatStartMsg+"\n")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			continue
		}
		reply, err := sender.SendChat(cmd.Context(), msg)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			continue
		}
		fmt.Fprintln(out, ">>", reply)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, chatCloseMsg)
	return scanner.Err()
}
