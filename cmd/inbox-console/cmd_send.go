// ABOUTME: send subcommand: one-shot reply to a conversation
// ABOUTME: Resolves the conversation, loads its thread, and routes through dispatch

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/inbox-console/internal/thread"
)

var sendConversationID string

func init() {
	sendCmd.Flags().StringVar(&sendConversationID, "conversation", "", "conversation id (required)")
	sendCmd.MarkFlagRequired("conversation")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send a reply to a conversation on its channel",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	logger := slog.Default()

	client := newBackendClient(cfg, logger)
	router, err := buildRouter(cfg, client, logger)
	if err != nil {
		return err
	}

	conv, err := findConversation(ctx, client, cfg.List.PageSize, sendConversationID)
	if err != nil {
		return err
	}

	// The thread supplies the reply anchor for channels that need it and is
	// what the website path persists.
	msgs, err := client.GetThread(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("loading thread: %w", err)
	}
	thread.Backfill(conv, msgs)

	body := strings.Join(args, " ")
	res, err := router.Dispatch(ctx, conv, body)
	if err != nil {
		if res != nil {
			return fmt.Errorf("message %s queued locally but not delivered: %w", res.MessageID, err)
		}
		return err
	}

	fmt.Printf("Sent %s on %s\n", res.MessageID, conv.Channel)
	return nil
}
