// ABOUTME: toggle-live subcommand: flip a conversation's live-agent flag
// ABOUTME: One-shot backend mutation, no engine needed

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var toggleOff bool

func init() {
	toggleCmd.Flags().BoolVar(&toggleOff, "off", false, "hand the conversation back to the bot")
	rootCmd.AddCommand(toggleCmd)
}

var toggleCmd = &cobra.Command{
	Use:   "toggle-live <conversation-id>",
	Short: "Take over a conversation as a live agent (or hand it back)",
	Args:  cobra.ExactArgs(1),
	RunE:  runToggle,
}

func runToggle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	client := newBackendClient(cfg, nil)
	enabled := !toggleOff
	if _, err := client.SetLiveAgent(cmd.Context(), args[0], enabled); err != nil {
		return err
	}

	state := "live agent"
	if !enabled {
		state = "bot"
	}
	fmt.Printf("Conversation %s handed to %s\n", args[0], state)
	return nil
}
