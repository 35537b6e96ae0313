// ABOUTME: list subcommand: one-shot filtered conversation listing
// ABOUTME: Maps flags onto filter criteria and prints a table

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/2389/inbox-console/internal/model"
)

var (
	listSearch  string
	listChannel string
	listSort    string
	listPage    int
)

func init() {
	listCmd.Flags().StringVar(&listSearch, "search", "", "search text")
	listCmd.Flags().StringVar(&listChannel, "channel", "", "filter by channel (website|facebook|instagram|telegram|whatsapp)")
	listCmd.Flags().StringVar(&listSort, "sort", "newest", "sort order (newest|oldest|name)")
	listCmd.Flags().IntVar(&listPage, "page", 0, "page number")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations matching a filter",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	filter := model.FilterCriteria{
		SearchQuery: listSearch,
		Channel:     model.Channel(listChannel),
		Sort:        model.SortOrder(listSort),
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	client := newBackendClient(cfg, nil)
	result, err := client.ListConversations(cmd.Context(), filter, listPage, cfg.List.PageSize)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHANNEL\tNAME\tMSGS\tLIVE\tPREVIEW")
	for _, conv := range result.Items {
		live := ""
		if conv.IsLiveAgent {
			live = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			conv.ID, conv.Channel, conv.Counterparty.Name,
			conv.MessageCount, live, conv.LastMessagePreview)
	}
	w.Flush()

	fmt.Printf("\nPage %d, %d total", listPage, result.TotalCount)
	if result.HasMore {
		fmt.Print(" (more available)")
	}
	fmt.Println()
	return nil
}
