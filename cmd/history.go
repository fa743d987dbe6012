package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyService string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently scrobbled tracks",
	Long: `Show tracks the services accepted, newest first.

Entries older than history_retention are removed by the daemon.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 shows all)")
	historyCmd.Flags().StringVarP(&historyService, "service", "s", "", "Only show one service")
}

func runHistory(cmd *cobra.Command, args []string) error {
	history := openHistory()
	if history == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No scrobbles recorded yet.")
		return nil
	}
	defer func() { _ = history.Close() }()

	entries, err := history.Recent(cmd.Context(), historyService, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scrobbles recorded yet.")
		return nil
	}

	tb := newTable(16, 8, 24, 2)
	tb.row("PLAYED", "SERVICE", "ARTIST", "", "TITLE")
	for _, e := range entries {
		loved := ""
		if e.Loved {
			loved = "♥"
		}
		tb.row(
			humanize.RelTime(e.Timestamp, time.Now(), "ago", "from now"),
			e.Service,
			e.Artist,
			loved,
			e.Title,
		)
	}
	fmt.Fprint(cmd.OutOrStdout(), tb.String())
	return nil
}
