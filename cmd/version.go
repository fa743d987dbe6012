package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scrobbler %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:   %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:    %s\n", buildDate)
		fmt.Fprintf(cmd.OutOrStdout(), "  protocol: %s\n", audioscrobbler.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
