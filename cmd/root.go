package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrobbler",
	Short: "Audioscrobbler client for MPD",
	Long: `scrobbler submits the tracks you play in MPD to Last.fm, Libre.fm and
other services speaking the Audioscrobbler 1.2 protocol.

It runs as a daemon that follows MPD playback, reports now playing,
queues finished tracks and submits them in batches. Tracks that could
not be submitted are kept on disk and retried after a restart.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
