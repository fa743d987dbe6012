package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/scrobbler"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export [service]",
	Short: "Export pending tracks as a .scrobbler.log",
	Long: `Write the tracks waiting to be submitted to a service in the
.scrobbler.log format used by portable players, so they can be uploaded
with another tool. The service defaults to lastfm.

The queue is not modified; stop the daemon first if the tracks should
not be submitted twice.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	id := "lastfm"
	if len(args) == 1 {
		id = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if _, ok := cfg.Service(id); !ok {
		return fmt.Errorf("unknown service %q", id)
	}

	tracks, err := pendingTracks(id)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	client := fmt.Sprintf("scrobbler %s", version)
	if err := scrobbler.WriteScrobblerLog(out, client, tracks); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d tracks to %s\n", len(tracks), exportOutput)
	}
	return nil
}
