package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/scrobbler"
	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

var statusRaw bool

var statusCmd = &cobra.Command{
	Use:   "status [service]",
	Short: "Show configured services and pending tracks",
	Long: `Show every configured service with the tracks waiting to be submitted.

Pending tracks are read from the queue the daemon stores on disk, so
the counts can lag the running daemon by up to store_interval.

With --raw the stored queue of each service is printed as is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "Print the stored queue as is")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	services := cfg.Services
	if len(args) == 1 {
		svc, ok := cfg.Service(args[0])
		if !ok {
			return fmt.Errorf("unknown service %q", args[0])
		}
		services = []config.ServiceConfig{svc}
	}

	if statusRaw {
		for _, svc := range services {
			tracks, err := pendingTracks(svc.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "# %s\n", svc.ID)
			if err := audioscrobbler.Encode(out, tracks); err != nil {
				return fmt.Errorf("failed to write queue: %w", err)
			}
		}
		return nil
	}

	history := openHistory()
	if history != nil {
		defer func() { _ = history.Close() }()
	}

	tb := newTable(10, 12, 10, 10, 16)
	tb.row("SERVICE", "USER", "STATE", "PENDING", "OLDEST", "SCROBBLED")
	for _, svc := range services {
		tracks, err := pendingTracks(svc.ID)
		if err != nil {
			return err
		}
		tb.row(
			svc.ID,
			orDash(svc.Username),
			serviceState(svc),
			strconv.Itoa(len(tracks)),
			oldest(tracks),
			scrobbledCell(cmd.Context(), history, svc.ID),
		)
	}
	fmt.Fprint(out, tb.String())
	return nil
}

func pendingTracks(id string) ([]audioscrobbler.Track, error) {
	path, err := config.CachePath(id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue for %s: %w", id, err)
	}
	tracks, err := audioscrobbler.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue for %s: %w", id, err)
	}
	return tracks, nil
}

// openHistory opens the daemon's history database, or returns nil when it
// does not exist yet
func openHistory() *scrobbler.History {
	path := filepath.Join(config.GetDataDir(), "history.db")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	history, err := scrobbler.NewHistory(path)
	if err != nil {
		return nil
	}
	return history
}

func serviceState(svc config.ServiceConfig) string {
	switch {
	case !svc.Enabled:
		return "disabled"
	case !svc.Configured():
		return "no login"
	case svc.SessionKey != "":
		return "ok+love"
	default:
		return "ok"
	}
}

func oldest(tracks []audioscrobbler.Track) string {
	if len(tracks) == 0 {
		return "-"
	}
	return humanize.Time(time.Unix(tracks[0].Timestamp, 0))
}

func scrobbledCell(ctx context.Context, history *scrobbler.History, id string) string {
	if history == nil {
		return "-"
	}
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := history.Count(ctx, id)
	if err != nil {
		return "?"
	}
	return humanize.Comma(int64(n))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
