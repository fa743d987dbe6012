package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/music"
)

const defaultNowFormat = "{{.Artist}} - {{.Name}}"

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track MPD is playing",
	Long: `Query MPD and display the currently playing track.

The output is a Go template. Available fields: .Name, .Artist, .Album,
.TrackNumber, .Duration, .Position

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or MPD not reachable`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", defaultNowFormat, "Output format template")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled)")
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := music.NewMPDClient(cfg.MPD.Address, cfg.MPD.Password, zerolog.Nop())
	defer func() { _ = client.Close() }()

	track, err := client.GetCurrentTrack(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current track: %w", err)
	}

	if track == nil || track.State != music.StatePlaying {
		os.Exit(1)
		return nil
	}

	format, _ := cmd.Flags().GetString("format")
	output, err := formatTrack(track, format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	fmt.Fprintln(cmd.OutOrStdout(), padToWidth(output, width))
	return nil
}

// formatTrack applies the template to the track data
func formatTrack(track *music.Track, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}
