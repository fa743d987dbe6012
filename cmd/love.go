package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/daemon"
	"github.com/jfmyers9/scrobbler/internal/music"
)

// loveCmd represents the love command
var loveCmd = &cobra.Command{
	Use:   "love",
	Short: "Love or unlove a track",
	Long: `Ask the running daemon to love a track.

Without --artist and --title the track MPD is playing is rated, and the
rating is sent with its scrobble. With both flags the track is loved
right away through the web service. The command travels over the MPD
client-to-client channel configured as mpd.channel, so the daemon must
be running.`,
	Args: cobra.NoArgs,
	RunE: runLove,
}

func init() {
	rootCmd.AddCommand(loveCmd)

	loveCmd.Flags().Bool("off", false, "Unlove instead of love")
	loveCmd.Flags().String("artist", "", "Artist of the track to rate")
	loveCmd.Flags().String("title", "", "Title of the track to rate")
	loveCmd.MarkFlagsRequiredTogether("artist", "title")
}

func runLove(cmd *cobra.Command, args []string) error {
	off, _ := cmd.Flags().GetBool("off")
	artist, _ := cmd.Flags().GetString("artist")
	title, _ := cmd.Flags().GetString("title")

	love := daemon.LoveCommand{On: !off, Artist: artist, Title: title}
	if _, err := daemon.ParseCommand(love.String()); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := music.NewMPDClient(cfg.MPD.Address, cfg.MPD.Password, zerolog.Nop())
	defer func() { _ = client.Close() }()

	if err := sendLove(ctx, client, cfg.MPD.Channel, love); err != nil {
		return err
	}

	verb := "Loved"
	if off {
		verb = "Unloved"
	}
	target := "the playing track"
	if !love.Current() {
		target = fmt.Sprintf("%s - %s", artist, title)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, target)
	return nil
}

func sendLove(ctx context.Context, m music.Messenger, channel string, love daemon.LoveCommand) error {
	if channel == "" {
		return fmt.Errorf("mpd.channel is not configured")
	}
	if err := m.SendMessage(ctx, channel, love.String()); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return nil
}
