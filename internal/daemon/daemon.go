package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/metrics"
	"github.com/jfmyers9/scrobbler/internal/music"
	"github.com/jfmyers9/scrobbler/internal/scrobbler"
	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

const (
	// How often old history entries are removed
	historyCleanupInterval = time.Hour

	defaultPollInterval = 5 * time.Second
)

// Config holds daemon configuration
type Config struct {
	PollInterval     time.Duration // How often to poll the player
	StateFile        string        // Path to state persistence file
	HistoryRetention time.Duration // How long accepted scrobbles are kept, 0 keeps them forever
	MetricsAddr      string        // Address for /metrics, empty disables it
	WatchConfig      bool          // Re-authenticate when the config file changes
	CommandChannel   string        // Player channel carrying love commands, empty disables it
}

// Scrobbler receives playback events. It is implemented by scrobbler.Manager.
type Scrobbler interface {
	Run(ctx context.Context) error
	TrackStarted(t audioscrobbler.Track)
	TrackStopped()
	PlaybackPaused()
	LoveToggled(on bool) bool
	Love(artist, title string, on bool)
	Reload(cfg *config.Config)
}

// Option configures optional daemon collaborators
type Option func(*Daemon)

// WithHistory lets the daemon prune and close the history database
func WithHistory(h *scrobbler.History) Option {
	return func(d *Daemon) { d.history = h }
}

// WithMetrics serves m on Config.MetricsAddr
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// Daemon coordinates the player poller, playback tracking and scrobbling
type Daemon struct {
	config    Config
	client    music.Client
	scrobbler Scrobbler
	history   *scrobbler.History
	metrics   *metrics.Metrics
	state     *State
	poller    *Poller
	logger    zerolog.Logger
}

// New creates a new Daemon instance
func New(cfg Config, musicClient music.Client, s Scrobbler, logger zerolog.Logger, opts ...Option) (*Daemon, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	state, err := NewState(cfg.StateFile)
	if err != nil {
		if state == nil {
			return nil, fmt.Errorf("failed to create state: %w", err)
		}
		logger.Warn().Err(err).Msg("Failed to restore playback state, starting fresh")
	}

	d := &Daemon{
		config:    cfg,
		client:    musicClient,
		scrobbler: s,
		state:     state,
		poller:    NewPoller(musicClient, cfg.PollInterval, logger),
		logger:    logger.With().Str("component", "daemon").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		<-sigChan
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	var wg sync.WaitGroup
	updates := make(chan TrackUpdate, 10)

	// Start the service sessions
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.scrobbler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("Scrobbler error")
		}
	}()

	// Start poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.poller.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("Poller error")
		}
	}()

	// Main loop: handle track updates
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.handleUpdates(ctx, updates)
	}()

	if messenger, ok := d.client.(music.Messenger); ok && d.config.CommandChannel != "" {
		msgs, err := messenger.Messages(ctx, d.config.CommandChannel)
		if err != nil {
			d.logger.Warn().Err(err).Str("channel", d.config.CommandChannel).Msg("Love commands unavailable")
		} else {
			d.logger.Info().Str("channel", d.config.CommandChannel).Msg("Listening for love commands")
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.handleCommands(ctx, msgs)
			}()
		}
	}

	if d.history != nil && d.config.HistoryRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.cleanupHistory(ctx)
		}()
	}

	if d.metrics != nil && d.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.metrics.Serve(ctx, d.config.MetricsAddr, d.logger); err != nil {
				d.logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	if d.config.WatchConfig {
		err := config.Watch(func(cfg *config.Config) {
			d.logger.Info().Msg("Configuration changed, reloading")
			d.scrobbler.Reload(cfg)
		})
		if err != nil {
			d.logger.Debug().Err(err).Msg("Not watching configuration")
		}
	}

	// Wait for all goroutines to finish
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// handleUpdates processes track updates from the poller
func (d *Daemon) handleUpdates(ctx context.Context, updates <-chan TrackUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if update.Err != nil {
				// Log error but continue
				d.logger.Debug().Err(update.Err).Msg("Track update error")
				continue
			}

			if err := d.handleTrackUpdate(update.Track); err != nil {
				d.logger.Error().Err(err).Msg("Failed to handle track update")
			}
		}
	}
}

// handleTrackUpdate applies a player snapshot and forwards the result
func (d *Daemon) handleTrackUpdate(track *music.Track) error {
	tr, err := d.state.Update(track)

	switch tr.Kind {
	case TransitionStarted:
		d.logger.Info().
			Str("track", tr.Track.Title).
			Str("artist", tr.Track.Artist).
			Int64("timestamp", tr.Track.Timestamp).
			Msg("Track started")
		d.scrobbler.TrackStarted(tr.Track)
	case TransitionPaused:
		d.logger.Info().Msg("Playback paused")
		d.scrobbler.PlaybackPaused()
	case TransitionStopped:
		d.logger.Info().Msg("Playback stopped")
		d.scrobbler.TrackStopped()
	}

	if err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// handleCommands applies love commands received from the player channel
func (d *Daemon) handleCommands(ctx context.Context, msgs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			cmd, err := ParseCommand(msg)
			if err != nil {
				d.logger.Warn().Err(err).Str("message", msg).Msg("Ignoring command")
				continue
			}
			d.applyCommand(cmd)
		}
	}
}

func (d *Daemon) applyCommand(cmd LoveCommand) {
	if !cmd.Current() {
		d.logger.Info().
			Str("artist", cmd.Artist).
			Str("track", cmd.Title).
			Bool("love", cmd.On).
			Msg("Rating track")
		d.scrobbler.Love(cmd.Artist, cmd.Title, cmd.On)
		return
	}

	if !d.scrobbler.LoveToggled(cmd.On) {
		d.logger.Warn().Bool("love", cmd.On).Msg("Nothing playing to rate")
		return
	}
	d.logger.Info().Bool("love", cmd.On).Msg("Rated playing track")
}

// cleanupHistory periodically removes history older than the retention
func (d *Daemon) cleanupHistory(ctx context.Context) {
	ticker := time.NewTicker(historyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pruneHistory(ctx)
		}
	}
}

func (d *Daemon) pruneHistory(ctx context.Context) {
	deleted, err := d.history.Cleanup(ctx, d.config.HistoryRetention)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup history")
		return
	}
	if deleted > 0 {
		d.logger.Info().Int64("deleted", deleted).Msg("Removed old history")
	}
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	if err := d.state.Flush(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to save playback state")
	}

	if err := d.client.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close player connection")
	}

	if d.history == nil {
		return nil
	}

	if d.config.HistoryRetention > 0 {
		d.pruneHistory(context.Background())
	}

	if err := d.history.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}

	return nil
}
