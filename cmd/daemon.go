package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/internal/daemon"
	"github.com/jfmyers9/scrobbler/internal/metrics"
	"github.com/jfmyers9/scrobbler/internal/music"
	"github.com/jfmyers9/scrobbler/internal/scrobbler"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonDataDir  string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scrobbling daemon",
	Long: `Run the scrobbling daemon that follows MPD and submits tracks to every
configured service.

The daemon will:
- Watch MPD for player changes and poll it as a fallback
- Report now playing a few seconds after a track starts
- Queue a track once it played for half its length or 4 minutes
- Submit the queue in batches of up to 50 tracks
- Retry failed handshakes with a growing delay
- Store pending tracks every few minutes and on shutdown
- Authenticate again when credentials in the config file change

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a rotated file instead.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "", "Log level (debug, info, warn, error; default from config)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for state and history (default: $XDG_DATA_HOME/scrobbler)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := daemonLogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger := setupLogger(daemonLogFile, level)

	logger.Info().
		Str("version", version).
		Msg("Starting scrobbler daemon")

	dataDir := daemonDataDir
	if dataDir == "" {
		dataDir = config.GetDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Info().Str("data_dir", dataDir).Msg("Using data directory")

	history, err := scrobbler.NewHistory(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	m := metrics.New()
	manager, err := scrobbler.NewManager(scrobbler.Options{
		Config:   cfg,
		History:  history,
		Recorder: m,
		Logger:   logger,
	})
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("failed to create scrobbler: %w", err)
	}
	if len(manager.Services()) == 0 {
		_ = history.Close()
		return fmt.Errorf("no service configured. Run 'scrobbler auth' first")
	}
	m.CollectSessions(manager)

	player := music.NewMPDClient(cfg.MPD.Address, cfg.MPD.Password, logger)

	d, err := daemon.New(daemon.Config{
		PollInterval:     cfg.MPD.PollInterval,
		StateFile:        filepath.Join(dataDir, "state.json"),
		HistoryRetention: cfg.HistoryRetention,
		MetricsAddr:      cfg.MetricsAddr,
		WatchConfig:      true,
		CommandChannel:   cfg.MPD.Channel,
	}, player, manager, logger, daemon.WithHistory(history), daemon.WithMetrics(m))
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if logFile != "" {
		output = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
