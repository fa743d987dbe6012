package music

import (
	"context"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
)

// How often a subscribed connection checks for new messages
const messagePollInterval = time.Second

// MPDClient implements the Client and Messenger interfaces for the Music
// Player Daemon
type MPDClient struct {
	mu       sync.Mutex
	client   *mpd.Client
	addr     string
	password string
	logger   zerolog.Logger
}

// NewMPDClient creates a client for the MPD server at addr. The connection
// is opened lazily and re-established when it drops.
func NewMPDClient(addr, password string, logger zerolog.Logger) *MPDClient {
	return &MPDClient{
		addr:     addr,
		password: password,
		logger:   logger.With().Str("component", "mpd").Logger(),
	}
}

// connectLocked establishes connection (must hold lock).
func (c *MPDClient) connectLocked() error {
	client, err := mpd.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			_ = client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	c.logger.Debug().Str("addr", c.addr).Msg("Connected to MPD")
	return nil
}

// ensureConnectedLocked reconnects if the connection is missing or dead.
func (c *MPDClient) ensureConnectedLocked() error {
	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		c.logger.Warn().Err(err).Msg("MPD connection lost, reconnecting")
		_ = c.client.Close()
		c.client = nil
		return c.connectLocked()
	}
	return nil
}

// GetCurrentTrack returns the current song, or nil when MPD is stopped
func (c *MPDClient) GetCurrentTrack(ctx context.Context) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return nil, err
	}

	status, err := c.client.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get MPD status: %w", err)
	}
	if status["state"] == "stop" || status["state"] == "" {
		return nil, nil
	}

	song, err := c.client.CurrentSong()
	if err != nil {
		return nil, fmt.Errorf("failed to get current song: %w", err)
	}

	return parseSong(status, song)
}

// Watch reports changes of the player subsystem
func (c *MPDClient) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := mpd.NewWatcher("tcp", c.addr, c.password, "player")
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Event:
				if !ok {
					return
				}
				// Coalesce bursts; the poller re-reads the full state anyway.
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				c.logger.Error().Err(err).Msg("MPD watcher error")
			}
		}
	}()

	return ch, nil
}

// Messages subscribes a dedicated connection to channel. Subscriptions
// belong to a connection, so it reconnects and subscribes again when the
// connection drops.
func (c *MPDClient) Messages(ctx context.Context, channel string) (<-chan string, error) {
	sub, err := c.subscribe(channel)
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 8)
	go func() {
		defer close(ch)
		defer func() {
			if sub != nil {
				_ = sub.Close()
			}
		}()

		ticker := time.NewTicker(messagePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if sub == nil {
				if sub, err = c.subscribe(channel); err != nil {
					c.logger.Debug().Err(err).Msg("MPD message subscription unavailable")
					continue
				}
			}

			msgs, err := sub.Command("readmessages").AttrsList("channel")
			if err != nil {
				c.logger.Warn().Err(err).Msg("Failed to read MPD messages, resubscribing")
				_ = sub.Close()
				sub = nil
				continue
			}
			for _, m := range msgs {
				if m["channel"] != channel {
					continue
				}
				select {
				case ch <- m["message"]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (c *MPDClient) subscribe(channel string) (*mpd.Client, error) {
	sub, err := mpd.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MPD: %w", err)
	}
	if c.password != "" {
		if err := sub.Command("password %s", c.password).OK(); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("MPD authentication failed: %w", err)
		}
	}
	if err := sub.Command("subscribe %s", channel).OK(); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", channel, err)
	}
	c.logger.Debug().Str("channel", channel).Msg("Subscribed to MPD channel")
	return sub, nil
}

// SendMessage sends text on channel. MPD rejects it when nobody is subscribed.
func (c *MPDClient) SendMessage(ctx context.Context, channel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := c.client.Command("sendmessage %s %s", channel, text).OK(); err != nil {
		return fmt.Errorf("failed to send message to %q: %w", channel, err)
	}
	return nil
}

// Close closes the MPD connection
func (c *MPDClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// parseSong builds a Track from the status and currentsong responses
func parseSong(status, song mpd.Attrs) (*Track, error) {
	var state PlayState
	switch status["state"] {
	case "play":
		state = StatePlaying
	case "pause":
		state = StatePaused
	case "stop", "":
		state = StateStopped
	default:
		return nil, fmt.Errorf("unknown player state: %q", status["state"])
	}

	name := song["Title"]
	if name == "" {
		name = song["Name"]
	}
	if name == "" && song["file"] != "" {
		base := path.Base(song["file"])
		name = strings.TrimSuffix(base, path.Ext(base))
	}

	artist := song["Artist"]
	if artist == "" {
		artist = song["AlbumArtist"]
	}

	duration := parseSeconds(song["duration"])
	if duration == 0 {
		duration = parseSeconds(song["Time"])
	}
	if duration == 0 {
		duration = parseSeconds(status["duration"])
	}

	position := parseSeconds(status["elapsed"])
	if position == 0 {
		// Older servers only report "time: elapsed:total"
		if elapsed, _, ok := strings.Cut(status["time"], ":"); ok {
			position = parseSeconds(elapsed)
		}
	}

	id := song["Id"]
	if id == "" {
		id = status["songid"]
	}
	if id == "" {
		id = song["file"]
	}

	return &Track{
		ID:          id,
		Name:        name,
		Artist:      artist,
		Album:       song["Album"],
		TrackNumber: parseTrackNumber(song["Track"]),
		MBID:        song["MUSICBRAINZ_TRACKID"],
		Duration:    duration,
		Position:    position,
		State:       state,
	}, nil
}

// parseSeconds converts seconds (as float) to time.Duration
func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}

// parseTrackNumber accepts both "3" and "3/12"
func parseTrackNumber(s string) int {
	num, _, _ := strings.Cut(s, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
