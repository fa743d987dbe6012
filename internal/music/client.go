package music

import (
	"context"
	"time"
)

// Track represents a music track with its metadata and current state
type Track struct {
	ID          string        // Player specific identity of the queue entry
	Name        string        // Track name/title
	Artist      string        // Artist name
	Album       string        // Album name
	TrackNumber int           // Position within the album, 0 if unknown
	MBID        string        // MusicBrainz recording id
	Duration    time.Duration // Total track duration
	Position    time.Duration // Current playback position
	State       PlayState     // Current playback state
}

// SameSong reports whether t and o refer to the same queue entry.
func (t *Track) SameSong(o *Track) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID && t.Name == o.Name && t.Artist == o.Artist
}

// PlayState represents the current playback state of the music player
type PlayState int

const (
	StateStopped PlayState = iota // No track playing
	StatePlaying                  // Track is currently playing
	StatePaused                   // Track is paused
)

// String returns a human-readable representation of the PlayState
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Client defines the interface for reading the state of a music player
type Client interface {
	// GetCurrentTrack returns the currently playing/paused track, or nil if stopped
	GetCurrentTrack(ctx context.Context) (*Track, error)

	// Watch returns a channel that receives a value whenever the player
	// state changes. The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases the connection to the player
	Close() error
}

// Messenger exchanges client-to-client messages over a named player channel
type Messenger interface {
	// Messages subscribes to channel and delivers each message received.
	// The channel is closed when ctx is done.
	Messages(ctx context.Context, channel string) (<-chan string, error)

	// SendMessage sends text to every client subscribed to channel
	SendMessage(ctx context.Context, channel, text string) error
}
