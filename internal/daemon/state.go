package daemon

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/scrobbler/internal/music"
	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

const (
	// How often position-only changes are written to disk
	defaultPersistInterval = 30 * time.Second

	// A jump back to within this much of the start of the same song is
	// treated as a repeat rather than a seek
	restartSlack = 10 * time.Second
)

// TransitionKind is what a player snapshot means for the scrobbler
type TransitionKind int

const (
	TransitionNone    TransitionKind = iota // Nothing to report
	TransitionStarted                       // A new play began (including a resume)
	TransitionStopped                       // The current play ended
	TransitionPaused                        // The current play was paused
)

// String returns a human-readable representation of the TransitionKind
func (k TransitionKind) String() string {
	switch k {
	case TransitionNone:
		return "none"
	case TransitionStarted:
		return "started"
	case TransitionStopped:
		return "stopped"
	case TransitionPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Transition is the result of applying a player snapshot
type Transition struct {
	Kind  TransitionKind
	Track audioscrobbler.Track // Set for TransitionStarted
}

// TrackState represents the daemon's view of the current play
type TrackState struct {
	Track     *music.Track // Current track (nil if stopped)
	StartedAt time.Time    // Timestamp reported for this play
	Paused    bool         // Whether the play is paused
	Position  time.Duration

	// Whether the scrobbler has been told about this play. Not persisted so
	// a restored play is announced again after a restart.
	announced bool
}

// State turns player snapshots into play transitions and persists the
// current play so a restart keeps its original timestamp.
type State struct {
	mu       sync.Mutex
	current  TrackState
	filePath string // Path to state file for persistence

	persistInterval time.Duration
	lastPersist     time.Time
	dirty           bool

	now func() time.Time
}

// persistedState is the JSON representation of state for disk storage
type persistedState struct {
	Track     *music.Track  `json:"track,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Paused    bool          `json:"paused"`
	Position  time.Duration `json:"position"`
}

// NewState creates a new State instance
// If filePath is provided, attempts to restore state from disk
func NewState(filePath string) (*State, error) {
	s := &State{
		filePath:        filePath,
		persistInterval: defaultPersistInterval,
		now:             time.Now,
	}

	if filePath != "" {
		if err := s.restore(); err != nil && !os.IsNotExist(err) {
			// Not fatal, the daemon can start fresh
			return s, err
		}
	}

	return s, nil
}

// Update applies a player snapshot. A nil track means the player stopped.
func (s *State) Update(track *music.Track) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur := &s.current

	if track == nil || track.State == music.StateStopped {
		if cur.Track == nil {
			return Transition{}, nil
		}
		active := cur.announced && !cur.Paused
		s.current = TrackState{}
		if !active {
			return Transition{}, s.persist()
		}
		return Transition{Kind: TransitionStopped}, s.persist()
	}

	same := cur.Track.SameSong(track)
	restarted := same && cur.Position > track.Position+restartSlack && track.Position < restartSlack

	switch track.State {
	case music.StatePlaying:
		switch {
		case !same || restarted:
			s.current = TrackState{
				Track:     track,
				StartedAt: startTime(now, track.Position),
				Position:  track.Position,
				announced: true,
			}
		case cur.Paused:
			// Resuming starts the play over
			cur.Track = track
			cur.StartedAt = now
			cur.Paused = false
			cur.Position = track.Position
			cur.announced = true
		case !cur.announced:
			// Restored from disk, keep the original timestamp
			cur.Track = track
			cur.Position = track.Position
			cur.announced = true
		default:
			cur.Track = track
			cur.Position = track.Position
			return Transition{}, s.throttledPersist()
		}
		return Transition{Kind: TransitionStarted, Track: toScrobble(s.current)}, s.persist()

	case music.StatePaused:
		if same && cur.Paused {
			return Transition{}, nil
		}
		wasActive := cur.Track != nil && cur.announced && !cur.Paused
		kind := TransitionNone
		if wasActive {
			kind = TransitionPaused
			if !same {
				kind = TransitionStopped
			}
		}
		s.current = TrackState{
			Track:     track,
			StartedAt: cur.StartedAt,
			Paused:    true,
			Position:  track.Position,
			announced: true,
		}
		return Transition{Kind: kind}, s.persist()
	}

	return Transition{}, nil
}

// Current returns the play being tracked, converted for the scrobbler
func (s *State) Current() (audioscrobbler.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Track == nil {
		return audioscrobbler.Track{}, false
	}
	return toScrobble(s.current), true
}

// GetState returns a copy of the current state
func (s *State) GetState() TrackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Flush writes pending position changes to disk
func (s *State) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// throttledPersist writes to disk at most once per persistInterval.
// Must be called with mu held.
func (s *State) throttledPersist() error {
	if s.now().Sub(s.lastPersist) < s.persistInterval {
		s.dirty = true
		return nil
	}
	return s.persist()
}

// persist saves state to disk. Must be called with mu held.
func (s *State) persist() error {
	if s.filePath == "" {
		return nil // No persistence configured
	}

	ps := persistedState{
		Track:     s.current.Track,
		StartedAt: s.current.StartedAt,
		Paused:    s.current.Paused,
		Position:  s.current.Position,
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return err
	}

	s.lastPersist = s.now()
	s.dirty = false
	return nil
}

// restore loads state from disk
func (s *State) restore() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = TrackState{
		Track:     ps.Track,
		StartedAt: ps.StartedAt,
		Paused:    ps.Paused,
		Position:  ps.Position,
	}
	return nil
}

func startTime(now time.Time, position time.Duration) time.Time {
	if position < 0 {
		position = 0
	}
	return now.Add(-position).Truncate(time.Second)
}

// toScrobble converts a tracked play into a submission track
func toScrobble(ts TrackState) audioscrobbler.Track {
	t := ts.Track
	return audioscrobbler.Track{
		Artist:    t.Artist,
		Title:     t.Name,
		Album:     t.Album,
		MBID:      t.MBID,
		Timestamp: ts.StartedAt.Unix(),
		Source:    audioscrobbler.SourceUser,
		Length:    int(math.Round(t.Duration.Seconds())),
		Position:  t.TrackNumber,
	}
}
