package audioscrobbler

import (
	"sync"
	"time"
)

// List is a FIFO of tracks guarded by its own lock.
type List struct {
	mu     sync.Mutex
	tracks []Track
}

// Push appends t to the tail.
func (l *List) Push(t Track) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, t)
}

// Head returns copies of up to n tracks from the head.
func (l *List) Head(n int) []Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.tracks) {
		n = len(l.tracks)
	}
	out := make([]Track, n)
	copy(out, l.tracks[:n])
	return out
}

// Drop removes up to n tracks from the head and returns how many were removed.
func (l *List) Drop(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.tracks) {
		n = len(l.tracks)
	}
	l.tracks = append([]Track(nil), l.tracks[n:]...)
	return n
}

// Len returns the number of queued tracks.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tracks)
}

// Snapshot returns a copy of every queued track.
func (l *List) Snapshot() []Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// Replace swaps the contents for tracks, keeping only valid ones.
func (l *List) Replace(tracks []Track) {
	valid := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Valid() {
			valid = append(valid, t)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = valid
}

// Prepend inserts the valid tracks ahead of the current contents.
func (l *List) Prepend(tracks []Track) {
	valid := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Valid() {
			valid = append(valid, t)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(valid, l.tracks...)
}

// Finalized is the outcome of closing the now-playing slot.
type Finalized struct {
	Track  Track
	Played int  // Seconds between the track start and finalization
	Queued bool // Whether the track met the submission rules
}

// Queue holds tracks waiting for submission plus the now-playing slot.
type Queue struct {
	List

	slotMu     sync.Mutex
	nowPlaying *Track
}

// Start installs t in the now-playing slot. The previous occupant is
// finalized as of t's start time and returned.
func (q *Queue) Start(t Track) (Finalized, bool) {
	q.slotMu.Lock()
	prev := q.nowPlaying
	q.nowPlaying = &t
	q.slotMu.Unlock()

	if prev == nil {
		return Finalized{}, false
	}
	return q.finalize(*prev, t.StartedAt()), true
}

// Finalize empties the now-playing slot as of at and returns the outcome.
func (q *Queue) Finalize(at time.Time) (Finalized, bool) {
	q.slotMu.Lock()
	prev := q.nowPlaying
	q.nowPlaying = nil
	q.slotMu.Unlock()

	if prev == nil {
		return Finalized{}, false
	}
	return q.finalize(*prev, at), true
}

func (q *Queue) finalize(t Track, at time.Time) Finalized {
	played := int(at.Unix() - t.Timestamp)
	f := Finalized{Track: t, Played: played}
	if t.Valid() && ShouldScrobble(t.Length, played) {
		q.Push(t)
		f.Queued = true
	}
	return f
}

// NowPlaying returns a copy of the slot occupant.
func (q *Queue) NowPlaying() (Track, bool) {
	q.slotMu.Lock()
	defer q.slotMu.Unlock()
	if q.nowPlaying == nil {
		return Track{}, false
	}
	return *q.nowPlaying, true
}

// SetLove sets the slot occupant's rating. It reports false when the slot
// is empty.
func (q *Queue) SetLove(on bool) bool {
	q.slotMu.Lock()
	defer q.slotMu.Unlock()
	if q.nowPlaying == nil {
		return false
	}
	if on {
		q.nowPlaying.Rating = RatingLove
	} else {
		q.nowPlaying.Rating = RatingNone
	}
	return true
}
