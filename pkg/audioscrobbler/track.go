package audioscrobbler

import "time"

// Source describes who chose a track.
type Source string

// Rating is the user's rating of a track.
type Rating string

const (
	// SourceUser marks a track chosen by the user or the player.
	SourceUser Source = "P"

	// RatingNone is the zero rating.
	RatingNone Rating = ""
	// RatingLove marks a loved track.
	RatingLove Rating = "L"
)

// Track is one listened track plus the metadata needed to scrobble it.
//
// Track is a plain value; assigning it copies every field.
type Track struct {
	Artist    string // Required
	Title     string // Required
	Album     string // Optional
	MBID      string // Optional: MusicBrainz recording id
	Timestamp int64  // Unix seconds when playback started
	Source    Source
	Rating    Rating
	Length    int // Declared length in seconds
	Position  int // 1-based index within the album, 0 when unknown
}

// Valid reports whether the track can be persisted or scrobbled.
func (t Track) Valid() bool {
	return t.Artist != ""
}

// Loved reports whether the track is rated as loved.
func (t Track) Loved() bool {
	return t.Rating == RatingLove
}

// StartedAt returns the playback start time.
func (t Track) StartedAt() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// SamePlay reports whether t and o are the same play of the same track.
// Ratings are ignored.
func (t Track) SamePlay(o Track) bool {
	return t.Artist == o.Artist && t.Title == o.Title && t.Timestamp == o.Timestamp
}
