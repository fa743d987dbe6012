package audioscrobbler

// Submission rules, in seconds.
const (
	// MinimumTrackLength is the length a track must exceed to be scrobbled.
	MinimumTrackLength = 30

	// MaxScrobbleThreshold is the play time that always qualifies a track.
	MaxScrobbleThreshold = 240
)

// ShouldScrobble reports whether a track of the given length that played for
// played seconds qualifies for submission:
//  1. length must exceed 30 seconds
//  2. it must have played for 240 seconds or half its length
func ShouldScrobble(length, played int) bool {
	if !IsEligible(length) {
		return false
	}
	return played >= MaxScrobbleThreshold || played >= length/2
}

// IsEligible reports whether a track is long enough to ever be scrobbled.
func IsEligible(length int) bool {
	return length > MinimumTrackLength
}
