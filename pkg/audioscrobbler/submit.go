package audioscrobbler

import (
	"errors"
	"strconv"
	"strings"
)

// nowPlayingTags are the fields of a now-playing notification.
var nowPlayingTags = []tag{tagArtist, tagTitle, tagAlbum, tagLength, tagPosition, tagMBID}

// submissionBody encodes tracks with every field present and indexed.
func submissionBody(sessionID string, tracks []Track) string {
	var b strings.Builder
	b.WriteString("s=")
	b.WriteString(escape(sessionID))
	for i, t := range tracks {
		idx := strconv.Itoa(i)
		for _, f := range fields {
			b.WriteByte('&')
			b.WriteByte(byte(f.tag))
			b.WriteByte('[')
			b.WriteString(idx)
			b.WriteString("]=")
			b.WriteString(escape(f.get(t)))
		}
	}
	return b.String()
}

func nowPlayingBody(sessionID string, t Track) string {
	var b strings.Builder
	b.WriteString("s=")
	b.WriteString(escape(sessionID))
	for _, tg := range nowPlayingTags {
		b.WriteByte('&')
		b.WriteByte(byte(tg))
		b.WriteByte('=')
		b.WriteString(escape(fieldsByTag[tg].get(t)))
	}
	return b.String()
}

func (s *Session) submit() {
	if s.sessionID == "" || s.inFlight > 0 {
		return
	}
	batch := s.queue.Head(MaxBatchSize)
	if len(batch) == 0 {
		return
	}

	s.inFlight = len(batch)
	s.logger.Debugf("audioscrobbler: submitting %d of %d tracks", len(batch), s.queue.Len())
	s.send(Request{URL: s.submitURL, Body: submissionBody(s.sessionID, batch)}, func(r Response) event {
		return submitResult{resp: r, batch: batch}
	})
}

func (s *Session) onSubmit(ev submitResult) {
	n := s.inFlight
	s.inFlight = 0

	err := parseStatus(ev.resp)
	switch {
	case err == nil:
		dropped := s.queue.Drop(n)
		s.hardFailures = 0
		s.logger.Debugf("audioscrobbler: %d tracks accepted", dropped)
		if s.callbacks.OnAccepted != nil && dropped > 0 {
			s.callbacks.OnAccepted(ev.batch[:dropped])
		}
		if s.queue.Len() > 0 {
			s.submit()
			return
		}
		if s.callbacks.OnScrobbled != nil {
			s.callbacks.OnScrobbled()
		}

	case errors.Is(err, ErrBadSession):
		s.invalidate("submission rejected the session")

	default:
		s.hardFailures++
		s.logger.Warnf("audioscrobbler: submission failed (%d/%d): %v", s.hardFailures, MaxHardFailures, err)
		if s.hardFailures >= MaxHardFailures {
			s.invalidate("too many failed submissions")
		}
	}
}

func (s *Session) sendNowPlaying(t Track) {
	current, ok := s.queue.NowPlaying()
	if !ok || !current.SamePlay(t) {
		return
	}
	t = current
	if s.sessionID == "" {
		s.logger.Debugf("audioscrobbler: not authenticated, skipping now playing")
		return
	}

	s.send(Request{URL: s.nowPlayingURL, Body: nowPlayingBody(s.sessionID, t)}, func(r Response) event {
		return nowPlayingResult{resp: r}
	})
}

func (s *Session) onNowPlaying(r Response) {
	err := parseStatus(r)
	switch {
	case err == nil:
	case errors.Is(err, ErrBadSession):
		s.invalidate("now playing rejected the session")
	default:
		s.logger.Warnf("audioscrobbler: now playing failed: %v", err)
	}
}

// parseStatus interprets a submission or now-playing response.
func parseStatus(r Response) error {
	lines, err := responseLines(r)
	if err != nil {
		return err
	}

	code, msg := splitStatus(lines[0])
	switch code {
	case CodeOK:
		return nil
	case CodeBadSession, CodeFailed:
		return &Error{Code: code, Message: msg}
	default:
		return &Error{Code: CodeFailed, Message: lines[0]}
	}
}
