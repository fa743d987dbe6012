package audioscrobbler

// event is a message processed by the session loop.
type event interface{}

type (
	handshakeRequest struct{}
	submitRequest    struct{}
	retryDue         struct{}

	trackStarted struct {
		track     Track
		finalized *Finalized
	}
	trackStopped struct {
		finalized *Finalized
	}
	nowPlayingDue struct {
		track Track
	}
	loveRequest struct {
		track Track
	}
	credentialsUpdate struct {
		username     string
		passwordHash string
	}
	sessionKeyUpdate struct {
		key string
	}
	statusRequest struct {
		reply chan<- Status
	}

	handshakeResult struct {
		resp       Response
		generation int
	}
	submitResult struct {
		resp  Response
		batch []Track
	}
	nowPlayingResult struct {
		resp Response
	}
	authResult struct {
		resp Response
	}
	loveResult struct {
		resp  Response
		track Track
	}
)

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case handshakeRequest:
		s.handshake()
	case retryDue:
		s.retry = nil
		if s.state != StateAuthenticated {
			s.handshake()
		}
	case submitRequest:
		s.submit()
	case trackStarted:
		if ev.finalized != nil {
			s.finalized(*ev.finalized)
		}
		track := ev.track
		s.nowPlaying.Trigger(func() { s.post(nowPlayingDue{track: track}) })
		s.submit()
	case trackStopped:
		s.nowPlaying.Stop()
		if ev.finalized != nil {
			s.finalized(*ev.finalized)
		}
		s.submit()
	case nowPlayingDue:
		s.sendNowPlaying(ev.track)
	case loveRequest:
		s.loves.Push(ev.track)
		s.apiProblems = false
		s.drainLoves()
	case credentialsUpdate:
		s.username = ev.username
		s.passwordHash = ev.passwordHash
		s.fatal = ""
		s.delay.Reset()
		// A reply to a handshake already in flight answers the old credentials
		s.handshaking = false
		s.invalidate("credentials changed")
	case sessionKeyUpdate:
		s.sessionKey = ev.key
		s.apiProblems = false
		s.drainLoves()
	case statusRequest:
		ev.reply <- s.status()

	case handshakeResult:
		if ev.generation != s.generation {
			s.logger.Debugf("audioscrobbler: ignoring stale handshake response")
			return
		}
		s.onHandshake(ev.resp)
	case submitResult:
		s.onSubmit(ev)
	case nowPlayingResult:
		s.onNowPlaying(ev.resp)
	case authResult:
		s.onAuth(ev.resp)
	case loveResult:
		s.onLove(ev)
	default:
		s.logger.Warnf("audioscrobbler: unknown event %T", ev)
	}
}

// finalized handles a track leaving the now-playing slot.
func (s *Session) finalized(f Finalized) {
	if f.Queued {
		s.logger.Debugf("audioscrobbler: queued %s - %s (played %ds)", f.Track.Artist, f.Track.Title, f.Played)
	} else {
		s.logger.Debugf("audioscrobbler: dropped %s - %s (played %ds of %ds)", f.Track.Artist, f.Track.Title, f.Played, f.Track.Length)
	}

	if f.Track.Loved() && s.sessionKey != "" {
		s.loves.Push(f.Track)
		s.drainLoves()
	}
}
