package audioscrobbler

import (
	"context"
	"fmt"
	"time"
)

// Protocol constants.
const (
	// ProtocolVersion is sent as the p parameter of the handshake.
	ProtocolVersion = "1.2.1"

	// MaxBatchSize is the most tracks accepted by one submission.
	MaxBatchSize = 50

	// MaxHardFailures is the number of consecutive failed submissions
	// after which the session is discarded.
	MaxHardFailures = 3

	// NowPlayingDelay coalesces rapid track changes into one notification.
	NowPlayingDelay = 3 * time.Second

	// MinHandshakeDelay and MaxHandshakeDelay bound the handshake retry backoff.
	MinHandshakeDelay = 60 * time.Second
	MaxHandshakeDelay = 7200 * time.Second
)

// State is the handshake state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateHandshaking
	StateAuthenticated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateHandshaking:
		return "handshaking"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Logger is an optional interface for logging.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Callbacks are raised from the session loop. Any of them may be nil.
type Callbacks struct {
	// OnError reports fatal handshake responses and web-service failures.
	OnError func(fatal bool, message string)
	// OnScrobbled fires once the submission queue has been drained.
	OnScrobbled func()
	// OnSessionKey delivers a newly obtained web-service session key.
	OnSessionKey func(key string)
	// OnAuthenticated fires after every successful handshake.
	OnAuthenticated func()
	// OnAccepted receives each batch the server accepted.
	OnAccepted func(tracks []Track)
}

// Config holds session configuration.
type Config struct {
	URL           string // Required: handshake URL
	ClientID      string // Required: client identifier
	ClientVersion string // Required: client version
	Username      string
	PasswordHash  string // md5 hex of the password, see HashPassword

	// Web-service settings. Love and session key support is enabled when
	// APIURL, APIKey and APISecret are all set.
	APIURL     string
	APIKey     string
	APISecret  string
	SessionKey string // Optional: previously obtained session key

	Transport Transport // Optional: defaults to NewHTTPTransport("")
	Clock     Clock     // Optional: defaults to SystemClock()
	Logger    Logger    // Optional
	Callbacks Callbacks
}

// Status is a point in time view of a Session.
type Status struct {
	State          State
	SessionID      string
	Queued         int
	NowPlaying     *Track
	InFlight       int
	HardFailures   int
	HandshakeDelay time.Duration
	Fatal          string // Last fatal handshake error, cleared by a successful handshake
	HasSessionKey  bool
	PendingLoves   int
	APIProblems    bool
}

// Session speaks the submission protocol to one service.
//
// Protocol state is only touched by the goroutine running Run. The public
// methods are safe for concurrent use; they either mutate the queues under
// their locks or post an event to the loop.
type Session struct {
	url           string
	clientID      string
	clientVersion string
	apiURL        string
	apiKey        string
	apiSecret     string

	transport Transport
	clock     Clock
	logger    Logger
	callbacks Callbacks

	queue      Queue
	loves      List
	nowPlaying *debouncer

	events chan event
	done   chan struct{}
	ctx    context.Context

	// Owned by the loop.
	username      string
	passwordHash  string
	sessionKey    string
	state         State
	sessionID     string
	nowPlayingURL string
	submitURL     string
	delay         *backoff
	retry         Timer
	handshaking   bool
	generation    int // Incremented per handshake; older replies are dropped
	inFlight      int
	hardFailures  int
	fatal         string
	authing       bool
	loving        bool
	apiProblems   bool
}

// NewSession creates a session. Run must be started before any request is made.
func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	if cfg.ClientID == "" || cfg.ClientVersion == "" {
		return nil, fmt.Errorf("%w: client id and version are required", ErrInvalidConfig)
	}

	transport := cfg.Transport
	if transport == nil {
		t, err := NewHTTPTransport("")
		if err != nil {
			return nil, err
		}
		transport = t
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Session{
		url:           cfg.URL,
		clientID:      cfg.ClientID,
		clientVersion: cfg.ClientVersion,
		apiURL:        cfg.APIURL,
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		transport:     transport,
		clock:         clock,
		logger:        logger,
		callbacks:     cfg.Callbacks,
		nowPlaying:    newDebouncer(clock, NowPlayingDelay),
		events:        make(chan event, 64),
		done:          make(chan struct{}),
		ctx:           context.Background(),
		username:      cfg.Username,
		passwordHash:  cfg.PasswordHash,
		sessionKey:    cfg.SessionKey,
		delay:         newBackoff(MinHandshakeDelay, MaxHandshakeDelay),
	}, nil
}

// Run processes events until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	defer s.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Handshake starts a handshake, cancelling any scheduled retry.
func (s *Session) Handshake() {
	s.post(handshakeRequest{})
}

// Submit sends queued tracks if the session is authenticated and idle.
func (s *Session) Submit() {
	s.post(submitRequest{})
}

// AddTrack installs t as the now-playing track. The previous track is
// finalized and queued if it played long enough.
func (s *Session) AddTrack(t Track) {
	f, ok := s.queue.Start(t)
	ev := trackStarted{track: t}
	if ok {
		ev.finalized = &f
	}
	s.post(ev)
}

// Stop finalizes the now-playing track at the current time.
func (s *Session) Stop() {
	f, ok := s.queue.Finalize(s.clock.Now())
	ev := trackStopped{}
	if ok {
		ev.finalized = &f
	}
	s.post(ev)
}

// Pause is Stop; a resumed track starts over with a new timestamp.
func (s *Session) Pause() {
	s.Stop()
}

// SetLove rates the now-playing track. The rating takes effect when the
// track is finalized.
func (s *Session) SetLove(on bool) bool {
	return s.queue.SetLove(on)
}

// Love loves or unloves a track through the web service.
func (s *Session) Love(artist, title string, on bool) {
	t := Track{Artist: artist, Title: title}
	if on {
		t.Rating = RatingLove
	}
	s.post(loveRequest{track: t})
}

// SetCredentials replaces the handshake credentials and starts a fresh
// handshake.
func (s *Session) SetCredentials(username, passwordHash string) {
	s.post(credentialsUpdate{username: username, passwordHash: passwordHash})
}

// SetSessionKey replaces the web-service session key.
func (s *Session) SetSessionKey(key string) {
	s.post(sessionKeyUpdate{key: key})
}

// Load puts the tracks stored at path ahead of anything already queued.
// Stored tracks were played before the current process started.
func (s *Session) Load(path string) error {
	tracks, err := Load(path)
	if err != nil {
		return err
	}
	s.queue.Prepend(tracks)
	return nil
}

// Store writes the submission queue to path.
func (s *Session) Store(path string) error {
	return Store(path, s.queue.Snapshot())
}

// Queued returns a copy of the submission queue.
func (s *Session) Queued() []Track {
	return s.queue.Snapshot()
}

// Status queries the loop for the current protocol state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.events <- statusRequest{reply: reply}:
	case <-s.done:
		return Status{}, fmt.Errorf("session stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return Status{}, fmt.Errorf("session stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// send issues req and delivers its response to the loop wrapped by wrap.
func (s *Session) send(req Request, wrap func(Response) event) {
	s.transport.Do(s.ctx, req, func(resp Response) {
		s.post(wrap(resp))
	})
}

func (s *Session) stopTimers() {
	s.nowPlaying.Stop()
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Session) status() Status {
	st := Status{
		State:          s.state,
		SessionID:      s.sessionID,
		Queued:         s.queue.Len(),
		InFlight:       s.inFlight,
		HardFailures:   s.hardFailures,
		HandshakeDelay: s.delay.Current(),
		Fatal:          s.fatal,
		HasSessionKey:  s.sessionKey != "",
		PendingLoves:   s.loves.Len(),
		APIProblems:    s.apiProblems,
	}
	if t, ok := s.queue.NowPlaying(); ok {
		st.NowPlaying = &t
	}
	return st
}

func (s *Session) onError(fatal bool, msg string) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(fatal, msg)
	}
}
