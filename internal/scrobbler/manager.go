package scrobbler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

// Recorder receives counters about scrobbling activity. It is implemented
// by the metrics package.
type Recorder interface {
	Accepted(service string, n int)
	Error(service string, fatal bool)
	Love(service string, on bool)
}

type nopRecorder struct{}

func (nopRecorder) Accepted(string, int) {}
func (nopRecorder) Error(string, bool)   {}
func (nopRecorder) Love(string, bool)    {}

// Options configures a Manager
type Options struct {
	Config   *config.Config
	History  *History // Optional: accepted scrobbles are recorded here
	Recorder Recorder // Optional
	Logger   zerolog.Logger

	// Overrides used by tests
	Transport      audioscrobbler.Transport
	Clock          audioscrobbler.Clock
	CachePath      func(id string) (string, error)
	SaveSessionKey func(id, key string) error
}

// Service is one configured remote service and its protocol session
type Service struct {
	ID        string
	Session   *audioscrobbler.Session
	CachePath string

	mu     sync.Mutex
	config config.ServiceConfig
}

type accepted struct {
	service string
	tracks  []audioscrobbler.Track
}

// Manager fans playback events out to every configured service, persists
// their queues and records accepted scrobbles.
type Manager struct {
	services      []*Service
	transport     audioscrobbler.Transport
	history       *History
	recorder      Recorder
	storeInterval time.Duration
	logger        zerolog.Logger

	accepted chan accepted
}

// NewManager creates a session for every enabled, configured service
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := opts.Config

	transport := opts.Transport
	if transport == nil {
		t, err := audioscrobbler.NewHTTPTransport(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		transport = t
	}
	cachePath := opts.CachePath
	if cachePath == nil {
		cachePath = config.CachePath
	}
	saveSessionKey := opts.SaveSessionKey
	if saveSessionKey == nil {
		saveSessionKey = config.SaveSessionKey
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	m := &Manager{
		transport:     transport,
		history:       opts.History,
		recorder:      recorder,
		storeInterval: cfg.StoreInterval,
		logger:        opts.Logger.With().Str("component", "scrobbler").Logger(),
		accepted:      make(chan accepted, 16),
	}

	for _, sc := range cfg.Services {
		logger := m.logger.With().Str("service", sc.ID).Logger()
		if !sc.Configured() {
			logger.Debug().Msg("Service not configured, skipping")
			continue
		}

		path, err := cachePath(sc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache path for %s: %w", sc.ID, err)
		}

		svc := &Service{ID: sc.ID, CachePath: path, config: sc}
		session, err := audioscrobbler.NewSession(audioscrobbler.Config{
			URL:           sc.URL,
			ClientID:      cfg.Client.ID,
			ClientVersion: cfg.Client.Version,
			Username:      sc.Username,
			PasswordHash:  sc.Hash(),
			APIURL:        sc.APIURL,
			APIKey:        sc.APIKey,
			APISecret:     sc.APISecret,
			SessionKey:    sc.SessionKey,
			Transport:     transport,
			Clock:         opts.Clock,
			Logger:        logAdapter{logger},
			Callbacks:     m.callbacks(svc, logger, saveSessionKey),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session for %s: %w", sc.ID, err)
		}
		svc.Session = session
		m.services = append(m.services, svc)
	}

	return m, nil
}

func (m *Manager) callbacks(svc *Service, logger zerolog.Logger, saveSessionKey func(id, key string) error) audioscrobbler.Callbacks {
	return audioscrobbler.Callbacks{
		OnError: func(fatal bool, message string) {
			m.recorder.Error(svc.ID, fatal)
			if fatal {
				logger.Error().Str("error", message).Msg("Service refused handshake")
				return
			}
			logger.Warn().Str("error", message).Msg("Service request failed")
		},
		OnScrobbled: func() {
			// The queue is empty now; persist that so a restart does not resend
			if err := svc.Session.Store(svc.CachePath); err != nil {
				logger.Warn().Err(err).Msg("Failed to store queue")
			}
		},
		OnSessionKey: func(key string) {
			svc.mu.Lock()
			svc.config.SessionKey = key
			svc.mu.Unlock()
			if err := saveSessionKey(svc.ID, key); err != nil {
				logger.Warn().Err(err).Msg("Failed to save session key")
				return
			}
			logger.Info().Msg("Saved web service session key")
		},
		OnAuthenticated: func() {
			logger.Info().Msg("Handshake succeeded")
		},
		OnAccepted: func(tracks []audioscrobbler.Track) {
			m.recorder.Accepted(svc.ID, len(tracks))
			logger.Info().Int("count", len(tracks)).Msg("Tracks scrobbled")
			if m.history == nil {
				return
			}
			select {
			case m.accepted <- accepted{service: svc.ID, tracks: tracks}:
			default:
				logger.Warn().Int("count", len(tracks)).Msg("History writer busy, dropping entries")
			}
		},
	}
}

// Services returns the active services
func (m *Manager) Services() []*Service {
	return m.services
}

// Run starts every session, restores their queues and handshakes. It
// blocks until ctx is cancelled and then stores every queue.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, svc := range m.services {
		if err := svc.Session.Load(svc.CachePath); err != nil {
			m.logger.Warn().Err(err).Str("service", svc.ID).Msg("Failed to load queue")
		} else if n := len(svc.Session.Queued()); n > 0 {
			m.logger.Info().Str("service", svc.ID).Int("pending", n).Msg("Restored pending tracks")
		}

		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			_ = svc.Session.Run(ctx)
		}(svc)
		svc.Session.Handshake()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writeHistory(ctx)
	}()

	var tick <-chan time.Time
	if m.storeInterval > 0 {
		ticker := time.NewTicker(m.storeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.StoreAll()
			return nil
		case <-tick:
			m.StoreAll()
		}
	}
}

func (m *Manager) writeHistory(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Flush what is already buffered
			for {
				select {
				case a := <-m.accepted:
					m.record(context.Background(), a)
				default:
					return
				}
			}
		case a := <-m.accepted:
			m.record(ctx, a)
		}
	}
}

func (m *Manager) record(ctx context.Context, a accepted) {
	if err := m.history.AddBatch(ctx, a.service, a.tracks); err != nil {
		m.logger.Warn().Err(err).Str("service", a.service).Msg("Failed to record history")
	}
}

// StoreAll writes every service queue to its cache file
func (m *Manager) StoreAll() {
	for _, svc := range m.services {
		if err := svc.Session.Store(svc.CachePath); err != nil {
			m.logger.Warn().Err(err).Str("service", svc.ID).Msg("Failed to store queue")
		}
	}
}

// TrackStarted makes t the now-playing track on every service
func (m *Manager) TrackStarted(t audioscrobbler.Track) {
	m.logger.Debug().
		Str("artist", t.Artist).
		Str("track", t.Title).
		Int("length", t.Length).
		Msg("Track started")
	for _, svc := range m.services {
		svc.Session.AddTrack(t)
	}
}

// TrackStopped finalizes the now-playing track on every service
func (m *Manager) TrackStopped() {
	for _, svc := range m.services {
		svc.Session.Stop()
	}
}

// PlaybackPaused finalizes the now-playing track. Resuming starts it over.
func (m *Manager) PlaybackPaused() {
	for _, svc := range m.services {
		svc.Session.Pause()
	}
}

// LoveToggled rates the now-playing track. It reports whether any service
// had a track to rate.
func (m *Manager) LoveToggled(on bool) bool {
	rated := false
	for _, svc := range m.services {
		if svc.Session.SetLove(on) {
			rated = true
			m.recorder.Love(svc.ID, on)
		}
	}
	return rated
}

// Love loves or unloves a track on every service with web service access
func (m *Manager) Love(artist, title string, on bool) {
	for _, svc := range m.services {
		svc.Session.Love(artist, title, on)
		m.recorder.Love(svc.ID, on)
	}
}

// Reload applies a changed configuration. Services whose credentials
// changed handshake again; new session keys are handed to the sessions.
// Adding or removing services requires a restart.
func (m *Manager) Reload(cfg *config.Config) {
	if t, ok := m.transport.(*audioscrobbler.HTTPTransport); ok {
		if err := t.SetProxy(cfg.Proxy); err != nil {
			m.logger.Warn().Err(err).Msg("Invalid proxy, keeping previous setting")
		}
	}

	for _, svc := range m.services {
		logger := m.logger.With().Str("service", svc.ID).Logger()

		next, ok := cfg.Service(svc.ID)
		if !ok || !next.Configured() {
			logger.Warn().Msg("Service removed from config, restart to stop it")
			continue
		}

		svc.mu.Lock()
		prev := svc.config
		svc.config = next
		svc.mu.Unlock()

		if !prev.CredentialsEqual(next) {
			logger.Info().Str("username", next.Username).Msg("Credentials changed, authenticating again")
			svc.Session.SetCredentials(next.Username, next.Hash())
		}
		if next.SessionKey != "" && next.SessionKey != prev.SessionKey {
			logger.Info().Msg("Session key changed")
			svc.Session.SetSessionKey(next.SessionKey)
		}
	}

	for _, sc := range cfg.Services {
		if sc.Configured() && m.service(sc.ID) == nil {
			m.logger.Warn().Str("service", sc.ID).Msg("New service in config, restart to start it")
		}
	}
}

func (m *Manager) service(id string) *Service {
	for _, svc := range m.services {
		if svc.ID == id {
			return svc
		}
	}
	return nil
}

// Statuses returns the protocol state of every service keyed by id
func (m *Manager) Statuses(ctx context.Context) map[string]audioscrobbler.Status {
	out := make(map[string]audioscrobbler.Status, len(m.services))
	for _, svc := range m.services {
		st, err := svc.Session.Status(ctx)
		if err != nil {
			continue
		}
		out[svc.ID] = st
	}
	return out
}

// logAdapter lets a zerolog.Logger serve as the session logger
type logAdapter struct {
	logger zerolog.Logger
}

func (a logAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug().Msgf(format, args...)
}

func (a logAdapter) Warnf(format string, args ...interface{}) {
	a.logger.Warn().Msgf(format, args...)
}
