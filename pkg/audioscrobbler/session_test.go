package audioscrobbler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"
)

// fakeTransport hands every request to the test, which answers it.
type fakeTransport struct {
	requests chan *fakeRequest
}

type fakeRequest struct {
	Request
	done func(Response)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{requests: make(chan *fakeRequest, 16)}
}

func (f *fakeTransport) Do(_ context.Context, req Request, done func(Response)) {
	f.requests <- &fakeRequest{Request: req, done: done}
}

func (f *fakeTransport) next(t *testing.T) *fakeRequest {
	t.Helper()
	select {
	case req := <-f.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a request")
		return nil
	}
}

func (f *fakeTransport) expectNone(t *testing.T) {
	t.Helper()
	select {
	case req := <-f.requests:
		t.Fatalf("unexpected request to %s", req.URL)
	default:
	}
}

func (r *fakeRequest) reply(body string) {
	r.done(Response{StatusCode: 200, Body: body})
}

func (r *fakeRequest) form(t *testing.T) url.Values {
	t.Helper()
	v, err := url.ParseQuery(r.Body)
	if err != nil {
		t.Fatalf("failed to parse body %q: %v", r.Body, err)
	}
	return v
}

const (
	testURL       = "http://post.example.com/"
	testAPIURL    = "http://ws.example.com/2.0/"
	testSubmitURL = "http://post.example.com/submit"
	testNPURL     = "http://post.example.com/np"
	okHandshake   = "OK\nsid\n" + testNPURL + "\n" + testSubmitURL + "\n"
)

type harness struct {
	session   *Session
	transport *fakeTransport
	clock     *fakeClock
	errs      chan string
	scrobbled chan struct{}
	keys      chan string
	accepted  chan []Track
}

func newHarness(t *testing.T, modify func(*Config)) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		clock:     newFakeClock(time.Unix(1700000000, 0)),
		errs:      make(chan string, 8),
		scrobbled: make(chan struct{}, 8),
		keys:      make(chan string, 8),
		accepted:  make(chan []Track, 8),
	}

	cfg := Config{
		URL:           testURL,
		ClientID:      "tst",
		ClientVersion: "1.0",
		Username:      "rj",
		PasswordHash:  HashPassword("secret"),
		Transport:     h.transport,
		Clock:         h.clock,
		Callbacks: Callbacks{
			OnError: func(fatal bool, msg string) {
				h.errs <- fmt.Sprintf("%v:%s", fatal, msg)
			},
			OnScrobbled:  func() { h.scrobbled <- struct{}{} },
			OnSessionKey: func(key string) { h.keys <- key },
			OnAccepted:   func(tracks []Track) { h.accepted <- tracks },
		},
	}
	if modify != nil {
		modify(&cfg)
	}

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	h.session = s

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(cancel)

	return h
}

// status waits for the loop to process everything posted so far.
func (h *harness) status(t *testing.T) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.session.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return st
}

func (h *harness) authenticate(t *testing.T) {
	t.Helper()
	h.session.Handshake()
	req := h.transport.next(t)
	if !strings.Contains(req.URL, "hs=true") {
		t.Fatalf("expected handshake, got %s", req.URL)
	}
	req.reply(okHandshake)
	if st := h.status(t); st.State != StateAuthenticated {
		t.Fatalf("State = %v, want authenticated", st.State)
	}
}

func tracks(n int) []Track {
	out := make([]Track, n)
	for i := range out {
		out[i] = Track{
			Artist:    fmt.Sprintf("artist-%d", i),
			Title:     fmt.Sprintf("title-%d", i),
			Timestamp: 1600000000 + int64(i)*300,
			Source:    SourceUser,
			Length:    300,
		}
	}
	return out
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing url", Config{ClientID: "tst", ClientVersion: "1.0"}, true},
		{"missing client", Config{URL: testURL}, true},
		{"valid", Config{URL: testURL, ClientID: "tst", ClientVersion: "1.0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSession() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestSession_HandshakeRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Handshake()

	req := h.transport.next(t)
	want := testURL + "?hs=true&p=1.2.1&c=tst&v=1.0&u=rj&t=1700000000&a=9daa2f47bfef02e5ea27ddbe47714ca8"
	if req.URL != want {
		t.Errorf("URL = %q, want %q", req.URL, want)
	}
	if req.Body != "" {
		t.Errorf("handshake should be a GET, got body %q", req.Body)
	}

	// A second request while one is in flight is ignored.
	h.session.Handshake()
	if st := h.status(t); st.State != StateHandshaking {
		t.Errorf("State = %v, want handshaking", st.State)
	}
	h.transport.expectNone(t)

	req.reply(okHandshake)
	st := h.status(t)
	if st.State != StateAuthenticated || st.SessionID != "sid" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestSession_HandshakeURLWithQuery(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.URL = "http://turtle.example.com/?legacy=1" })
	h.session.Handshake()

	req := h.transport.next(t)
	if !strings.HasPrefix(req.URL, "http://turtle.example.com/?legacy=1&hs=true&p=1.2.1&") {
		t.Errorf("URL = %q", req.URL)
	}
}

func TestSession_HandshakeFatal(t *testing.T) {
	tests := []struct {
		body    string
		wantMsg string
	}{
		{"BANNED\n", "Client is banned"},
		{"BADAUTH\n", "Bad authorization"},
		{"BADTIME\n", "Wrong system time"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			h := newHarness(t, nil)
			h.session.Handshake()
			h.transport.next(t).reply(tt.body)

			st := h.status(t)
			if st.Fatal != tt.wantMsg {
				t.Errorf("Fatal = %q, want %q", st.Fatal, tt.wantMsg)
			}
			if st.State != StateUnauthenticated {
				t.Errorf("State = %v", st.State)
			}
			if n := len(h.clock.pending()); n != 0 {
				t.Errorf("%d retry timers scheduled after a fatal response", n)
			}

			select {
			case got := <-h.errs:
				if got != "true:"+tt.wantMsg {
					t.Errorf("OnError = %q", got)
				}
			default:
				t.Error("OnError not called")
			}
		})
	}
}

func TestSession_HandshakeBackoff(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Handshake()

	failures := []func(*fakeRequest){
		func(r *fakeRequest) { r.reply("FAILED Plugin bug\n") },
		func(r *fakeRequest) { r.done(Response{Err: errors.New("connection refused")}) },
		func(r *fakeRequest) { r.done(Response{StatusCode: 503}) },
		func(r *fakeRequest) { r.reply("") },
		func(r *fakeRequest) { r.reply("OK\nsid\n") },
		func(r *fakeRequest) { r.reply("WHAT\n") },
		func(r *fakeRequest) { r.reply("FAILED\n") },
		func(r *fakeRequest) { r.reply("FAILED\n") },
		func(r *fakeRequest) { r.reply("FAILED\n") },
	}
	want := []time.Duration{60, 120, 240, 480, 960, 1920, 3840, 7200, 7200}

	for i, fail := range failures {
		fail(h.transport.next(t))
		h.status(t)

		delay := want[i] * time.Second
		if !h.clock.fire(delay) {
			t.Fatalf("failure %d: no retry scheduled after %v (pending %d)", i, delay, len(h.clock.pending()))
		}
	}

	h.transport.next(t).reply(okHandshake)
	st := h.status(t)
	if st.State != StateAuthenticated {
		t.Fatalf("State = %v", st.State)
	}
	if st.HandshakeDelay != 60*time.Second {
		t.Errorf("HandshakeDelay = %v after success, want 60s", st.HandshakeDelay)
	}

	// The next failure starts from the floor again.
	h.session.SetCredentials("rj", HashPassword("secret"))
	h.transport.next(t).reply("FAILED\n")
	h.status(t)
	if !h.clock.fire(60 * time.Second) {
		t.Error("retry after reset not scheduled at 60s")
	}
}

func TestSession_SubmissionBatching(t *testing.T) {
	h := newHarness(t, nil)
	h.session.queue.Replace(tracks(120))
	h.authenticate(t)

	for i, wantCount := range []int{50, 50, 20} {
		req := h.transport.next(t)
		if req.URL != testSubmitURL {
			t.Fatalf("batch %d: URL = %q", i, req.URL)
		}
		form := req.form(t)
		if form.Get("s") != "sid" {
			t.Errorf("batch %d: s = %q", i, form.Get("s"))
		}
		if got := form.Get(fmt.Sprintf("a[%d]", wantCount-1)); got == "" {
			t.Errorf("batch %d: missing a[%d]", i, wantCount-1)
		}
		if form.Has(fmt.Sprintf("a[%d]", wantCount)) {
			t.Errorf("batch %d: more than %d tracks", i, wantCount)
		}
		if got, want := form.Get("a[0]"), fmt.Sprintf("artist-%d", i*50); got != want {
			t.Errorf("batch %d: a[0] = %q, want %q", i, got, want)
		}

		st := h.status(t)
		if st.InFlight != wantCount {
			t.Errorf("batch %d: InFlight = %d, want %d", i, st.InFlight, wantCount)
		}

		// No second submission while one is in flight.
		h.session.Submit()
		h.status(t)
		h.transport.expectNone(t)

		req.reply("OK\n")
		st = h.status(t)
		if want := 120 - 50*i - wantCount; st.Queued != want {
			t.Errorf("batch %d: Queued = %d, want %d", i, st.Queued, want)
		}

		accepted := <-h.accepted
		if len(accepted) != wantCount {
			t.Errorf("batch %d: OnAccepted got %d tracks", i, len(accepted))
		}
	}

	select {
	case <-h.scrobbled:
	case <-time.After(time.Second):
		t.Error("OnScrobbled not called after the queue drained")
	}
}

func TestSession_SubmitWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	h.session.queue.Replace(tracks(3))

	h.session.Submit()
	h.status(t)
	h.transport.expectNone(t)
}

func TestSession_HardFailuresInvalidate(t *testing.T) {
	h := newHarness(t, nil)
	h.session.queue.Replace(tracks(1))
	h.authenticate(t)

	failures := []func(*fakeRequest){
		func(r *fakeRequest) { r.reply("FAILED Plugin bug\n") },
		func(r *fakeRequest) { r.done(Response{StatusCode: 500}) },
		func(r *fakeRequest) { r.reply("garbage") },
	}

	for i, fail := range failures {
		req := h.transport.next(t)
		if req.URL != testSubmitURL {
			t.Fatalf("failure %d: URL = %q", i, req.URL)
		}
		fail(req)

		st := h.status(t)
		if st.InFlight != 0 {
			t.Errorf("failure %d: InFlight = %d, want 0", i, st.InFlight)
		}
		if i < len(failures)-1 {
			if st.HardFailures != i+1 || st.SessionID != "sid" {
				t.Fatalf("failure %d: Status() = %+v", i, st)
			}
			h.session.Submit()
		}
	}

	st := h.status(t)
	if st.SessionID != "" || st.HardFailures != 0 {
		t.Errorf("session not invalidated: %+v", st)
	}
	if st.Queued != 1 {
		t.Errorf("Queued = %d, want the track kept", st.Queued)
	}

	req := h.transport.next(t)
	if !strings.Contains(req.URL, "hs=true") {
		t.Errorf("expected a new handshake, got %s", req.URL)
	}
}

func TestSession_BadSessionInvalidatesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.session.queue.Replace(tracks(1))
	h.authenticate(t)

	h.transport.next(t).reply("BADSESSION\n")

	req := h.transport.next(t)
	if !strings.Contains(req.URL, "hs=true") {
		t.Fatalf("expected a new handshake, got %s", req.URL)
	}
	req.reply("OK\nsid2\n" + testNPURL + "\n" + testSubmitURL + "\n")

	resubmit := h.transport.next(t)
	if got := resubmit.form(t).Get("s"); got != "sid2" {
		t.Errorf("resubmission used session %q, want sid2", got)
	}
}

func TestSession_TrackLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate(t)

	first := Track{Artist: "Cher", Title: "Believe", Length: 200, Timestamp: 1700000000, Source: SourceUser}
	second := Track{Artist: "Madonna", Title: "Vogue", Length: 300, Timestamp: 1700000150, Source: SourceUser}

	h.session.AddTrack(first)
	h.session.AddTrack(second)

	req := h.transport.next(t)
	if req.URL != testSubmitURL {
		t.Fatalf("URL = %q, want submission", req.URL)
	}
	if got := req.form(t).Get("t[0]"); got != "Believe" {
		t.Errorf("t[0] = %q", got)
	}
	req.reply("OK\n")

	// Madonna played for 100 of 300 seconds: dropped.
	h.clock.Advance(250 * time.Second)
	h.session.Stop()
	st := h.status(t)
	if st.Queued != 0 || st.NowPlaying != nil {
		t.Errorf("Status() = %+v", st)
	}
	h.transport.expectNone(t)
}

func TestSession_PauseQueuesPlayedTrack(t *testing.T) {
	h := newHarness(t, nil)

	h.session.AddTrack(Track{Artist: "Cher", Title: "Believe", Length: 300, Timestamp: 1700000000})
	h.clock.Advance(160 * time.Second)
	h.session.Pause()

	if st := h.status(t); st.Queued != 1 {
		t.Errorf("Queued = %d, want 1", st.Queued)
	}
}

func TestSession_NowPlaying(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate(t)

	h.session.AddTrack(Track{Artist: "Cher", Title: "Believe", Length: 200, Timestamp: 1700000000})
	h.session.AddTrack(Track{Artist: "Simon & Garfunkel", Title: "The Boxer", Length: 305, Timestamp: 1700000001, Position: 3})
	h.status(t)

	if n := len(h.clock.pending()); n != 1 {
		t.Fatalf("pending timers = %d, want one debounced notification", n)
	}
	if !h.clock.fire(NowPlayingDelay) {
		t.Fatal("now playing not scheduled")
	}

	req := h.transport.next(t)
	if req.URL != testNPURL {
		t.Fatalf("URL = %q", req.URL)
	}
	want := "s=sid&a=Simon%20%26%20Garfunkel&t=The%20Boxer&b=&l=305&n=3&m="
	if req.Body != want {
		t.Errorf("Body = %q, want %q", req.Body, want)
	}

	req.reply("BADSESSION\n")
	if hs := h.transport.next(t); !strings.Contains(hs.URL, "hs=true") {
		t.Errorf("expected a new handshake, got %s", hs.URL)
	}
}

func TestSession_NowPlayingAfterLove(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate(t)

	h.session.AddTrack(Track{Artist: "Cher", Title: "Believe", Length: 200, Timestamp: 1700000000})
	if !h.session.SetLove(true) {
		t.Fatal("SetLove() = false with a track playing")
	}
	h.status(t)

	if !h.clock.fire(NowPlayingDelay) {
		t.Fatal("now playing not scheduled")
	}
	req := h.transport.next(t)
	if req.URL != testNPURL {
		t.Fatalf("URL = %q, want now playing", req.URL)
	}
	if got := req.form(t).Get("t"); got != "Believe" {
		t.Errorf("t = %q", got)
	}
}

func TestSession_CredentialsChangedDuringHandshake(t *testing.T) {
	tests := []struct {
		name  string
		stale string
	}{
		{"stale rejection", "BADAUTH\n"},
		{"stale success", okHandshake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.session.Handshake()
			stale := h.transport.next(t)

			h.session.SetCredentials("someone", HashPassword("fixed"))
			fresh := h.transport.next(t)
			if !strings.Contains(fresh.URL, "u=someone") {
				t.Fatalf("expected handshake with new username, got %s", fresh.URL)
			}

			stale.reply(tt.stale)
			st := h.status(t)
			if st.State != StateHandshaking || st.Fatal != "" || st.SessionID != "" {
				t.Errorf("Status() after stale reply = %+v", st)
			}
			select {
			case got := <-h.errs:
				t.Errorf("OnError(%q) for a stale reply", got)
			default:
			}

			fresh.reply(okHandshake)
			if st := h.status(t); st.State != StateAuthenticated {
				t.Errorf("State = %v, want authenticated", st.State)
			}
		})
	}
}

func TestSession_NowPlayingCancelledByStop(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate(t)

	h.session.AddTrack(Track{Artist: "Cher", Title: "Believe", Length: 200, Timestamp: 1700000000})
	h.session.Stop()
	h.status(t)

	if n := len(h.clock.pending()); n != 0 {
		t.Errorf("pending timers = %d after stop", n)
	}
}

func TestSubmissionBody(t *testing.T) {
	got := submissionBody("sid", []Track{
		{Artist: "Simon & Garfunkel", Title: "The Boxer", Timestamp: 1700000000, Source: SourceUser, Length: 305},
		{Artist: "Cher", Title: "Believe", Timestamp: 1700000400, Source: SourceUser, Rating: RatingLove, Length: 239, Album: "Believe", Position: 1, MBID: "abc"},
	})

	want := "s=sid" +
		"&a[0]=Simon%20%26%20Garfunkel&t[0]=The%20Boxer&i[0]=1700000000&o[0]=P&r[0]=&l[0]=305&b[0]=&n[0]=&m[0]=" +
		"&a[1]=Cher&t[1]=Believe&i[1]=1700000400&o[1]=P&r[1]=L&l[1]=239&b[1]=Believe&n[1]=1&m[1]=abc"
	if got != want {
		t.Errorf("submissionBody() =\n%s\nwant\n%s", got, want)
	}
}

func TestSession_StatusAfterStop(t *testing.T) {
	s, err := NewSession(Config{URL: testURL, ClientID: "tst", ClientVersion: "1.0", Transport: newFakeTransport()})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := s.Status(context.Background()); err == nil {
		t.Error("Status() on a stopped session returned no error")
	}
}
