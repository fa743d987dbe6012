// Package metrics exposes scrobbling activity in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

// StatusSource reports the protocol state of each service by id
type StatusSource interface {
	Statuses(ctx context.Context) map[string]audioscrobbler.Status
}

// Metrics holds the counters and the registry they are served from
type Metrics struct {
	registry *prometheus.Registry
	accepted *prometheus.CounterVec
	errors   *prometheus.CounterVec
	loves    *prometheus.CounterVec
}

// New creates the metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "scrobbler_tracks_accepted_total", Help: "Tracks accepted by a service"},
			[]string{"service"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "scrobbler_errors_total", Help: "Protocol errors reported by a service"},
			[]string{"service", "kind"},
		),
		loves: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "scrobbler_loves_total", Help: "Love and unlove requests"},
			[]string{"service", "action"},
		),
	}

	m.registry.MustRegister(m.accepted, m.errors, m.loves)
	return m
}

// CollectSessions adds per-service session gauges read from source on
// every scrape. It must be called at most once.
func (m *Metrics) CollectSessions(source StatusSource) {
	m.registry.MustRegister(newSessionCollector(source))
}

// Accepted counts tracks a service acknowledged
func (m *Metrics) Accepted(service string, n int) {
	m.accepted.WithLabelValues(service).Add(float64(n))
}

// Error counts a protocol error
func (m *Metrics) Error(service string, fatal bool) {
	kind := "temporary"
	if fatal {
		kind = "fatal"
	}
	m.errors.WithLabelValues(service, kind).Inc()
}

// Love counts a love or unlove request
func (m *Metrics) Love(service string, on bool) {
	action := "unlove"
	if on {
		action = "love"
	}
	m.loves.WithLabelValues(service, action).Inc()
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Metrics exposed at /metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sessionCollector turns session status snapshots into gauges
type sessionCollector struct {
	source StatusSource

	authenticated  *prometheus.Desc
	queued         *prometheus.Desc
	inFlight       *prometheus.Desc
	hardFailures   *prometheus.Desc
	handshakeDelay *prometheus.Desc
	pendingLoves   *prometheus.Desc
}

func newSessionCollector(source StatusSource) *sessionCollector {
	labels := []string{"service"}
	return &sessionCollector{
		source:         source,
		authenticated:  prometheus.NewDesc("scrobbler_session_authenticated", "1 when the service handshake succeeded", labels, nil),
		queued:         prometheus.NewDesc("scrobbler_queue_tracks", "Tracks waiting to be submitted", labels, nil),
		inFlight:       prometheus.NewDesc("scrobbler_submission_in_flight_tracks", "Tracks in the outstanding submission", labels, nil),
		hardFailures:   prometheus.NewDesc("scrobbler_submission_hard_failures", "Consecutive failed submissions", labels, nil),
		handshakeDelay: prometheus.NewDesc("scrobbler_handshake_delay_seconds", "Delay before the next handshake retry", labels, nil),
		pendingLoves:   prometheus.NewDesc("scrobbler_pending_loves", "Love requests waiting for the web service", labels, nil),
	}
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.authenticated
	ch <- c.queued
	ch <- c.inFlight
	ch <- c.hardFailures
	ch <- c.handshakeDelay
	ch <- c.pendingLoves
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for id, st := range c.source.Statuses(ctx) {
		authenticated := 0.0
		if st.State == audioscrobbler.StateAuthenticated {
			authenticated = 1
		}
		ch <- prometheus.MustNewConstMetric(c.authenticated, prometheus.GaugeValue, authenticated, id)
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(st.Queued), id)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(st.InFlight), id)
		ch <- prometheus.MustNewConstMetric(c.hardFailures, prometheus.GaugeValue, float64(st.HardFailures), id)
		ch <- prometheus.MustNewConstMetric(c.handshakeDelay, prometheus.GaugeValue, st.HandshakeDelay.Seconds(), id)
		ch <- prometheus.MustNewConstMetric(c.pendingLoves, prometheus.GaugeValue, float64(st.PendingLoves), id)
	}
}
