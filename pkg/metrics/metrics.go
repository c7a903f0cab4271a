// Package metrics exposes Prometheus instrumentation for the discovery race
// and the device session.
//
// Metrics collected:
//   - ws3ds_dial_attempts_total: dials made by all candidates
//   - ws3ds_promotions_total: candidates promoted to the active session
//   - ws3ds_stale_events_total: events dropped from superseded addresses
//   - ws3ds_frames_sent_total: binary frames sent to the device
//   - ws3ds_messages_sent_total: text messages sent, by kind
//   - ws3ds_searches_total: finished searches, by result
//   - ws3ds_search_duration_seconds: time from search start to its outcome
//   - ws3ds_candidates_active: candidates currently dialing or open
//   - ws3ds_session_state: current session state as its numeric value
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search results recorded by SearchFinished.
const (
	ResultConnected = "connected"
	ResultCanceled  = "canceled"
	ResultTimeout   = "timeout"
)

// Config configures metric registration.
type Config struct {
	// Namespace prefixes every metric name (default: "ws3ds").
	Namespace string

	// ConstLabels are added to all metrics.
	ConstLabels prometheus.Labels

	// Registry receives the collectors (default: prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

// Option configures metric registration.
type Option func(*Config)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the registered collectors.
type Metrics struct {
	dialAttempts     prometheus.Counter
	promotions       prometheus.Counter
	staleEvents      prometheus.Counter
	framesSent       prometheus.Counter
	messagesSent     *prometheus.CounterVec
	searches         *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	candidatesActive prometheus.Gauge
	sessionState     prometheus.Gauge
}

// New registers the collectors. Registering twice on the same registry
// panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "ws3ds",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		dialAttempts: counter("dial_attempts_total", "Total dial attempts made by discovery candidates"),
		promotions:   counter("promotions_total", "Total candidates promoted to the active session"),
		staleEvents:  counter("stale_events_total", "Total events dropped from superseded addresses"),
		framesSent:   counter("frames_sent_total", "Total binary frames sent to the device"),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_sent_total",
			Help:        "Total text messages sent to the device by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "searches_total",
			Help:        "Total finished searches by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		searchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "search_duration_seconds",
			Help:        "Time from search start to its outcome",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		candidatesActive: gauge("candidates_active", "Candidates currently dialing or open"),
		sessionState:     gauge("session_state", "Current session state"),
	}
}

// DialAttempt records one dial.
func (m *Metrics) DialAttempt() {
	if m == nil {
		return
	}
	m.dialAttempts.Inc()
}

// Promotion records a promoted candidate.
func (m *Metrics) Promotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

// StaleEvent records a dropped stale event.
func (m *Metrics) StaleEvent() {
	if m == nil {
		return
	}
	m.staleEvents.Inc()
}

// FrameSent records a binary frame.
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

// MessageSent records a text message of the given kind.
func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(kind).Inc()
}

// SearchFinished records a search outcome and how long it took.
func (m *Metrics) SearchFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(result).Inc()
	m.searchDuration.Observe(elapsed.Seconds())
}

// CandidateStarted increments the active candidate gauge.
func (m *Metrics) CandidateStarted() {
	if m == nil {
		return
	}
	m.candidatesActive.Inc()
}

// CandidateStopped decrements the active candidate gauge.
func (m *Metrics) CandidateStopped() {
	if m == nil {
		return
	}
	m.candidatesActive.Dec()
}

// SetSessionState records the numeric session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}
