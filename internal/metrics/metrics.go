// Package metrics exposes ledger activity as Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/FormCadence/internal/models"
)

const namespace = "formcadence"

// OtherPhase labels completions whose phase is not one of the known phases.
const OtherPhase = "other"

// Opts holds configuration options for Metrics.
type Opts struct {
	Phases []string
}

// Option defines a function for configuring Metrics.
type Option func(*Opts)

// WithPhases sets the phase names that get their own completion series.
func WithPhases(names ...string) Option {
	return func(o *Opts) {
		o.Phases = append(o.Phases, names...)
	}
}

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry
	phases   map[string]bool

	enrolled    prometheus.Counter
	events      *prometheus.CounterVec
	completions *prometheus.CounterVec
	skips       *prometheus.CounterVec
	navigation  *prometheus.CounterVec
	exports     *prometheus.CounterVec
	exportTime  prometheus.Histogram
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors. Without WithPhases every completion is
// labelled OtherPhase.
func New(opts ...Option) *Metrics {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	phases := make(map[string]bool, len(cfg.Phases))
	for _, p := range cfg.Phases {
		phases[p] = true
	}

	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		phases:   phases,
		enrolled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_enrolled_total",
			Help:      "Participants enrolled since start.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_triggered_total",
			Help:      "Clinical events fired, by day type.",
		}, []string{"day_type"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion saves, by phase and whether the save was a duplicate.",
		}, []string{"phase", "duplicate"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_total",
			Help:      "Skip requests, by result.",
		}, []string{"result"}),
		navigation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_actions_total",
			Help:      "Navigation decisions, by action type.",
		}, []string{"action"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Ledger exports, by result.",
		}, []string{"result"}),
		exportTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent writing a ledger export.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.enrolled, m.events, m.completions, m.skips, m.navigation, m.exports, m.exportTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ParticipantEnrolled() {
	if m == nil {
		return
	}
	m.enrolled.Inc()
}

func (m *Metrics) EventTriggered(dayTypeID string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(dayTypeID).Inc()
}

func (m *Metrics) CompletionRecorded(phase string, duplicate bool) {
	if m == nil {
		return
	}
	if !m.phases[phase] {
		phase = OtherPhase
	}
	m.completions.WithLabelValues(phase, strconv.FormatBool(duplicate)).Inc()
}

func (m *Metrics) SkipDecided(ok bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.skips.WithLabelValues(result).Inc()
}

func (m *Metrics) NavigationDecided(action models.ActionType) {
	if m == nil {
		return
	}
	m.navigation.WithLabelValues(string(action)).Inc()
}

// ExportFinished records one export run.
func (m *Metrics) ExportFinished(err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exports.WithLabelValues(result).Inc()
	m.exportTime.Observe(took.Seconds())
}
