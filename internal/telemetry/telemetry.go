// Package telemetry exposes run metrics in the Prometheus format.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quorum"

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	candidates    *prometheus.CounterVec
	rounds        prometheus.Histogram
	score         prometheus.Histogram
	events        *prometheus.CounterVec
	eventsDropped prometheus.Counter
	activeRuns    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Finished candidates by review outcome.",
		}, []string{"passed"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_rounds",
			Help:      "Rounds a candidate needed to reach its terminal state.",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_score",
			Help:      "Aggregate score of finished candidates.",
			Buckets:   prometheus.LinearBuckets(0.5, 0.5, 10),
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Run events published by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped on full subscriber queues.",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently executing.",
		}),
	}
	m.reg.MustRegister(
		m.runs, m.runDuration, m.candidates, m.rounds, m.score,
		m.events, m.eventsDropped, m.activeRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the metrics page.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RunStarted marks a run as executing.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished records a terminal run.
func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// CandidateFinished records a candidate's terminal state.
func (m *Metrics) CandidateFinished(passed bool, rounds int, score float64) {
	if m == nil {
		return
	}
	label := "false"
	if passed {
		label = "true"
	}
	m.candidates.WithLabelValues(label).Inc()
	m.rounds.Observe(float64(rounds))
	m.score.Observe(score)
}

// EventPublished counts a published event.
func (m *Metrics) EventPublished(typ string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ).Inc()
}

// EventDropped counts an event lost on a full subscriber queue.
func (m *Metrics) EventDropped(string) {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
