package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"minewatch/internal/alerts"
	"minewatch/internal/store"
)

// Run outcomes recorded by Metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors updated by the orchestrator. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	fetch    prometheus.Histogram
	inserted *prometheus.CounterVec
	alerts   *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minewatch",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minewatch",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		fetch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minewatch",
			Subsystem: "pipeline",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of imagery provider fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		inserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minewatch",
			Subsystem: "store",
			Name:      "rows_inserted_total",
			Help:      "Rows inserted by table.",
		}, []string{"table"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minewatch",
			Subsystem: "pipeline",
			Name:      "alerts_total",
			Help:      "Classified alerts by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeFetch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetch.Observe(elapsed.Seconds())
}

func (m *Metrics) observeInserted(c store.Counts) {
	if m == nil {
		return
	}
	m.inserted.WithLabelValues("pixel_timeseries").Add(float64(c.Observations))
	m.inserted.WithLabelValues("violation_pixels").Add(float64(c.Violations))
	m.inserted.WithLabelValues("violation_alerts").Add(float64(c.Alerts))
}

func (m *Metrics) observeAlerts(byKind map[alerts.Kind]int) {
	if m == nil {
		return
	}
	for kind, n := range byKind {
		m.alerts.WithLabelValues(string(kind)).Add(float64(n))
	}
}
