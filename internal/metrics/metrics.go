package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replenishment_params"

// Metrics groups the collectors the service updates.
type Metrics struct {
	Resolutions            *prometheus.CounterVec
	ResolveErrors          prometheus.Counter
	ConfigWrites           *prometheus.CounterVec
	SnapshotVersion        prometheus.Gauge
	CapacityAdjustments    *prometheus.CounterVec
	ClassificationRuns     *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Effective parameter resolutions by source (cache or engine).",
		}, []string{"source"}),
		ResolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_errors_total",
			Help:      "Resolutions rejected, e.g. for an unknown class.",
		}),
		ConfigWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_writes_total",
			Help:      "Configuration writes by entity and outcome.",
		}, []string{"entity", "outcome"}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_version",
			Help:      "Version of the configuration snapshot currently served.",
		}),
		CapacityAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_adjustments_total",
			Help:      "Order suggestions changed by a capacity constraint.",
		}, []string{"adjustment"}),
		ClassificationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_runs_total",
			Help:      "ABC classification runs by outcome.",
		}, []string{"outcome"}),
		ClassificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Wall time of ABC classification runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Resolutions,
		m.ResolveErrors,
		m.ConfigWrites,
		m.SnapshotVersion,
		m.CapacityAdjustments,
		m.ClassificationRuns,
		m.ClassificationDuration,
	)
	return m
}

// ObserveWrite records a configuration write.
func (m *Metrics) ObserveWrite(entity string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.ConfigWrites.WithLabelValues(entity, outcome).Inc()
}

// ObserveClassification records a finished classification run.
func (m *Metrics) ObserveClassification(started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.ClassificationRuns.WithLabelValues(outcome).Inc()
	m.ClassificationDuration.Observe(time.Since(started).Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
