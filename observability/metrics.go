// Package observability provides Prometheus metrics for simulation runs.
package observability

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the counters updated by the simulation runner. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	PathsDrawn       *prometheus.CounterVec
	DefaultsObserved *prometheus.CounterVec
	ExhaustedDraws   prometheus.Counter
	ContinuationRuns prometheus.Counter
	WorkersActive    prometheus.Gauge
	RunDuration      *prometheus.HistogramVec
}

// NewMetrics registers the metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.NewRegistry())
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "ttdsim"
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PathsDrawn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "paths_drawn_total",
			Help:      "Total number of paths drawn by copula type",
		}, []string{"copula"}),
		DefaultsObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "defaults_observed_total",
			Help:      "Total number of defaults across drawn paths by copula type",
		}, []string{"copula"}),
		ExhaustedDraws: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "exhausted_draws_total",
			Help:      "Draw calls that returned the exhausted sentinel",
		}),
		ContinuationRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "continuations_total",
			Help:      "Continuation samplers built for two-stage runs",
		}),
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "workers_active",
			Help:      "Number of workers currently drawing paths",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a simulation run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"status"}),
	}
}

// RecordPath counts one drawn path and its defaults.
func (m *Metrics) RecordPath(copulaType string, defaults int) {
	if m == nil {
		return
	}
	m.PathsDrawn.WithLabelValues(copulaType).Inc()
	m.DefaultsObserved.WithLabelValues(copulaType).Add(float64(defaults))
}

// RecordExhausted counts a Draw that returned the exhausted sentinel.
func (m *Metrics) RecordExhausted() {
	if m == nil {
		return
	}
	m.ExhaustedDraws.Inc()
}

// RecordContinuation counts a continuation sampler build.
func (m *Metrics) RecordContinuation() {
	if m == nil {
		return
	}
	m.ContinuationRuns.Inc()
}

// WorkerStarted and WorkerDone track the active worker gauge.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.WorkersActive.Inc()
}

func (m *Metrics) WorkerDone() {
	if m == nil {
		return
	}
	m.WorkersActive.Dec()
}

// ObserveRun records the duration of a run, labelled "ok" or "error".
func (m *Metrics) ObserveRun(seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunDuration.WithLabelValues(status).Observe(seconds)
}

// WriteText writes every registered metric in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
