// Package metrics provides Prometheus metrics for the contact-angle measurement pipeline.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for per-method validity.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
)

// Manager owns the pipeline metrics.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	measurements  prometheus.Counter
	stageDuration *prometheus.HistogramVec
	aborts        *prometheus.CounterVec
	methodOutcome *prometheus.CounterVec
	bootstrapKept prometheus.Histogram
}

var (
	mu             sync.RWMutex
	customRegistry = prometheus.NewRegistry()
	globalManager  = NewManager(WithPrometheusRegistry(customRegistry))
)

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// default Prometheus registerer is used.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "contact_angle",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.measurements = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "measurements_total",
		Help:      "Total number of completed contact-angle measurements",
	})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock time spent in each pipeline stage",
		Buckets:   m.histogramBuckets,
	}, []string{"stage"})

	m.aborts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aborts_total",
		Help:      "Measurements aborted, by failing stage",
	}, []string{"stage"})

	m.methodOutcome = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "method_outcomes_total",
		Help:      "Fit-method validity outcomes, by method and outcome",
	}, []string{"method", "outcome"})

	m.bootstrapKept = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bootstrap_samples_kept",
		Help:      "Bootstrap resamples that passed the quality gates",
		Buckets:   []float64{0, 12, 25, 50, 75, 100, 200},
	})
}

// RecordStageDuration observes the time spent in a stage.
func (m *Manager) RecordStageDuration(stage string, seconds float64) {
	if !m.enabled {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordAbort counts a measurement that stopped at stage.
func (m *Manager) RecordAbort(stage string) {
	if !m.enabled {
		return
	}
	m.aborts.WithLabelValues(stage).Inc()
}

// RecordMethodOutcome counts one gated fit result.
func (m *Manager) RecordMethodOutcome(method string, valid bool) {
	if !m.enabled {
		return
	}
	outcome := OutcomeInvalid
	if valid {
		outcome = OutcomeValid
	}
	m.methodOutcome.WithLabelValues(method, outcome).Inc()
}

// RecordMeasurement counts a completed measurement.
func (m *Manager) RecordMeasurement() {
	if !m.enabled {
		return
	}
	m.measurements.Inc()
}

// RecordBootstrapKept observes how many resamples survived.
func (m *Manager) RecordBootstrapKept(n int) {
	if !m.enabled {
		return
	}
	m.bootstrapKept.Observe(float64(n))
}

// WriteTextfile dumps the manager's registry in the Prometheus text format,
// the way node_exporter's textfile collector expects it.
func (m *Manager) WriteTextfile(path string) error {
	if m.gatherer == nil {
		return ErrNoGatherer
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteTextfile, err)
	}
	return nil
}

// Default returns the process-wide manager bound to the package registry.
func Default() *Manager {
	mu.RLock()
	defer mu.RUnlock()
	return globalManager
}

// SetEnabled toggles recording on the process-wide manager.
func SetEnabled(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	globalManager.enabled = enabled
}

// Package-level helpers over the global manager.

func RecordStageDuration(stage string, seconds float64) { Default().RecordStageDuration(stage, seconds) }
func RecordAbort(stage string)                          { Default().RecordAbort(stage) }
func RecordMethodOutcome(method string, valid bool)     { Default().RecordMethodOutcome(method, valid) }
func RecordMeasurement()                                { Default().RecordMeasurement() }
func RecordBootstrapKept(n int)                         { Default().RecordBootstrapKept(n) }
func WriteTextfile(path string) error                   { return Default().WriteTextfile(path) }
