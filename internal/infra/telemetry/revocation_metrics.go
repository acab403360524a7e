package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carehub/clinic-api/internal/core/port"
)

// RevocationMetricsOptions configures the revocation collectors.
type RevocationMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// RevocationMetrics records revocation check outcomes, store failures and sweep volume.
type RevocationMetrics struct {
	Checks        *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	StoreErrors   *prometheus.CounterVec
	Swept         prometheus.Counter
}

// NewRevocationMetrics constructs and registers the collectors.
func NewRevocationMetrics(opts RevocationMetricsOptions) (*RevocationMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "clinic"
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}
	}

	checks, err := RegisterCollector(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "checks_total",
		Help:      "Revocation checks partitioned by outcome (allowed, revoked, error).",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := RegisterCollector(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "check_duration_seconds",
		Help:      "Latency of revocation checks in seconds partitioned by outcome.",
		Buckets:   buckets,
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	storeErrors, err := RegisterCollector(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "store_errors_total",
		Help:      "Revocation store failures partitioned by operation.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	swept, err := RegisterCollector(opts.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "swept_entries_total",
		Help:      "Expired revocation entries removed by the sweeper.",
	}))
	if err != nil {
		return nil, err
	}

	return &RevocationMetrics{
		Checks:        checks,
		CheckDuration: duration,
		StoreErrors:   storeErrors,
		Swept:         swept,
	}, nil
}

// ObserveCheck records a revocation decision.
func (m *RevocationMetrics) ObserveCheck(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome).Inc()
	m.CheckDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncStoreError records a failed store operation.
func (m *RevocationMetrics) IncStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// AddSwept records entries removed by a sweep.
func (m *RevocationMetrics) AddSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.Swept.Add(float64(count))
}

var _ port.RevocationMetrics = (*RevocationMetrics)(nil)
