package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRevocationMetricsRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewRevocationMetrics(RevocationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewRevocationMetrics returned error: %v", err)
	}

	metrics.ObserveCheck("revoked", 2*time.Millisecond)
	metrics.ObserveCheck("allowed", time.Millisecond)
	metrics.ObserveCheck("allowed", time.Millisecond)
	metrics.IncStoreError("get")
	metrics.AddSwept(4)
	metrics.AddSwept(0)

	if got := testutil.ToFloat64(metrics.Checks.WithLabelValues("allowed")); got != 2 {
		t.Fatalf("expected 2 allowed checks, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("get")); got != 1 {
		t.Fatalf("expected 1 store error, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Swept); got != 4 {
		t.Fatalf("expected 4 swept entries, got %f", got)
	}
	if samples := testutil.CollectAndCount(metrics.CheckDuration); samples != 2 {
		t.Fatalf("expected 2 histogram series, got %d", samples)
	}
}

func TestRevocationMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewRevocationMetrics(RevocationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first NewRevocationMetrics returned error: %v", err)
	}
	second, err := NewRevocationMetrics(RevocationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second NewRevocationMetrics returned error: %v", err)
	}

	second.IncStoreError("put")
	if got := testutil.ToFloat64(first.StoreErrors.WithLabelValues("put")); got != 1 {
		t.Fatalf("expected collectors to be shared, got %f", got)
	}
}

func TestRevocationMetricsNilSafe(t *testing.T) {
	var metrics *RevocationMetrics
	metrics.ObserveCheck("allowed", time.Millisecond)
	metrics.IncStoreError("get")
	metrics.AddSwept(1)
}
