package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestObserveBatchCountsOutcomesAndUnits(t *testing.T) {
	m := NewIntakeMetrics(prometheus.NewRegistry(), "intake-api")

	m.ObserveBatch(time.Second, &domain.Verdict{
		ProductLine: "VEHICLE_REG",
		Complete:    false,
		ValidCount:  1,
		Records: []domain.ProcessedRecord{
			{Success: true, DocumentType: domain.DocTypeIdentity},
			{Success: false},
		},
	}, nil)
	m.ObserveBatch(time.Second, nil, domain.InvalidInput("process batch", "clientId is required"))
	m.ObserveBatch(time.Second, nil, errors.New("redis down"))

	if got := metricValue(t, m.batchesTotal.WithLabelValues("incomplete", "VEHICLE_REG")); got != 1 {
		t.Fatalf("incomplete batches = %v", got)
	}
	if got := metricValue(t, m.batchesTotal.WithLabelValues("invalid", "unknown")); got != 1 {
		t.Fatalf("invalid batches = %v", got)
	}
	if got := metricValue(t, m.batchesTotal.WithLabelValues("error", "unknown")); got != 1 {
		t.Fatalf("error batches = %v", got)
	}
	if got := metricValue(t, m.unitsTotal.WithLabelValues("failed", "UNKNOWN")); got != 1 {
		t.Fatalf("failed units = %v", got)
	}
	if got := metricValue(t, m.unitsTotal.WithLabelValues("success", "IDENTITY")); got != 1 {
		t.Fatalf("successful units = %v", got)
	}
}

func TestObserveBatchIgnoresProductLineOfFailedCalls(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewIntakeMetrics(registry, "intake-api")

	for i := 0; i < 20; i++ {
		m.ObserveBatch(time.Millisecond, &domain.Verdict{ProductLine: "junk"}, domain.WrapError(domain.ErrUnknownProductLine, "rules", errors.New("junk")))
	}
	m.ObserveBatch(time.Millisecond, &domain.Verdict{ProductLine: "TRAVEL", Complete: true}, nil)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	series := 0
	for _, family := range families {
		if family.GetName() == "intake_batch_total" {
			series = len(family.GetMetric())
		}
	}
	if series != 2 {
		t.Fatalf("intake_batch_total series = %d, want 2", series)
	}
	if got := metricValue(t, m.batchesTotal.WithLabelValues("error", "unknown")); got != 20 {
		t.Fatalf("error batches = %v", got)
	}
	if got := metricValue(t, m.batchesTotal.WithLabelValues("complete", "TRAVEL")); got != 1 {
		t.Fatalf("complete batches = %v", got)
	}
}

func TestBreakerStateChangedSetsGauge(t *testing.T) {
	m := NewIntakeMetrics(prometheus.NewRegistry(), "intake-api")

	m.BreakerStateChanged("recognition.recognize", gobreaker.StateClosed, gobreaker.StateOpen)
	if got := metricValue(t, m.breakerState.WithLabelValues("recognition.recognize")); got != 2 {
		t.Fatalf("breaker gauge = %v, want 2", got)
	}
	m.BreakerStateChanged("recognition.recognize", gobreaker.StateOpen, gobreaker.StateHalfOpen)
	if got := metricValue(t, m.breakerState.WithLabelValues("recognition.recognize")); got != 1 {
		t.Fatalf("breaker gauge = %v, want 1", got)
	}
	if got := metricValue(t, m.breakerSwitches.WithLabelValues("recognition.recognize", "open")); got != 1 {
		t.Fatalf("open transitions = %v", got)
	}
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}
