package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type IntakeMetrics struct {
	service string

	batchesTotal    *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	unitsTotal      *prometheus.CounterVec
	validCount      prometheus.Histogram
	conflictsTotal  prometheus.Counter
	storeErrors     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	breakerSwitches *prometheus.CounterVec
}

func NewIntakeMetrics(registerer prometheus.Registerer, service string) *IntakeMetrics {
	constLabels := prometheus.Labels{"service": service}

	m := &IntakeMetrics{
		service: service,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "batch",
			Name:        "total",
			Help:        "Processed batches by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome", "product_line"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "intake",
			Subsystem:   "batch",
			Name:        "duration_seconds",
			Help:        "Batch processing duration in seconds.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			ConstLabels: constLabels,
		}),
		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "recognition",
			Name:        "units_total",
			Help:        "Recognized units by status and detected document type.",
			ConstLabels: constLabels,
		}, []string{"status", "document_type"}),
		validCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "intake",
			Subsystem:   "session",
			Name:        "valid_documents",
			Help:        "Accepted document count per verdict.",
			Buckets:     []float64{0, 1, 2, 3, 4, 5, 6},
			ConstLabels: constLabels,
		}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "session",
			Name:        "version_conflicts_total",
			Help:        "Optimistic write conflicts on the session store.",
			ConstLabels: constLabels,
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "session",
			Name:        "store_errors_total",
			Help:        "Session store failures by operation.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "intake",
			Subsystem:   "breaker",
			Name:        "state",
			Help:        "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		breakerSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "breaker",
			Name:        "transitions_total",
			Help:        "Circuit breaker transitions by target state.",
			ConstLabels: constLabels,
		}, []string{"operation", "to"}),
	}

	registerer.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.unitsTotal,
		m.validCount,
		m.conflictsTotal,
		m.storeErrors,
		m.breakerState,
		m.breakerSwitches,
	)
	return m
}

// ObserveBatch records one ProcessBatch call. verdict is nil when err is set.
// The product_line label only carries names resolved by the rule book, so
// rejected requests share the "unknown" series.
func (m *IntakeMetrics) ObserveBatch(duration time.Duration, verdict *domain.Verdict, err error) {
	m.batchDuration.Observe(duration.Seconds())

	outcome := "error"
	switch {
	case err == nil && verdict.Complete:
		outcome = "complete"
	case err == nil:
		outcome = "incomplete"
	case domain.IsKind(err, domain.ErrInvalidInput):
		outcome = "invalid"
	}
	productLine := "unknown"
	if err == nil && verdict != nil && verdict.ProductLine != "" {
		productLine = verdict.ProductLine
	}
	m.batchesTotal.WithLabelValues(outcome, productLine).Inc()
	if verdict == nil {
		return
	}

	m.validCount.Observe(float64(verdict.ValidCount))
	for _, rec := range verdict.Records {
		status := "success"
		if !rec.Success {
			status = "failed"
		}
		docType := string(rec.DocumentType)
		if docType == "" {
			docType = string(domain.DocTypeUnknown)
		}
		m.unitsTotal.WithLabelValues(status, docType).Inc()
	}
}

func (m *IntakeMetrics) SessionConflict() {
	m.conflictsTotal.Inc()
}

func (m *IntakeMetrics) SessionStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// BreakerStateChanged matches resilience.StateListener.
func (m *IntakeMetrics) BreakerStateChanged(operation string, _ gobreaker.State, to gobreaker.State) {
	m.breakerState.WithLabelValues(operation).Set(breakerGaugeValue(to))
	m.breakerSwitches.WithLabelValues(operation, to.String()).Inc()
}

func breakerGaugeValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
