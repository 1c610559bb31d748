// Package metrics bundles the Prometheus collectors for the extraction
// pipeline on a dedicated registry, so embedding applications can expose
// them without colliding with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for the reconciliation pipeline.
type Metrics struct {
	Registry            *prometheus.Registry
	ProductsProcessed   prometheus.Counter
	ProductsFailed      prometheus.Counter
	SuccessRate         prometheus.Gauge
	RecognitionRetries  prometheus.Counter
	RecognitionDuration prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// New constructs and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labelscan_products_processed_total",
		Help: "Total number of product identifiers processed.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labelscan_products_failed_total",
		Help: "Total number of products whose extraction did not succeed.",
	})
	successRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labelscan_success_rate",
		Help: "Fraction of processed products with a usable merged record.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labelscan_recognition_retries_total",
		Help: "Total number of OCR recognition retries scheduled.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "labelscan_recognition_duration_seconds",
		Help:    "Latency of single recognition attempts.",
		Buckets: prometheus.DefBuckets,
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labelscan_errors_total",
		Help: "Total number of pipeline errors by kind.",
	}, []string{"kind"})

	registry.MustRegister(processed, failed, successRate, retries, duration, errorsTotal)

	return &Metrics{
		Registry:            registry,
		ProductsProcessed:   processed,
		ProductsFailed:      failed,
		SuccessRate:         successRate,
		RecognitionRetries:  retries,
		RecognitionDuration: duration,
		ErrorsTotal:         errorsTotal,
	}
}

// IncProcessed increments the processed-products counter.
func (m *Metrics) IncProcessed() {
	if m == nil {
		return
	}
	m.ProductsProcessed.Inc()
}

// IncFailed increments the failed-products counter.
func (m *Metrics) IncFailed() {
	if m == nil {
		return
	}
	m.ProductsFailed.Inc()
}

// SetSuccessRate updates the success-rate gauge.
func (m *Metrics) SetSuccessRate(rate float64) {
	if m == nil {
		return
	}
	m.SuccessRate.Set(rate)
}

// IncRetries increments the recognition-retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RecognitionRetries.Inc()
}

// ObserveRecognition records the duration of one recognition attempt.
func (m *Metrics) ObserveRecognition(d time.Duration) {
	if m == nil {
		return
	}
	m.RecognitionDuration.Observe(d.Seconds())
}

// IncError increments the error counter for the given kind label.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}
