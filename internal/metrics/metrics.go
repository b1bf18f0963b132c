// Package metrics exposes Prometheus instruments for the guide pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for guide processing. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Terminal outcomes by state and document type
	Documents *prometheus.CounterVec

	// Stage latencies: ocr, extract, resolve, store
	StageLatency *prometheus.HistogramVec

	// End-to-end processing latency per file
	ProcessLatency prometheus.Histogram

	// Files waiting in the work queue
	QueueDepth prometheus.Gauge

	// Files currently being processed
	InFlight prometheus.Gauge
}

// New creates Metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guias_documents_total",
			Help: "Processed guide files by terminal state and document type",
		}, []string{"state", "doc_type"}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guias_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "guias_process_duration_seconds",
			Help:    "Duration of processing one guide file end to end",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "guias_queue_depth",
			Help: "Guide files waiting to be processed",
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "guias_in_flight",
			Help: "Guide files currently being processed",
		}),
	}
}

// IncrementDocument records a terminal outcome.
func (m *Metrics) IncrementDocument(state, docType string) {
	if m != nil {
		m.Documents.WithLabelValues(state, docType).Inc()
	}
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveProcess records the end-to-end duration for one file.
func (m *Metrics) ObserveProcess(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}

// SetQueueDepth sets the number of queued files.
func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

// IncInFlight marks a file as started.
func (m *Metrics) IncInFlight() {
	if m != nil {
		m.InFlight.Inc()
	}
}

// DecInFlight marks a file as finished.
func (m *Metrics) DecInFlight() {
	if m != nil {
		m.InFlight.Dec()
	}
}
