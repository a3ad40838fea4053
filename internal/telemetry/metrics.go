package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestDurationMs      *prometheus.HistogramVec
	TokensTotal            *prometheus.CounterVec
	StreamChunksTotal      *prometheus.CounterVec
	RetrievalPassagesTotal *prometheus.CounterVec
	RetrievalFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ragway_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"backend", "model", "status", "stream"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragway_request_duration_ms",
			Help:    "Total request duration in milliseconds (including backend latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"backend", "model"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ragway_tokens_total",
			Help: "Total tokens reported by backends. Backends without token accounting contribute nothing.",
		}, []string{"model", "direction"}),

		StreamChunksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ragway_stream_chunks_total",
			Help: "Total canonical chunks emitted to streaming clients.",
		}, []string{"backend"}),

		RetrievalPassagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ragway_retrieval_passages_total",
			Help: "Total passages retrieved per collection.",
		}, []string{"collection"}),

		RetrievalFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ragway_retrieval_failures_total",
			Help: "Total per-collection retrieval failures (skipped, never surfaced).",
		}, []string{"collection"}),
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Backend          string
	Model            string
	Status           string
	Stream           bool
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	stream := "false"
	if labels.Stream {
		stream = "true"
	}
	m.RequestTotal.WithLabelValues(labels.Backend, labels.Model, labels.Status, stream).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Backend, labels.Model).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
}

// RecordStreamChunks adds emitted chunk counts for one streaming request.
func (m *Metrics) RecordStreamChunks(backend string, chunks int) {
	if chunks > 0 {
		m.StreamChunksTotal.WithLabelValues(backend).Add(float64(chunks))
	}
}

// RecordRetrieval records the passage count of one successful collection query.
func (m *Metrics) RecordRetrieval(collection string, passages int) {
	m.RetrievalPassagesTotal.WithLabelValues(collection).Add(float64(passages))
}

// RecordRetrievalFailure records one skipped collection.
func (m *Metrics) RecordRetrievalFailure(collection string) {
	m.RetrievalFailuresTotal.WithLabelValues(collection).Inc()
}
