// Package observability provides Prometheus metrics for completion calls
// and HTTP middleware for the servers shipped with groqchat.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// FirstChunkBuckets covers time-to-first-chunk, which is much shorter than
// a full completion.
var FirstChunkBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Outcome label values. Failures use the completion error kind.
const (
	OutcomeOK = "ok"
)

var (
	// CompletionRequestsTotal counts dispatched completions by mode
	// (buffered/stream), model and outcome.
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groqchat_completion_requests_total",
			Help: "Completion requests",
		},
		[]string{"mode", "model", "outcome"},
	)

	// CompletionLatency records the wall time of a completion call in seconds.
	CompletionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groqchat_completion_latency_seconds",
			Help:    "Completion latency",
			Buckets: LLMBuckets,
		},
		[]string{"mode", "model"},
	)

	// CompletionTokensTotal counts tokens by direction (prompt/completion).
	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groqchat_completion_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// StreamChunksTotal counts decoded stream chunks.
	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groqchat_stream_chunks_total",
			Help: "Stream chunks received",
		},
		[]string{"model"},
	)

	// StreamFirstChunkLatency records the time from dispatch to the first
	// decoded chunk of a stream.
	StreamFirstChunkLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groqchat_stream_first_chunk_seconds",
			Help:    "Time to first stream chunk",
			Buckets: FirstChunkBuckets,
		},
		[]string{"model"},
	)

	// StreamingConnections tracks open event-stream connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groqchat_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ServedRequestsTotal counts requests handled by an instrumented server,
	// by method and status class.
	ServedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groqchat_served_requests_total",
			Help: "Served HTTP requests",
		},
		[]string{"method", "status"},
	)

	// ServedRequestDuration records served request duration in seconds.
	ServedRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groqchat_served_request_duration_seconds",
			Help:    "Served HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		CompletionRequestsTotal,
		CompletionLatency,
		CompletionTokensTotal,
		StreamChunksTotal,
		StreamFirstChunkLatency,
		StreamingConnections,
		ServedRequestsTotal,
		ServedRequestDuration,
	)
}
