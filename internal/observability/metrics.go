package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the pipeline collectors.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeCached      = "cached"
	OutcomeRateLimited = "rate_limited"
	OutcomeQuota       = "quota"
	OutcomeFallback    = "fallback"
)

var (
	// EmbeddingRequests counts Embed calls by outcome.
	EmbeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatpdf_embedding_requests_total",
			Help: "Embedding requests by outcome.",
		},
		[]string{"outcome"},
	)

	// VectorOps counts vector index calls by operation (upsert|query|ensure_index)
	// and outcome.
	VectorOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatpdf_vector_operations_total",
			Help: "Vector index operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// VectorDegraded is 1 once the vector index adapter has latched into
	// degraded mode.
	VectorDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatpdf_vector_index_degraded",
			Help: "1 when vector queries are served from the fallback result.",
		},
	)

	// GenerationResults counts generation attempts by strategy and outcome.
	GenerationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatpdf_generation_attempts_total",
			Help: "Generation attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	// IngestDuration observes end-to-end ingestion time in seconds.
	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatpdf_ingest_duration_seconds",
			Help:    "Duration of document ingestion runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	// ChatTurns counts conversation turns by terminal state.
	ChatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatpdf_chat_turns_total",
			Help: "Chat turns by terminal state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(EmbeddingRequests, VectorOps, VectorDegraded, GenerationResults, IngestDuration, ChatTurns)
}
