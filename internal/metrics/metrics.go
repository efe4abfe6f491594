package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, path, and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// GenerationsTotal counts dispatched requests by mode, serving path and outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_generations_total",
		Help: "Generation requests by mode, path (refine|generate) and outcome.",
	}, []string{"mode", "path", "outcome"})

	// RefineFallbacks counts refinement attempts that fell back to generation.
	RefineFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_refine_fallbacks_total",
		Help: "Refinement attempts that fell back to streaming generation.",
	}, []string{"mode"})

	// ChunksEmitted counts chunks delivered to callers.
	ChunksEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_chunks_emitted_total",
		Help: "Text chunks written to caller streams.",
	}, []string{"path"})

	// GenerationDuration tracks the wall time of a dispatched request.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_generation_duration_seconds",
		Help:    "Time from dispatch to stream termination.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"path"})

	// TimeToFirstChunk tracks the latency between dispatch and the first chunk.
	TimeToFirstChunk = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_time_to_first_chunk_seconds",
		Help:    "Time from dispatch to the first chunk written to the caller.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"path"})

	// ModelTokens counts tokens reported by model providers.
	ModelTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_model_tokens_total",
		Help: "Tokens reported by model providers, by model and direction (input|output).",
	}, []string{"model", "direction"})

	// PromptChars tracks the distribution of prompt lengths.
	PromptChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quill_prompt_chars",
		Help:    "Number of characters in request prompts.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// BackendAvailable tracks whether each backend is reachable.
	BackendAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quill_backend_available",
		Help: "Whether a backend is available (1) or not (0).",
	}, []string{"backend"})
)
