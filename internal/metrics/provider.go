package metrics

// Embedding batches finish in well under ten seconds; chat completions can
// take over a minute.
var (
	embeddingBuckets  = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	generationBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80}
)

// Embedding provider collectors.
var (
	EmbeddingRequestsTotal = counterVec("embedding_requests_total",
		"Embedding provider requests by outcome", "provider", "model", "status")

	EmbeddingRequestDuration = histogramVec("embedding_request_duration_seconds",
		"Embedding provider request latency", embeddingBuckets, "provider", "model")

	EmbeddingTokensTotal = counterVec("embedding_tokens_total",
		"Tokens billed by the embedding provider", "provider", "model", "type")

	EmbeddingErrorsTotal = counterVec("embedding_errors_total",
		"Embedding provider errors by kind", "provider", "model", "error_type")

	// result is hit or miss
	EmbeddingCacheTotal = counterVec("embedding_cache_total", "Embedding cache lookups", "result")

	// -1 for an unlimited period
	BudgetTokensRemaining = gaugeVec("embedding_budget_tokens_remaining",
		"Embedding tokens left in the current budget period", "provider", "period")
)

// Generation backend collectors.
var (
	GenerationRequestsTotal = counterVec("generation_requests_total",
		"Chat completion requests by outcome", "model", "status")

	GenerationRequestDuration = histogramVec("generation_request_duration_seconds",
		"Chat completion latency", generationBuckets, "model")

	GenerationTokensTotal = counterVec("generation_tokens_total",
		"Tokens billed by the generation backend", "model", "type")
)
