package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions truncates vectors on models that support it; 0 keeps the native size.
	Dimensions int
	// Provider labels metrics and budget keys.
	Provider string
	Logger   *zap.Logger
}

// Embedder calls the /embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	provider   string
	logger     *zap.Logger
}

// NewEmbedder creates an embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:     newClient(cfg.APIKey, cfg.BaseURL),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		provider:   cfg.Provider,
		logger:     logger,
	}
}

// Embed embeds one text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in one request.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		e.failed("api_error")
		return domain.BatchEmbeddingResult{}, describeAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}

	vectors, err := byIndex(resp.Data, len(texts))
	if err != nil {
		e.failed("bad_response")
		return domain.BatchEmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(elapsed.Seconds())
	metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "total").Add(float64(resp.Usage.TotalTokens))

	e.logger.Debug("Embedded batch",
		zap.Int("texts", len(texts)),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", elapsed),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   vectors,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies the provider is reachable.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return ping(ctx, e.client)
}

func (e *Embedder) failed(kind string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, kind).Inc()
}

// byIndex places every item at its Index. The API does not promise response
// order, so each of 0..n-1 must appear exactly once with a non-empty vector.
func byIndex(data []openai.Embedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, fmt.Errorf("got %d embeddings for %d inputs: %w", len(data), n, domain.ErrEmbeddingProviderError)
	}
	out := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding index %d is out of range or repeated: %w", d.Index, domain.ErrEmbeddingProviderError)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embedding %d is empty: %w", d.Index, domain.ErrEmbeddingProviderError)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
