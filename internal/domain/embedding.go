package domain

import (
	"context"
	"fmt"
)

// Embedder maps one text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder maps many texts in one provider call. Output order matches input.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult is one vector plus the tokens the provider billed for it.
// A cache hit reports zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult holds vectors in input order and the summed token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// EmbedAll embeds texts with one batch call when e supports it, and one call
// per text otherwise.
func EmbedAll(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}

	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}
