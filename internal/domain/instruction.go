package domain

import (
	"context"
	"fmt"
)

// Instructed prefixes every text with a fixed instruction before embedding.
// Asymmetric models (e5, Qwen3-Embedding) expect one instruction for
// passages and another for questions.
type Instructed struct {
	inner       Embedder
	instruction string
}

// WithInstruction wraps inner. An empty instruction is a no-op prefix.
func WithInstruction(inner Embedder, instruction string) *Instructed {
	return &Instructed{inner: inner, instruction: instruction}
}

// Embed embeds instruction+text.
func (e *Instructed) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("embed instructed text: %w", err)
	}
	return res, nil
}

// BatchEmbed embeds instruction+text for every text.
func (e *Instructed) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	res, err := EmbedAll(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("embed instructed batch: %w", err)
	}
	return res, nil
}
