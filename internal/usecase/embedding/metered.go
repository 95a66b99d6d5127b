// Package embedding enforces the embedding token budget around a provider.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// DefaultMaxBatch caps the texts sent in one provider request.
const DefaultMaxBatch = 256

// BudgetChecker is the budget as seen by Metered.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// Metered checks the budget before every provider request, charges the
// tokens it reports, and splits large batches into provider-sized requests.
// Request metrics live in transport/openai.
type Metered struct {
	inner    domain.Embedder
	budget   BudgetChecker
	maxBatch int
	logger   *zap.Logger
}

// NewMetered wraps inner. budget may be nil (unlimited).
func NewMetered(inner domain.Embedder, budget BudgetChecker, logger *zap.Logger) *Metered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metered{inner: inner, budget: budget, maxBatch: DefaultMaxBatch, logger: logger}
}

// WithMaxBatch sets the request size limit. Non-positive values are ignored.
func (m *Metered) WithMaxBatch(n int) *Metered {
	if n > 0 {
		m.maxBatch = n
	}
	return m
}

// Embed embeds one text.
func (m *Metered) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := m.admit(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	res, err := m.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	m.charge(res.TotalTokens)
	return res, nil
}

// BatchEmbed embeds texts in requests of at most maxBatch texts, in order.
// Each request is admitted and charged on its own, so a budget that runs out
// mid-batch stops the remaining requests.
func (m *Metered) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for lo := 0; lo < len(texts); lo += m.maxBatch {
		hi := min(lo+m.maxBatch, len(texts))
		if err := m.admit(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		res, err := domain.EmbedAll(ctx, m.inner, texts[lo:hi])
		if err != nil {
			m.logger.Warn("Embedding request failed",
				zap.Int("from", lo), zap.Int("size", hi-lo), zap.Error(err))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embed texts %d..%d: %w", lo, hi-1, err)
		}
		if len(res.Embeddings) != hi-lo {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("provider returned %d vectors for %d texts: %w",
				len(res.Embeddings), hi-lo, domain.ErrEmbeddingProviderError)
		}
		m.charge(res.TotalTokens)

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

func (m *Metered) admit(ctx context.Context) error {
	if m.budget == nil {
		return nil
	}
	if err := m.budget.Check(ctx); err != nil {
		m.logger.Warn("Embedding request refused by budget", zap.Error(err))
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (m *Metered) charge(tokens int) {
	if m.budget != nil && tokens > 0 {
		m.budget.Record(int64(tokens))
	}
}
