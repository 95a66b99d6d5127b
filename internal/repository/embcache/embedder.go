// Package embcache keeps embeddings in the key-value store, keyed by model and
// text hash, so re-ingesting an unchanged folder costs no provider tokens.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/db"
	"github.com/kailas-cloud/docrag/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "emb_cache:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder is a caching decorator around another embedder.
// Store failures degrade to misses; they never fail a request.
type Embedder struct {
	inner     domain.Embedder
	store     store
	namespace string
	ttl       time.Duration
	lookups   *prometheus.CounterVec
	logger    *zap.Logger
}

// New wraps inner. lookups takes a single "result" label (hit or miss) and may be nil.
func New(inner domain.Embedder, s store, lookups *prometheus.CounterVec, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{inner: inner, store: s, lookups: lookups, logger: logger}
}

// WithNamespace scopes keys, normally by model name.
func (c *Embedder) WithNamespace(ns string) *Embedder {
	c.namespace = ns
	return c
}

// WithTTL expires entries after d. Zero keeps them forever.
func (c *Embedder) WithTTL(d time.Duration) *Embedder {
	c.ttl = d
	return c
}

// Embed embeds one text. A hit reports zero tokens.
func (c *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed serves hits from the store and embeds the distinct misses in one
// inner call. Output order matches texts; tokens cover the misses only.
func (c *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	// pending maps a missing key to every position that needs it.
	pending := make(map[string][]int)
	var missKeys []string
	var missTexts []string

	for i, text := range texts {
		key := c.key(text)
		if positions, seen := pending[key]; seen {
			pending[key] = append(positions, i)
			continue
		}
		if vec, ok := c.load(ctx, key); ok {
			c.count("hit")
			out[i] = vec
			continue
		}
		c.count("miss")
		pending[key] = []int{i}
		missKeys = append(missKeys, key)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := domain.EmbedAll(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(missTexts), domain.ErrEmbeddingProviderError)
	}

	for j, key := range missKeys {
		vec := res.Embeddings[j]
		for _, i := range pending[key] {
			out[i] = vec
		}
		c.save(ctx, key, vec)
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	if c.namespace == "" {
		return keyPrefix + hex.EncodeToString(sum[:])
	}
	return keyPrefix + c.namespace + ":" + hex.EncodeToString(sum[:])
}

func (c *Embedder) load(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	vec, err := decode(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Embedder) save(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, encode(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Embedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
