// Package index holds the in-memory vector index searched by exact cosine similarity.
package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Defaults for BuildOptions.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

var errNoChunks = errors.New("no chunks to index")

// Candidate is a chunk ranked against a query vector.
type Candidate struct {
	Chunk domain.Chunk
	// Score is the cosine similarity to the query.
	Score float64
	// Rank is the position in the candidate pool, 0 being closest.
	Rank int
	// Unit is the L2-normalized chunk vector.
	Unit []float32
}

// BuildOptions tunes index construction.
type BuildOptions struct {
	Root        string
	BatchSize   int
	Concurrency int
}

// Stats describes a built index.
type Stats struct {
	Root            string
	Dimension       int
	Chunks          int
	Documents       int
	EmbeddingTokens int
	BuiltAt         time.Time
}

// Index is immutable after Build returns.
type Index struct {
	dim    int
	chunks []domain.Chunk
	units  [][]float32
	stats  Stats
}

// Build embeds every chunk and returns a ready index. Chunk order is preserved
// and used as the similarity tie-break. Any embedding error, count mismatch or
// inconsistent dimension fails the whole build.
func Build(
	ctx context.Context, chunks []domain.Chunk, emb domain.BatchEmbedder, opts BuildOptions,
) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errNoChunks
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	vectors, tokens, err := embedAll(ctx, chunks, emb, opts)
	if err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	docs := make(map[string]struct{})
	owned := make([]domain.Chunk, len(chunks))
	units := make([][]float32, len(chunks))
	for i, c := range chunks {
		v := vectors[i]
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("chunk %s: got %d dimensions, want %d: %w",
				c.ID, len(v), dim, domain.ErrVectorDimMismatch)
		}
		c.Vector = v
		owned[i] = c
		units[i] = normalize(v)
		docs[c.DocID] = struct{}{}
	}

	return &Index{
		dim:    dim,
		chunks: owned,
		units:  units,
		stats: Stats{
			Root:            opts.Root,
			Dimension:       dim,
			Chunks:          len(owned),
			Documents:       len(docs),
			EmbeddingTokens: tokens,
			BuiltAt:         time.Now().UTC(),
		},
	}, nil
}

func embedAll(
	ctx context.Context, chunks []domain.Chunk, emb domain.BatchEmbedder, opts BuildOptions,
) ([][]float32, int, error) {
	vectors := make([][]float32, len(chunks))
	var (
		mu     sync.Mutex
		tokens int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for start := 0; start < len(chunks); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(chunks))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err //nolint:wrapcheck // context error
			}
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}

			res, err := emb.BatchEmbed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
			}
			if len(res.Embeddings) != len(texts) {
				return fmt.Errorf("embed chunks [%d:%d]: got %d vectors for %d texts: %w",
					start, end, len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
			}

			copy(vectors[start:end], res.Embeddings)
			mu.Lock()
			tokens += res.TotalTokens
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err //nolint:wrapcheck // already wrapped per batch
	}
	return vectors, tokens, nil
}

// Nearest returns up to fetchK chunks ordered by cosine similarity to query,
// ties broken by insertion order.
func (ix *Index) Nearest(query []float32, fetchK int) ([]Candidate, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), ix.dim, domain.ErrVectorDimMismatch)
	}
	if fetchK <= 0 {
		return nil, nil
	}

	q := normalize(query)
	scored := make([]Candidate, len(ix.chunks))
	for i := range ix.chunks {
		scored[i] = Candidate{Chunk: ix.chunks[i], Score: Dot(q, ix.units[i]), Unit: ix.units[i]}
	}
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if fetchK < len(scored) {
		scored = scored[:fetchK]
	}
	for i := range scored {
		scored[i].Rank = i
	}
	return scored, nil
}

// Dimension returns the vector dimension shared by all chunks.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns the indexed chunks in insertion order. Callers must not mutate them.
func (ix *Index) Chunks() []domain.Chunk { return ix.chunks }

// Stats returns build metadata.
func (ix *Index) Stats() Stats { return ix.stats }
