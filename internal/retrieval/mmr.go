// Package retrieval re-ranks index candidates and assembles the generation context.
package retrieval

import (
	"math"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/index"
)

// Defaults for MMR selection.
const (
	DefaultK      = 10
	DefaultFetchK = 30
	DefaultLambda = 0.5
)

// MMR selects min(k, len(candidates)) candidates by maximal marginal relevance:
//
//	score(d) = lambda*sim(q,d) - (1-lambda)*max sim(d,s) over selected s
//
// Candidates must be in pool order (closest first); ties go to the lower rank.
// The result is in selection order.
func MMR(candidates []index.Candidate, k int, lambda float64) []domain.QueryResult {
	n := min(k, len(candidates))
	if n <= 0 {
		return nil
	}
	lambda = math.Max(0, math.Min(1, lambda))

	// maxSim[i] tracks max similarity of candidate i to anything selected so far.
	maxSim := make([]float64, len(candidates))
	taken := make([]bool, len(candidates))
	out := make([]domain.QueryResult, 0, n)

	for len(out) < n {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if taken[i] {
				continue
			}
			score := lambda * c.Score
			if len(out) > 0 {
				score -= (1 - lambda) * maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}

		taken[best] = true
		picked := candidates[best]
		out = append(out, domain.QueryResult{Chunk: picked.Chunk, Score: picked.Score, MMRScore: bestScore})

		for i, c := range candidates {
			if taken[i] {
				continue
			}
			if s := similarity(c, picked); len(out) == 1 || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return out
}

func similarity(a, b index.Candidate) float64 {
	if a.Unit != nil && b.Unit != nil {
		return index.Dot(a.Unit, b.Unit)
	}
	return index.Cosine(a.Chunk.Vector, b.Chunk.Vector)
}
