package retrieval

import (
	"strings"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// DefaultSeparator joins chunk texts in the context block.
const DefaultSeparator = "\n\n"

// Context is an assembled context block.
type Context struct {
	Text string
	// Used are the results that made it into Text, in selection order.
	Used    []domain.QueryResult
	Dropped int
	Tokens  int
}

// Assembler concatenates retrieved chunks into a context block within a token budget.
type Assembler struct {
	budget    int
	estimator TokenEstimator
	separator string
}

// NewAssembler creates an Assembler. budget <= 0 disables truncation; a nil
// estimator means RuneEstimator.
func NewAssembler(budget int, estimator TokenEstimator) *Assembler {
	if estimator == nil {
		estimator = RuneEstimator{}
	}
	return &Assembler{budget: budget, estimator: estimator, separator: DefaultSeparator}
}

// Assemble joins results in order. Over budget, results are dropped from the
// tail until the block fits, possibly down to an empty block.
func (a *Assembler) Assemble(results []domain.QueryResult) Context {
	if len(results) == 0 {
		return Context{}
	}

	sepTokens := a.estimator.EstimateTokens(a.separator)
	counts := make([]int, len(results))
	total := 0
	for i, r := range results {
		counts[i] = a.estimator.EstimateTokens(r.Chunk.Text)
		total += counts[i]
		if i > 0 {
			total += sepTokens
		}
	}

	used := results
	if a.budget > 0 {
		for total > a.budget && len(used) > 0 {
			last := len(used) - 1
			total -= counts[last]
			if last > 0 {
				total -= sepTokens
			}
			used = used[:last]
		}
	}

	texts := make([]string, len(used))
	for i, r := range used {
		texts[i] = r.Chunk.Text
	}
	return Context{
		Text:    strings.Join(texts, a.separator),
		Used:    used,
		Dropped: len(results) - len(used),
		Tokens:  total,
	}
}
