// Package chunker turns annotated documents into overlapping chunks.
package chunker

import (
	"fmt"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Strategy names accepted by New.
const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// Default window geometry, in runes.
const (
	DefaultSize    = 600
	DefaultOverlap = 150
)

// Chunker splits one document. Output must be deterministic for a given input.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}

// New builds a chunker for the named strategy. An empty strategy means window.
func New(strategy string, size, overlap int) (Chunker, error) {
	switch strategy {
	case "", StrategyWindow:
		return NewWindow(size, overlap)
	case StrategyRecursive:
		return NewRecursive(size, overlap)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}

func validateGeometry(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return nil
}

func chunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s-%d", docID, ordinal)
}
