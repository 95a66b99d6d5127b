package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Recursive splits on paragraph, line, word and character boundaries in turn,
// so chunks end on natural breaks and may run slightly short of size.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursive validates the geometry and creates a Recursive chunker.
func NewRecursive(size, overlap int) (*Recursive, error) {
	if err := validateGeometry(size, overlap); err != nil {
		return nil, err
	}
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Chunk splits the trimmed body and prefixes every piece with the citation header.
func (r *Recursive) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	body := strings.TrimSpace(doc.RawText)
	if body == "" {
		return nil, nil
	}

	parts, err := r.splitter.SplitText(body)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", doc.SourceName, err)
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	from, offset := 0, 0
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		// Pieces appear in body order; overlap means the next one may start
		// before the previous one ends, so search from the previous start.
		if pos := strings.Index(body[from:], part); pos >= 0 {
			offset = utf8.RuneCountInString(body[:from+pos])
			from += pos + 1
			for from < len(body) && !utf8.RuneStart(body[from]) {
				from++
			}
		}
		chunks = append(chunks, domain.Chunk{
			ID:          chunkID(doc.ID, len(chunks)),
			DocID:       doc.ID,
			SourceName:  doc.SourceName,
			Text:        withHeader(doc.Header, part),
			StartOffset: offset,
		})
	}
	return chunks, nil
}
