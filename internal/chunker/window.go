package chunker

import (
	"strings"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Span is a half-open rune range [Start, End) of a document body.
type Span struct {
	Start int
	End   int
}

// Window is a fixed-size sliding window chunker. For a body of L runes it
// yields ceil((L-overlap)/(size-overlap)) chunks, or one when L <= size.
type Window struct {
	size    int
	overlap int
}

// NewWindow validates the geometry and creates a Window.
func NewWindow(size, overlap int) (*Window, error) {
	if err := validateGeometry(size, overlap); err != nil {
		return nil, err
	}
	return &Window{size: size, overlap: overlap}, nil
}

// Spans returns window boundaries for a body of n runes.
func (w *Window) Spans(n int) []Span {
	if n <= 0 {
		return nil
	}
	step := w.size - w.overlap
	spans := make([]Span, 0, (n+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+w.size, n)
		spans = append(spans, Span{Start: start, End: end})
		if end >= n {
			break
		}
	}
	return spans
}

// Chunk windows over the trimmed body and prefixes every chunk with the citation header.
func (w *Window) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	body := []rune(strings.TrimSpace(doc.RawText))
	spans := w.Spans(len(body))

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, domain.Chunk{
			ID:          chunkID(doc.ID, i),
			DocID:       doc.ID,
			SourceName:  doc.SourceName,
			Text:        withHeader(doc.Header, string(body[sp.Start:sp.End])),
			StartOffset: sp.Start,
		})
	}
	return chunks, nil
}
