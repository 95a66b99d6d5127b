package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// DefaultMinContentChars is the trimmed length a document must exceed to be indexed.
const DefaultMinContentChars = 50

// Header returns the citation line stamped on every chunk of a file.
func Header(sourceName string) string {
	return "--- from " + sourceName + " ---"
}

// Annotate drops documents whose trimmed text is minChars runes or shorter and
// stamps the rest with a citation header. It returns the survivors in input
// order and the number dropped.
func Annotate(docs []domain.Document, minChars int) ([]domain.Document, int) {
	kept := make([]domain.Document, 0, len(docs))
	dropped := 0
	for _, d := range docs {
		if utf8.RuneCountInString(strings.TrimSpace(d.RawText)) <= minChars {
			dropped++
			continue
		}
		d.Header = Header(d.SourceName)
		kept = append(kept, d)
	}
	return kept, dropped
}

func withHeader(header, body string) string {
	if header == "" {
		return body
	}
	return header + "\n" + body
}
