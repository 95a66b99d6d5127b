package loader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// PDFAdapter extracts the text layer of a PDF. Scanned PDFs without a text
// layer load as empty documents and are dropped by the length filter.
type PDFAdapter struct{}

// Name implements Adapter.
func (PDFAdapter) Name() string { return "pdf" }

// Extensions implements Adapter.
func (PDFAdapter) Extensions() []string { return []string{".pdf"} }

// Load implements Adapter. Parser panics on malformed input become errors.
func (PDFAdapter) Load(ctx context.Context, path string) (doc domain.Document, err error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err //nolint:wrapcheck // context error
	}

	defer func() {
		if r := recover(); r != nil {
			doc, err = domain.Document{}, fmt.Errorf("parse pdf %s: panic: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return domain.Document{}, fmt.Errorf("extract pdf text %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return domain.Document{}, fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return newDocument(path, normalizeNewlines(buf.String())), nil
}
