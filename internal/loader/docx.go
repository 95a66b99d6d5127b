package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/docrag/internal/domain"
)

const docxBody = "word/document.xml"

// DocxAdapter extracts paragraph text from an Office Open XML document.
type DocxAdapter struct{}

// Name implements Adapter.
func (DocxAdapter) Name() string { return "docx" }

// Extensions implements Adapter.
func (DocxAdapter) Extensions() []string { return []string{".docx"} }

// Load implements Adapter.
func (DocxAdapter) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err //nolint:wrapcheck // context error
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("open docx %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return domain.Document{}, fmt.Errorf("open %s in %s: %w", docxBody, path, err)
		}
		defer func() { _ = rc.Close() }()

		text, err := docxText(rc)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parse docx %s: %w", path, err)
		}
		return newDocument(path, text), nil
	}
	return domain.Document{}, fmt.Errorf("%s has no %s", path, docxBody)
}

// docxText walks WordprocessingML: text runs (w:t) are copied, paragraphs end
// with a newline, tabs and breaks are kept.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
