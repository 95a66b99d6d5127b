package loader

import (
	"context"
	"strings"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// MarkdownAdapter loads Markdown as raw text, minus any YAML front matter.
type MarkdownAdapter struct{}

// Name implements Adapter.
func (MarkdownAdapter) Name() string { return "markdown" }

// Extensions implements Adapter.
func (MarkdownAdapter) Extensions() []string { return []string{".md", ".markdown"} }

// Load implements Adapter.
func (MarkdownAdapter) Load(ctx context.Context, path string) (domain.Document, error) {
	text, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}
	return newDocument(path, stripFrontMatter(text)), nil
}

// stripFrontMatter removes a leading "---" delimited block. Unterminated blocks are kept.
func stripFrontMatter(text string) string {
	if !strings.HasPrefix(text, "---\n") {
		return text
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text
	}
	after := rest[end+len("\n---"):]
	if after != "" && after[0] != '\n' {
		return text
	}
	return strings.TrimPrefix(after, "\n")
}
