// Package loader reads supported files under a folder into documents.
package loader

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// ErrSkip reports a file the adapter deliberately ignores, such as binary
// content behind a text extension. It is not a load failure.
var ErrSkip = errors.New("unsupported content")

// Adapter extracts text from one file format.
type Adapter interface {
	// Name labels the adapter in logs and metrics.
	Name() string
	// Extensions lists lowercase extensions including the dot.
	Extensions() []string
	// Load returns the document, or an error wrapping ErrSkip to skip the file.
	Load(ctx context.Context, path string) (domain.Document, error)
}

// Registry dispatches files to adapters by extension.
type Registry struct {
	byExt map[string]Adapter
}

// NewRegistry registers adapters; a later adapter wins on extension conflicts.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byExt: make(map[string]Adapter)}
	for _, a := range adapters {
		for _, ext := range a.Extensions() {
			r.byExt[strings.ToLower(ext)] = a
		}
	}
	return r
}

// DefaultRegistry handles .pdf, .txt, .docx and .md.
func DefaultRegistry() *Registry {
	return NewRegistry(PDFAdapter{}, TextAdapter{}, DocxAdapter{}, MarkdownAdapter{})
}

// Restrict returns a registry limited to exts. An empty list keeps everything.
func (r *Registry) Restrict(exts []string) *Registry {
	if len(exts) == 0 {
		return r
	}
	out := &Registry{byExt: make(map[string]Adapter)}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if a, ok := r.byExt[ext]; ok {
			out.byExt[ext] = a
		}
	}
	return out
}

// Lookup returns the adapter for path's extension, case-insensitively.
func (r *Registry) Lookup(path string) (Adapter, bool) {
	a, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return a, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

func newDocument(path, text string) domain.Document {
	return domain.Document{
		SourcePath: path,
		SourceName: filepath.Base(path),
		RawText:    text,
	}
}
