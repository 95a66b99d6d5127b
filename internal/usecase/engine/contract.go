package engine

import (
	"context"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/loader"
)

// Scanner loads every supported file under a folder.
type Scanner interface {
	Scan(ctx context.Context, root string) (loader.ScanResult, error)
}

// Chunker splits one annotated document.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}

// IngestRecorder persists the summary of a published index. Optional.
type IngestRecorder interface {
	Record(ctx context.Context, rec domain.IngestRecord) error
}
