package domain

import "time"

// KeyPrefix namespaces every key written to the shared KV store.
const KeyPrefix = "docrag:"

// Document is the text extracted from one file during a single ingest run.
type Document struct {
	ID         string
	SourcePath string
	SourceName string
	RawText    string
	// Header is the citation line stamped by the annotator; empty until then.
	Header string
}

// Chunk is a contiguous slice of an annotated document. Immutable once indexed.
type Chunk struct {
	ID          string
	DocID       string
	SourceName  string
	Text        string
	StartOffset int
	Vector      []float32
}

// QueryResult is one retrieved chunk in MMR selection order.
type QueryResult struct {
	Chunk Chunk
	// Score is the cosine similarity between the query and the chunk.
	Score float64
	// MMRScore is the marginal relevance the chunk had when it was selected.
	MMRScore float64
}

// Answer is the generated response plus the context it was grounded on.
type Answer struct {
	Text string
	// Sources are the chunks that made it into Context, in selection order.
	Sources []QueryResult
	Context string
	// Dropped counts selected chunks cut from the context to fit the budget.
	Dropped     int
	TotalTokens int
}

// IngestStats summarizes a successful ingest.
type IngestStats struct {
	Documents    int
	Chunks       int
	SkippedShort int
	SkippedFiles int
	FailedFiles  int
	Duration     time.Duration
}

// IndexStatus describes the currently published index.
type IndexStatus struct {
	Indexed   bool
	Root      string
	Documents int
	Chunks    int
	Dimension int
	BuiltAt   time.Time
	// Rebuilding is true while an ingest holds the write side.
	Rebuilding bool
}

// IngestRecord is the persisted summary of the last successful ingest.
type IngestRecord struct {
	Root      string
	Stats     IngestStats
	Dimension int
	At        time.Time
}
