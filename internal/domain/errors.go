package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPathNotFound signals a missing or non-directory ingest target.
	ErrPathNotFound = errors.New("path not found")
	// ErrNoSupportedDocuments signals that a scan produced nothing indexable.
	ErrNoSupportedDocuments = errors.New("no supported documents")
	// ErrEmbeddingFailure signals that vectorization failed for the current call.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrIngestCanceled signals that an ingest was canceled before publish.
	ErrIngestCanceled = errors.New("ingest canceled")

	// ErrNotIndexed signals a query issued before any successful ingest.
	ErrNotIndexed = errors.New("no index: ingest a folder first")
	// ErrRebuilding signals a query rejected while a rebuild is in flight.
	ErrRebuilding = errors.New("index is rebuilding")
	// ErrGenerationBackend signals a failed call to the generation backend.
	ErrGenerationBackend = errors.New("generation backend error")

	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// IngestError reports why an ingest did not publish a new index.
// Kind is one of ErrPathNotFound, ErrNoSupportedDocuments, ErrEmbeddingFailure, ErrIngestCanceled.
type IngestError struct {
	Kind error
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("ingest %s: %s: %s", e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *IngestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewIngestError creates an IngestError.
func NewIngestError(kind error, path string, cause error) error {
	return &IngestError{Kind: kind, Path: path, Err: cause}
}

// QueryError reports why a query produced no answer.
// Kind is one of ErrNotIndexed, ErrRebuilding, ErrEmbeddingFailure, ErrGenerationBackend, ErrInvalidRequest.
type QueryError struct {
	Kind error
	Err  error
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		return "query: " + e.Kind.Error()
	}
	return fmt.Sprintf("query: %s: %s", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewQueryError creates a QueryError.
func NewQueryError(kind, cause error) error {
	return &QueryError{Kind: kind, Err: cause}
}
