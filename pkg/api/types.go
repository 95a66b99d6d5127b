// Package api holds the JSON wire types of the docrag HTTP API. Both the
// server handlers and pkg/client encode and decode these.
package api

import "time"

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodePathNotFound           ErrorCode = "path_not_found"
	CodeNoSupportedDocuments   ErrorCode = "no_supported_documents"
	CodeIngestCanceled         ErrorCode = "ingest_canceled"
	CodeNotIndexed             ErrorCode = "not_indexed"
	CodeRebuilding             ErrorCode = "rebuilding"
	CodeEmbeddingFailure       ErrorCode = "embedding_failure"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeGenerationBackendError ErrorCode = "generation_backend_error"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IngestRequest is the body of POST /api/v1/ingest.
type IngestRequest struct {
	Path string `json:"path"`
}

// IngestResponse summarizes a published index.
type IngestResponse struct {
	DocumentCount int   `json:"document_count"`
	ChunkCount    int   `json:"chunk_count"`
	SkippedShort  int   `json:"skipped_short"`
	FailedFiles   int   `json:"failed_files"`
	SkippedFiles  int   `json:"skipped_files"`
	DurationMs    int64 `json:"duration_ms"`
}

// QuestionRequest is the body of POST /api/v1/query and /api/v1/retrieve.
type QuestionRequest struct {
	Question string `json:"question"`
}

// Source is one retrieved chunk. Text is only filled by /retrieve.
type Source struct {
	ChunkID     string  `json:"chunk_id"`
	Source      string  `json:"source"`
	StartOffset int     `json:"start_offset"`
	Score       float64 `json:"score"`
	MMRScore    float64 `json:"mmr_score"`
	Text        string  `json:"text,omitempty"`
}

// QueryResponse is a generated answer with the sources it was grounded on.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	DroppedSources int      `json:"dropped_sources"`
	TotalTokens    int      `json:"total_tokens,omitempty"`
}

// RetrieveResponse lists the chunks a query would be grounded on.
type RetrieveResponse struct {
	Results []Source `json:"results"`
}

// IngestSummary is the persisted record of the last successful ingest.
type IngestSummary struct {
	Root          string    `json:"root"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	SkippedShort  int       `json:"skipped_short"`
	SkippedFiles  int       `json:"skipped_files"`
	FailedFiles   int       `json:"failed_files"`
	DurationMs    int64     `json:"duration_ms"`
	Dimension     int       `json:"dimension"`
	At            time.Time `json:"at"`
}

// IndexResponse is the body of GET /api/v1/index.
type IndexResponse struct {
	Indexed       bool           `json:"indexed"`
	Rebuilding    bool           `json:"rebuilding"`
	Root          string         `json:"root,omitempty"`
	DocumentCount int            `json:"document_count"`
	ChunkCount    int            `json:"chunk_count"`
	Dimension     int            `json:"dimension"`
	BuiltAt       *time.Time     `json:"built_at,omitempty"`
	LastIngest    *IngestSummary `json:"last_ingest,omitempty"`
}

// BudgetStatus reports the embedding token budget of a period.
// TokensLimit 0 means unlimited.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensUsed      int64      `json:"tokens_used"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// SessionTotals counts work done since the server started.
type SessionTotals struct {
	Ingests          int64 `json:"ingests"`
	Queries          int64 `json:"queries"`
	EmbeddingTokens  int64 `json:"embedding_tokens"`
	GenerationTokens int64 `json:"generation_tokens"`
}

// UsageResponse is the body of GET /api/v1/usage.
type UsageResponse struct {
	Period        string        `json:"period"`
	PeriodStartAt *time.Time    `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time    `json:"period_end_at,omitempty"`
	Budget        BudgetStatus  `json:"budget"`
	Session       SessionTotals `json:"session"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
