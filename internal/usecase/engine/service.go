// Package engine runs the ingest and query pipelines over a single live index.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/chunker"
	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/index"
	"github.com/kailas-cloud/docrag/internal/logger"
	"github.com/kailas-cloud/docrag/internal/metrics"
	"github.com/kailas-cloud/docrag/internal/retrieval"
)

// Rebuild policies for queries that arrive while an ingest is running.
const (
	// PolicyBlock makes queries wait for the rebuild to publish.
	PolicyBlock = "block"
	// PolicyFailFast rejects queries with ErrRebuilding.
	PolicyFailFast = "fail_fast"
)

// Options tunes the pipelines. Zero values take package defaults.
type Options struct {
	K      int
	FetchK int
	// Lambda is the MMR relevance weight. Nil means retrieval.DefaultLambda;
	// a pointer keeps 0 (pure diversity) expressible.
	Lambda          *float64
	MinContentChars int
	BatchSize       int
	Concurrency     int
	PromptTemplate  string
	RebuildPolicy   string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Scanner Scanner
	Chunker Chunker
	// DocumentEmbedder vectorizes chunks at ingest.
	DocumentEmbedder domain.BatchEmbedder
	// QueryEmbedder vectorizes questions. It may differ from DocumentEmbedder
	// by instruction prefix.
	QueryEmbedder domain.Embedder
	Generator     domain.Generator
	Assembler     *retrieval.Assembler
	// Recorder is optional.
	Recorder IngestRecorder
	Logger   *zap.Logger
}

// Service owns the live index. One ingest at a time holds the write side;
// queries read an immutable snapshot.
type Service struct {
	deps   Deps
	opts   Options
	lambda float64

	mu         sync.RWMutex
	live       atomic.Pointer[index.Index]
	rebuilding atomic.Bool
	lastIngest atomic.Pointer[domain.IngestStats]

	ingests          atomic.Int64
	queries          atomic.Int64
	embeddingTokens  atomic.Int64
	generationTokens atomic.Int64
}

// New creates a Service.
func New(deps Deps, opts Options) *Service {
	if opts.K <= 0 {
		opts.K = retrieval.DefaultK
	}
	if opts.FetchK < opts.K {
		opts.FetchK = max(retrieval.DefaultFetchK, opts.K)
	}
	if opts.MinContentChars <= 0 {
		opts.MinContentChars = chunker.DefaultMinContentChars
	}
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = domain.ContextSlot
	}
	if opts.RebuildPolicy == "" {
		opts.RebuildPolicy = PolicyBlock
	}
	if deps.Assembler == nil {
		deps.Assembler = retrieval.NewAssembler(0, nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	lambda := retrieval.DefaultLambda
	if opts.Lambda != nil {
		lambda = *opts.Lambda
	}
	return &Service{deps: deps, opts: opts, lambda: lambda}
}

// Ingest rebuilds the index from folder. The previous index stays live until
// the new one is complete; on any error it is left untouched.
func (s *Service) Ingest(ctx context.Context, folder string) (domain.IngestStats, error) {
	start := time.Now()
	log := s.log(ctx)

	root, err := resolveFolder(folder)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("path_not_found").Inc()
		return domain.IngestStats{}, domain.NewIngestError(domain.ErrPathNotFound, folder, err)
	}

	s.mu.Lock()
	s.rebuilding.Store(true)
	defer func() {
		s.rebuilding.Store(false)
		s.mu.Unlock()
	}()

	ix, stats, err := s.build(ctx, root)
	if err != nil {
		metrics.IngestTotal.WithLabelValues(ingestStatus(err)).Inc()
		log.Warn("ingest failed", zap.String("root", root), zap.Error(err))
		return domain.IngestStats{}, err
	}
	if err := ctx.Err(); err != nil {
		metrics.IngestTotal.WithLabelValues("canceled").Inc()
		return domain.IngestStats{}, domain.NewIngestError(domain.ErrIngestCanceled, root, err)
	}

	stats.Duration = time.Since(start)
	s.live.Store(ix)
	s.lastIngest.Store(&stats)

	s.ingests.Add(1)
	s.embeddingTokens.Add(int64(ix.Stats().EmbeddingTokens))
	domain.RequestUsageFrom(ctx).AddEmbedding(ix.Stats().EmbeddingTokens)

	metrics.IngestTotal.WithLabelValues("success").Inc()
	metrics.IngestDuration.Observe(stats.Duration.Seconds())
	metrics.IndexChunks.Set(float64(stats.Chunks))
	metrics.IndexDocuments.Set(float64(stats.Documents))

	log.Info("ingest complete",
		zap.String("root", root),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Int("skipped_short", stats.SkippedShort),
		zap.Int("skipped_files", stats.SkippedFiles),
		zap.Int("failed_files", stats.FailedFiles),
		zap.Int("embedding_tokens", ix.Stats().EmbeddingTokens),
		zap.Duration("duration", stats.Duration),
	)

	if s.deps.Recorder != nil {
		rec := domain.IngestRecord{Root: root, Stats: stats, Dimension: ix.Dimension(), At: ix.Stats().BuiltAt}
		if err := s.deps.Recorder.Record(ctx, rec); err != nil {
			log.Warn("failed to record ingest", zap.Error(err))
		}
	}

	return stats, nil
}

// build runs load, filter, chunk and embed without touching the live index.
func (s *Service) build(ctx context.Context, root string) (*index.Index, domain.IngestStats, error) {
	scan, err := s.deps.Scanner.Scan(ctx, root)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.IngestStats{}, domain.NewIngestError(domain.ErrIngestCanceled, root, ctx.Err())
		}
		return nil, domain.IngestStats{}, domain.NewIngestError(domain.ErrPathNotFound, root, err)
	}

	docs, short := chunker.Annotate(scan.Documents, s.opts.MinContentChars)
	stats := domain.IngestStats{
		Documents:    len(docs),
		SkippedShort: short,
		SkippedFiles: scan.Skipped,
		FailedFiles:  scan.Failed,
	}
	if len(docs) == 0 {
		return nil, stats, domain.NewIngestError(domain.ErrNoSupportedDocuments, root, nil)
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, stats, domain.NewIngestError(domain.ErrIngestCanceled, root, err)
		}
		cs, err := s.deps.Chunker.Chunk(doc)
		if err != nil {
			return nil, stats, fmt.Errorf("chunk %s: %w", doc.SourcePath, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return nil, stats, domain.NewIngestError(domain.ErrNoSupportedDocuments, root, nil)
	}
	stats.Chunks = len(chunks)

	ix, err := index.Build(ctx, chunks, s.deps.DocumentEmbedder, index.BuildOptions{
		Root:        root,
		BatchSize:   s.opts.BatchSize,
		Concurrency: s.opts.Concurrency,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, stats, domain.NewIngestError(domain.ErrIngestCanceled, root, ctx.Err())
		}
		return nil, stats, domain.NewIngestError(domain.ErrEmbeddingFailure, root, err)
	}
	return ix, stats, nil
}

// Query retrieves context for question and asks the generator. A generation
// failure leaves the index untouched and usable.
func (s *Service) Query(ctx context.Context, question string) (domain.Answer, error) {
	results, err := s.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}

	block := s.deps.Assembler.Assemble(results)
	if block.Dropped > 0 {
		s.log(ctx).Debug("context truncated",
			zap.Int("selected", len(results)),
			zap.Int("dropped", block.Dropped),
			zap.Int("tokens", block.Tokens),
		)
	}

	start := time.Now()
	gen, err := s.deps.Generator.Generate(ctx, domain.GenerationRequest{
		PromptTemplate: s.opts.PromptTemplate,
		Question:       question,
		Context:        block.Text,
	})
	metrics.QueryStageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryTotal.WithLabelValues("generation_error").Inc()
		return domain.Answer{}, domain.NewQueryError(domain.ErrGenerationBackend, err)
	}

	s.generationTokens.Add(int64(gen.TotalTokens))
	domain.RequestUsageFrom(ctx).AddGeneration(gen.TotalTokens)
	metrics.QueryTotal.WithLabelValues("success").Inc()

	return domain.Answer{
		Text:        gen.Text,
		Sources:     block.Used,
		Context:     block.Text,
		Dropped:     block.Dropped,
		TotalTokens: gen.TotalTokens,
	}, nil
}

// Retrieve runs the retrieval half of Query: embed, nearest, MMR.
func (s *Service) Retrieve(ctx context.Context, question string) ([]domain.QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, domain.NewQueryError(domain.ErrInvalidRequest, errors.New("question is empty"))
	}

	ix, err := s.snapshot()
	if err != nil {
		metrics.QueryTotal.WithLabelValues(queryStatus(err)).Inc()
		return nil, err
	}
	s.queries.Add(1)

	start := time.Now()
	emb, err := s.deps.QueryEmbedder.Embed(ctx, question)
	metrics.QueryStageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryTotal.WithLabelValues("embedding_error").Inc()
		return nil, domain.NewQueryError(domain.ErrEmbeddingFailure, err)
	}
	s.embeddingTokens.Add(int64(emb.TotalTokens))
	domain.RequestUsageFrom(ctx).AddEmbedding(emb.TotalTokens)

	start = time.Now()
	candidates, err := ix.Nearest(emb.Embedding, s.opts.FetchK)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("embedding_error").Inc()
		return nil, domain.NewQueryError(domain.ErrEmbeddingFailure, err)
	}
	results := retrieval.MMR(candidates, s.opts.K, s.lambda)
	metrics.QueryStageDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())

	return results, nil
}

// snapshot returns the live index according to the rebuild policy. The
// returned index is immutable, so the lock is not held past this call.
func (s *Service) snapshot() (*index.Index, error) {
	if s.opts.RebuildPolicy == PolicyFailFast {
		if !s.mu.TryRLock() {
			return nil, domain.NewQueryError(domain.ErrRebuilding, nil)
		}
	} else {
		s.mu.RLock()
	}
	ix := s.live.Load()
	s.mu.RUnlock()

	if ix == nil {
		return nil, domain.NewQueryError(domain.ErrNotIndexed, nil)
	}
	return ix, nil
}

// Status describes the live index without blocking on a running ingest.
func (s *Service) Status() domain.IndexStatus {
	st := domain.IndexStatus{Rebuilding: s.rebuilding.Load()}
	ix := s.live.Load()
	if ix == nil {
		return st
	}
	is := ix.Stats()
	st.Indexed = true
	st.Root = is.Root
	st.Documents = is.Documents
	st.Chunks = is.Chunks
	st.Dimension = is.Dimension
	st.BuiltAt = is.BuiltAt
	return st
}

// LastIngest returns the stats of the last successful ingest in this process.
func (s *Service) LastIngest() (domain.IngestStats, bool) {
	p := s.lastIngest.Load()
	if p == nil {
		return domain.IngestStats{}, false
	}
	return *p, true
}

// Indexed reports whether an index is live.
func (s *Service) Indexed() bool {
	return s.live.Load() != nil
}

// Totals reports work done since the Service was created.
func (s *Service) Totals() domain.UsageTotals {
	return domain.UsageTotals{
		Ingests:          s.ingests.Load(),
		Queries:          s.queries.Load(),
		EmbeddingTokens:  s.embeddingTokens.Load(),
		GenerationTokens: s.generationTokens.Load(),
	}
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.deps.Logger)
}

func resolveFolder(folder string) (string, error) {
	if strings.TrimSpace(folder) == "" {
		return "", errors.New("folder is empty")
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", folder, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

func ingestStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrIngestCanceled):
		return "canceled"
	case errors.Is(err, domain.ErrNoSupportedDocuments):
		return "no_documents"
	case errors.Is(err, domain.ErrEmbeddingFailure):
		return "embedding_error"
	case errors.Is(err, domain.ErrPathNotFound):
		return "path_not_found"
	default:
		return "error"
	}
}

func queryStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrRebuilding):
		return "rebuilding"
	case errors.Is(err, domain.ErrNotIndexed):
		return "not_indexed"
	default:
		return "error"
	}
}
