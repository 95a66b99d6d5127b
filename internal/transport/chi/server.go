package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/domain"
	healthuc "github.com/kailas-cloud/docrag/internal/usecase/health"
	"github.com/kailas-cloud/docrag/pkg/api"
)

const maxBodyBytes = 1 << 20

const (
	headerEmbeddingTokens  = "X-Embedding-Tokens"
	headerGenerationTokens = "X-Generation-Tokens"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the docrag HTTP API.
type Server struct {
	engine        Engine
	usage         UsageReporter
	health        HealthChecker
	ingestLog     IngestLog
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. ingestLog may be nil.
func NewServer(
	engine Engine,
	usage UsageReporter,
	health HealthChecker,
	ingestLog IngestLog,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:    engine,
		usage:     usage,
		health:    health,
		ingestLog: ingestLog,
		logger:    logger,
	}
	// Order matters: a quota error also carries ErrEmbeddingFailure.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, api.CodeBadRequest),
		sentinelHandler(domain.ErrPathNotFound, http.StatusNotFound, api.CodePathNotFound),
		sentinelHandler(domain.ErrNoSupportedDocuments,
			http.StatusUnprocessableEntity, api.CodeNoSupportedDocuments),
		sentinelHandler(domain.ErrIngestCanceled, http.StatusRequestTimeout, api.CodeIngestCanceled),
		sentinelHandler(domain.ErrNotIndexed, http.StatusConflict, api.CodeNotIndexed),
		sentinelHandler(domain.ErrRebuilding, http.StatusServiceUnavailable, api.CodeRebuilding),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, api.CodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingFailure, http.StatusBadGateway, api.CodeEmbeddingFailure),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, api.CodeEmbeddingFailure),
		sentinelHandler(domain.ErrGenerationBackend, http.StatusBadGateway, api.CodeGenerationBackendError),
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, api.CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, api.CodeBadRequest, "method not allowed")
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.Ingest)
		r.Post("/query", s.Query)
		r.Post("/retrieve", s.Retrieve)
		r.Get("/index", s.IndexStatus)
		r.Get("/usage", s.GetUsage)
	})
}

// Ingest handles POST /api/v1/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, "path is required")
		return
	}

	ctx, usage := domain.WithRequestUsage(r.Context())
	stats, err := s.engine.Ingest(ctx, req.Path)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.IngestResponse{
		DocumentCount: stats.Documents,
		ChunkCount:    stats.Chunks,
		SkippedShort:  stats.SkippedShort,
		FailedFiles:   stats.FailedFiles,
		SkippedFiles:  stats.SkippedFiles,
		DurationMs:    stats.Duration.Milliseconds(),
	})
}

// Query handles POST /api/v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req api.QuestionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, usage := domain.WithRequestUsage(r.Context())
	answer, err := s.engine.Query(ctx, req.Question)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := make([]api.Source, 0, len(answer.Sources))
	for _, res := range answer.Sources {
		sources = append(sources, sourceToAPI(res, false))
	}
	writeJSON(w, http.StatusOK, api.QueryResponse{
		Answer:         answer.Text,
		Sources:        sources,
		DroppedSources: answer.Dropped,
		TotalTokens:    answer.TotalTokens,
	})
}

// Retrieve handles POST /api/v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req api.QuestionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, usage := domain.WithRequestUsage(r.Context())
	results, err := s.engine.Retrieve(ctx, req.Question)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]api.Source, 0, len(results))
	for _, res := range results {
		items = append(items, sourceToAPI(res, true))
	}
	writeJSON(w, http.StatusOK, api.RetrieveResponse{Results: items})
}

// IndexStatus handles GET /api/v1/index.
func (s *Server) IndexStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := api.IndexResponse{
		Indexed:       st.Indexed,
		Rebuilding:    st.Rebuilding,
		Root:          st.Root,
		DocumentCount: st.Documents,
		ChunkCount:    st.Chunks,
		Dimension:     st.Dimension,
	}
	if !st.BuiltAt.IsZero() {
		builtAt := st.BuiltAt.UTC()
		resp.BuiltAt = &builtAt
	}

	if s.ingestLog != nil {
		rec, ok, err := s.ingestLog.Last(r.Context())
		switch {
		case err != nil:
			s.logger.Warn("read ingest log", zap.Error(err))
		case ok:
			resp.LastIngest = &api.IngestSummary{
				Root:          rec.Root,
				DocumentCount: rec.Stats.Documents,
				ChunkCount:    rec.Stats.Chunks,
				SkippedShort:  rec.Stats.SkippedShort,
				SkippedFiles:  rec.Stats.SkippedFiles,
				FailedFiles:   rec.Stats.FailedFiles,
				DurationMs:    rec.Stats.Duration.Milliseconds(),
				Dimension:     rec.Dimension,
				At:            rec.At.UTC(),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domain.ParseUsagePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, "period must be day, month or total")
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := api.UsageResponse{
		Period: string(report.Period),
		Budget: api.BudgetStatus{
			TokensLimit:     report.Budget.Limit,
			TokensUsed:      report.Budget.Used,
			TokensRemaining: report.Budget.Remaining,
			IsExhausted:     report.Budget.Exhausted,
		},
		Session: api.SessionTotals{
			Ingests:          report.Session.Ingests,
			Queries:          report.Session.Queries,
			EmbeddingTokens:  report.Session.EmbeddingTokens,
			GenerationTokens: report.Session.GenerationTokens,
		},
	}
	if !report.Start.IsZero() {
		start, end := report.Start.UTC(), report.End.UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if !report.Budget.ResetsAt.IsZero() {
		resetsAt := report.Budget.ResetsAt.UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, api.HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Debug("bad request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func sourceToAPI(res domain.QueryResult, withText bool) api.Source {
	src := api.Source{
		ChunkID:     res.Chunk.ID,
		Source:      res.Chunk.SourceName,
		StartOffset: res.Chunk.StartOffset,
		Score:       res.Score,
		MMRScore:    res.MMRScore,
	}
	if withText {
		src.Text = res.Chunk.Text
	}
	return src
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	if tokens, called := usage.Embedding(); called {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(tokens))
	}
	if tokens := usage.Generation(); tokens > 0 {
		w.Header().Set(headerGenerationTokens, strconv.Itoa(tokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorCode, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrPathNotFound,
		domain.ErrNoSupportedDocuments,
		domain.ErrIngestCanceled,
		domain.ErrNotIndexed,
		domain.ErrRebuilding,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingFailure,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationBackend,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code api.ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, api.CodeInternalError, "internal error")
}
