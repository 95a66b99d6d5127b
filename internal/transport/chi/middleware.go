package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/docrag/internal/logger"
	"github.com/kailas-cloud/docrag/internal/metrics"
	"github.com/kailas-cloud/docrag/pkg/api"
)

// Handler mounts the API behind the standard middleware stack:
// recovery, request IDs, request logging, auth, metrics.
func Handler(s *Server, apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLog(s.logger))
	r.Use(APIKeyAuth(apiKeys, PublicPaths...))
	r.Use(metrics.Middleware())
	s.Routes(r)
	return r
}

// Recover turns a handler panic into a JSON 500.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rvr),
					zap.Stack("stacktrace"),
				)
				writeError(w, http.StatusInternalServerError, api.CodeInternalError, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLog writes one line per request with its outcome and token usage,
// and hands a request-scoped logger to handlers through the context.
func RequestLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := chiMiddleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			reqLogger := logger.With(zap.String("request_id", reqID))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logpkg.WithContext(r.Context(), reqLogger)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if v := ww.Header().Get(headerEmbeddingTokens); v != "" {
				fields = append(fields, zap.String("embedding_tokens", v))
			}
			if v := ww.Header().Get(headerGenerationTokens); v != "" {
				fields = append(fields, zap.String("generation_tokens", v))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
