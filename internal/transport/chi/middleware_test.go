package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/kailas-cloud/docrag/internal/logger"
	"github.com/kailas-cloud/docrag/pkg/api"
)

func TestRecover_WritesJSON500(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recover(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/index", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body.Code != api.CodeInternalError {
		t.Errorf("body = %+v, err = %v", body, err)
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d entries", logs.Len())
	}
}

func TestRequestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var scoped bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = logpkg.FromContext(r.Context()).Core().Enabled(zap.InfoLevel)
		w.Header().Set(headerEmbeddingTokens, "9")
		w.WriteHeader(http.StatusAccepted)
	})
	h := chiMiddleware.RequestID(RequestLog(zap.New(core))(inner))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/query", http.NoBody))

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if !scoped {
		t.Error("handler did not receive the request logger")
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusAccepted) || fields["embedding_tokens"] != "9" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["generation_tokens"]; ok {
		t.Error("generation_tokens logged without the header")
	}
	if fields["request_id"] == "" {
		t.Error("request_id missing")
	}
}
