package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/api/v1/query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	r.Get("/api/v1/index", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Get("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chi.URLParam(r, "name"))
	})
	return r
}

func serve(h http.Handler, method, path string) int {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))
	return rr.Code
}

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	r := newRouter()

	tests := []struct {
		method, path, route, status string
	}{
		{http.MethodPost, "/api/v1/query", "/api/v1/query", "200"},
		{http.MethodGet, "/api/v1/index", "/api/v1/index", "409"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			serve(r, tc.method, tc.path)
			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			if after-before != 1 {
				t.Errorf("count grew by %v", after-before)
			}
		})
	}

	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected latency observations")
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := newRouter()
	for _, name := range []string{"a.pdf", "b.md", "c.txt"} {
		serve(r, http.MethodGet, "/files/"+name)
	}
	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/files/{name}", "200")); v < 3 {
		t.Errorf("pattern count = %v, want 3", v)
	}
}

func TestMiddleware_Unmatched(t *testing.T) {
	h := Middleware()(http.NotFoundHandler())
	serve(h, http.MethodGet, "/nope")
	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); v < 1 {
		t.Errorf("unmatched count = %v", v)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()

	IngestTotal.WithLabelValues("success").Inc()
	if v := testutil.ToFloat64(IngestTotal.WithLabelValues("success")); v < 1 {
		t.Errorf("ingest_total = %v", v)
	}
}
