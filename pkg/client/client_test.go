package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/docrag/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"localhost:8080", "ftp://host", "http://", "://"} {
		if _, err := New(u); err == nil {
			t.Errorf("%q: expected error", u)
		}
	}
}

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/query" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req api.QuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Question != "capital?" {
			t.Errorf("question = %q", req.Question)
		}
		writeJSON(w, http.StatusOK, api.QueryResponse{
			Answer:  "Paris.",
			Sources: []api.Source{{ChunkID: "d-0", Source: "geo.txt", Score: 0.9}},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Query(context.Background(), "capital?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer != "Paris." || len(resp.Sources) != 1 || resp.Sources[0].Source != "geo.txt" {
		t.Errorf("response = %+v", resp)
	}
}

func TestIngest_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Code: api.CodePathNotFound, Message: "path not found"})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Ingest(context.Background(), "/missing")
	if !IsCode(err, api.CodePathNotFound) {
		t.Fatalf("expected path_not_found, got %v", err)
	}
	if IsCode(err, api.CodeNotIndexed) {
		t.Error("IsCode matched the wrong code")
	}
	var e *Error
	if !errors.As(err, &e) || e.StatusCode != http.StatusNotFound {
		t.Errorf("error = %#v", err)
	}
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Retrieve(context.Background(), "q")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.StatusCode != http.StatusBadGateway || e.Code != "" || e.Message != "bad gateway" {
		t.Errorf("error = %+v", e)
	}
}

func TestUsage_PeriodParam(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.RawQuery)
		writeJSON(w, http.StatusOK, api.UsageResponse{Period: "day", Budget: api.BudgetStatus{TokensLimit: 10}})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	resp, err := c.Usage(context.Background(), "day")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if got.Load() != "period=day" {
		t.Errorf("query = %v", got.Load())
	}
	if resp.Period != "day" || resp.Budget.TokensLimit != 10 {
		t.Errorf("response = %+v", resp)
	}

	if _, err := c.Usage(context.Background(), ""); err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if got.Load() != "" {
		t.Errorf("query = %v, want none", got.Load())
	}
}

func TestHealth_DegradedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{
			Status: "degraded",
			Checks: map[string]string{"generation": "error"},
		})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["generation"] != "error" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRetry_GetOnly(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Code: api.CodeRebuilding, Message: "index is rebuilding"})
			return
		}
		if gets.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Code: api.CodeRebuilding})
			return
		}
		writeJSON(w, http.StatusOK, api.IndexResponse{Indexed: true, ChunkCount: 4})
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithRetries(3))

	resp, err := c.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if !resp.Indexed || resp.ChunkCount != 4 || gets.Load() != 3 {
		t.Errorf("response = %+v after %d attempts", resp, gets.Load())
	}

	_, err = c.Query(context.Background(), "q")
	if !IsCode(err, api.CodeRebuilding) {
		t.Fatalf("expected rebuilding, got %v", err)
	}
	if posts.Load() != 1 {
		t.Errorf("query attempts = %d, want 1", posts.Load())
	}
}
