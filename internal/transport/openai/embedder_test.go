package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

// embeddingServer answers with one vector per input, [len(text), i], in the
// order given by order (nil means request order).
func embeddingServer(t *testing.T, got *embeddingRequest, order []int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		idx := order
		if idx == nil {
			for i := range got.Input {
				idx = append(idx, i)
			}
		}
		data := make([]map[string]any, 0, len(idx))
		for _, i := range idx {
			vec := []float32{0, float32(i)}
			if i >= 0 && i < len(got.Input) {
				vec[0] = float32(len(got.Input[i]))
			}
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  got.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 3 * len(got.Input), "total_tokens": 3 * len(got.Input)},
		})
	}))
}

func testEmbedder(url string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		Provider:   "openai",
	})
}

func TestEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	server := embeddingServer(t, &got, nil)
	defer server.Close()

	res, err := testEmbedder(server.URL).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got.Model != "text-embedding-3-small" || got.Dimensions != 2 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Input) != 1 || got.Input[0] != "hello" {
		t.Errorf("input = %v", got.Input)
	}
	if res.Embedding[0] != 5 || res.TotalTokens != 3 || res.PromptTokens != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestEmbedder_BatchEmbedPlacesByIndex(t *testing.T) {
	var got embeddingRequest
	server := embeddingServer(t, &got, []int{2, 0, 1})
	defer server.Close()

	texts := []string{"a", "bb", "ccc"}
	res, err := testEmbedder(server.URL).BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	for i, text := range texts {
		if res.Embeddings[i][0] != float32(len(text)) || res.Embeddings[i][1] != float32(i) {
			t.Errorf("vector %d = %v", i, res.Embeddings[i])
		}
	}
	if res.TotalTokens != 9 {
		t.Errorf("tokens = %d", res.TotalTokens)
	}
}

func TestEmbedder_BatchEmbedEmpty(t *testing.T) {
	res, err := testEmbedder("http://127.0.0.1:0").BatchEmbed(context.Background(), nil)
	if err != nil || len(res.Embeddings) != 0 {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestEmbedder_BadResponses(t *testing.T) {
	cases := map[string][]int{
		"short":     {0},
		"repeated":  {0, 0},
		"out_range": {0, 5},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			var got embeddingRequest
			server := embeddingServer(t, &got, order)
			defer server.Close()

			_, err := testEmbedder(server.URL).BatchEmbed(context.Background(), []string{"a", "b"})
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected provider error, got %v", err)
			}
		})
	}
}

func TestEmbedder_APIErrorKeepsDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"input too long"}`))
	}))
	defer server.Close()

	_, err := testEmbedder(server.URL).Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !strings.Contains(err.Error(), "input too long") {
		t.Errorf("detail lost: %v", err)
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	if err := testEmbedder(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	server.Close()
	if err := testEmbedder(server.URL).HealthCheck(context.Background()); err == nil {
		t.Error("expected error once the server is gone")
	}
}

func TestDetail(t *testing.T) {
	if got := detail([]byte(`{"detail":"nope"}`)); got != "nope" {
		t.Errorf("detail = %q", got)
	}
	if got := detail([]byte(`not json`)); got != "" {
		t.Errorf("detail = %q", got)
	}
}
