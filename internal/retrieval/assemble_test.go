package retrieval

import (
	"os"
	"strings"
	"testing"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// --- Mocks ---

// wordEstimator counts whitespace-separated words.
type wordEstimator struct{}

func (wordEstimator) EstimateTokens(text string) int { return len(strings.Fields(text)) }

func results(texts ...string) []domain.QueryResult {
	out := make([]domain.QueryResult, len(texts))
	for i, t := range texts {
		out[i] = domain.QueryResult{Chunk: domain.Chunk{ID: t, Text: t}}
	}
	return out
}

// --- Tests ---

func TestAssemble_NoBudgetKeepsEverything(t *testing.T) {
	a := NewAssembler(0, wordEstimator{})
	ctx := a.Assemble(results("--- from a.txt ---\none", "--- from b.txt ---\ntwo"))

	want := "--- from a.txt ---\none\n\n--- from b.txt ---\ntwo"
	if ctx.Text != want {
		t.Errorf("got %q, want %q", ctx.Text, want)
	}
	if ctx.Dropped != 0 || len(ctx.Used) != 2 {
		t.Errorf("unexpected truncation: dropped=%d used=%d", ctx.Dropped, len(ctx.Used))
	}
}

func TestAssemble_DropsFromTail(t *testing.T) {
	a := NewAssembler(5, wordEstimator{})
	ctx := a.Assemble(results("w1 w2", "w3 w4", "w5 w6", "w7"))

	if len(ctx.Used) != 2 || ctx.Used[0].Chunk.ID != "w1 w2" || ctx.Used[1].Chunk.ID != "w3 w4" {
		t.Fatalf("expected first two results kept, got %+v", ctx.Used)
	}
	if ctx.Dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", ctx.Dropped)
	}
	if ctx.Tokens != 4 {
		t.Errorf("expected 4 tokens, got %d", ctx.Tokens)
	}
	if ctx.Text != "w1 w2\n\nw3 w4" {
		t.Errorf("unexpected text %q", ctx.Text)
	}
}

func TestAssemble_FirstChunkOverBudget(t *testing.T) {
	a := NewAssembler(1, wordEstimator{})
	ctx := a.Assemble(results("too many words"))
	if ctx.Text != "" || ctx.Dropped != 1 {
		t.Errorf("expected empty block, got %q dropped=%d", ctx.Text, ctx.Dropped)
	}
}

func TestAssemble_Empty(t *testing.T) {
	ctx := NewAssembler(100, nil).Assemble(nil)
	if ctx.Text != "" || len(ctx.Used) != 0 {
		t.Errorf("expected empty context, got %+v", ctx)
	}
}

func TestRuneEstimator(t *testing.T) {
	e := RuneEstimator{}
	cases := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, "文档文档文": 2}
	for in, want := range cases {
		if got := e.EstimateTokens(in); got != want {
			t.Errorf("%q: got %d, want %d", in, got, want)
		}
	}
}

func TestNewEstimator(t *testing.T) {
	if e, err := NewEstimator("", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if _, ok := e.(RuneEstimator); !ok {
		t.Errorf("expected RuneEstimator, got %T", e)
	}
	if _, err := NewEstimator("bytes", ""); err == nil {
		t.Error("expected error for unknown estimator")
	}
}

func TestSetTiktokenCacheDir(t *testing.T) {
	t.Setenv(tiktokenCacheEnv, "/previous")

	if err := SetTiktokenCacheDir(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv(tiktokenCacheEnv); got != "/previous" {
		t.Errorf("empty dir changed env to %q", got)
	}

	dir := t.TempDir()
	if err := SetTiktokenCacheDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv(tiktokenCacheEnv); got != dir {
		t.Errorf("env = %q, want %q", got, dir)
	}
}
