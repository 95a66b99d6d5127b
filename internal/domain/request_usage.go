package domain

import (
	"context"
	"sync"
)

type requestUsageKey struct{}

// RequestUsage tallies provider tokens spent while serving one request. The
// HTTP layer attaches it to the context, the engine adds to it, and the
// handler copies the totals into response headers.
type RequestUsage struct {
	mu         sync.Mutex
	embedded   bool
	embedding  int
	generation int
}

// WithRequestUsage returns ctx carrying a fresh collector.
func WithRequestUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, requestUsageKey{}, u), u
}

// RequestUsageFrom returns the collector in ctx, or nil. All methods accept a nil receiver.
func RequestUsageFrom(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(requestUsageKey{}).(*RequestUsage)
	return u
}

// AddEmbedding records an embedding call. Zero tokens still counts as a call
// (every vector came from the cache).
func (u *RequestUsage) AddEmbedding(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embedded = true
	u.embedding += tokens
	u.mu.Unlock()
}

// AddGeneration records tokens billed by the generation backend.
func (u *RequestUsage) AddGeneration(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.generation += tokens
	u.mu.Unlock()
}

// Embedding returns the embedding tokens and whether any embedding call was made.
func (u *RequestUsage) Embedding() (tokens int, called bool) {
	if u == nil {
		return 0, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.embedding, u.embedded
}

// Generation returns the generation tokens.
func (u *RequestUsage) Generation() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.generation
}
