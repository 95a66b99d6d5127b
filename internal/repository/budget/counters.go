// Package budget persists embedding budget counters in the shared KV store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/docrag/internal/db"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Counters stores each period counter as an integer key. Increments are
// atomic, so docrag processes sharing a provider key also share its budget.
type Counters struct {
	kv kv
}

// New creates counters over s.
func New(s kv) *Counters {
	return &Counters{kv: s}
}

// Add increments key by tokens. Only the first write of a period sets the ttl.
func (c *Counters) Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error {
	if _, err := c.kv.IncrWithTTL(ctx, key, tokens, ttl); err != nil {
		return fmt.Errorf("add to budget counter: %w", err)
	}
	return nil
}

// Load returns the counter value; a missing key reads as zero.
func (c *Counters) Load(ctx context.Context, key string) (int64, error) {
	data, err := c.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load budget counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget counter %s holds %q: %w", key, data, err)
	}
	return n, nil
}
