// Package db defines the key-value backend shared by the embedding cache,
// the budget counters and the ingest log.
package db

import (
	"context"
	"time"
)

// Store is the full backend. Consumers declare the narrow slice they use.
type Store interface {
	Pinger
	KVStore
	CounterStore
	HashStore
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore holds opaque values. A ttl of zero means no expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CounterStore holds integer counters.
type CounterStore interface {
	// IncrWithTTL adds delta and returns the new value. The ttl applies only
	// when the key has no expiry yet.
	IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// HashStore holds string field maps.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}
