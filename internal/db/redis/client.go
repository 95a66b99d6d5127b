// Package redis implements db.Store on Redis or Valkey through rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docrag/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	firstRetry = 50 * time.Millisecond
	maxRetry   = time.Second
)

// Config holds connection settings.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store is a rueidis-backed db.Store.
type Store struct {
	client rueidis.Client
}

// NewStore connects to cfg.Addrs. Client-side caching is off; every value is
// read once per ingest at most.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: connect %v: %w", cfg.Addrs, err)
	}
	return newStore(client), nil
}

func newStore(client rueidis.Client) *Store {
	return &Store{client: client}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady pings until the server answers, doubling the pause between
// attempts up to a second.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := firstRetry
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store not ready after %s (last error: %v): %w", timeout, err, ctx.Err())
		case <-time.After(wait):
		}
		wait = min(2*wait, maxRetry)
	}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.client.Close()
}
