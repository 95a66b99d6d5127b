package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docrag/internal/db"
)

// Get returns the value at key or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: err}
	}
	return data, nil
}

// Set writes value at key. A positive ttl is rounded down to whole seconds.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = set.Ex(ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// IncrWithTTL sends INCRBY and EXPIRE NX in one round trip.
func (s *Store) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	cmds := rueidis.Commands{
		s.client.B().Incrby().Key(key).Increment(delta).Build(),
		s.client.B().Expire().Key(key).Seconds(int64(ttl / time.Second)).Nx().Build(),
	}
	res := s.client.DoMulti(ctx, cmds...)

	total, err := res[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncr, Key: key, Err: err}
	}
	if err := res[1].Error(); err != nil {
		return total, &db.Error{Op: db.OpExpire, Key: key, Err: err}
	}
	return total, nil
}
