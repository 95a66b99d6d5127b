package redis

import (
	"context"

	"github.com/kailas-cloud/docrag/internal/db"
)

// HSet writes fields into the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	cmd := s.client.B().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Key: key, Err: err}
	}
	return nil
}

// HGetAll returns every field of the hash; a missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.Do(ctx, s.client.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Key: key, Err: err}
	}
	return m, nil
}
