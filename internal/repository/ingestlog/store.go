// Package ingestlog persists a summary of the last successful ingest so a
// restarted server can report what was indexed before.
package ingestlog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/docrag/internal/domain"
)

const lastKey = domain.KeyPrefix + "ingest:last"

// store is the consumer interface for the ingest log.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Store keeps the last ingest summary in a hash.
type Store struct {
	store store
}

// New creates an ingest log.
func New(s store) *Store {
	return &Store{store: s}
}

// Record overwrites the last ingest entry.
func (s *Store) Record(ctx context.Context, e domain.IngestRecord) error {
	fields := map[string]string{
		"root":          e.Root,
		"documents":     strconv.Itoa(e.Stats.Documents),
		"chunks":        strconv.Itoa(e.Stats.Chunks),
		"skipped_short": strconv.Itoa(e.Stats.SkippedShort),
		"skipped_files": strconv.Itoa(e.Stats.SkippedFiles),
		"failed_files":  strconv.Itoa(e.Stats.FailedFiles),
		"duration_ms":   strconv.FormatInt(e.Stats.Duration.Milliseconds(), 10),
		"dimension":     strconv.Itoa(e.Dimension),
		"at":            e.At.UTC().Format(time.RFC3339),
	}
	if err := s.store.HSet(ctx, lastKey, fields); err != nil {
		return fmt.Errorf("record ingest: %w", err)
	}
	return nil
}

// Last returns the last recorded ingest. ok is false when nothing was recorded.
func (s *Store) Last(ctx context.Context) (domain.IngestRecord, bool, error) {
	m, err := s.store.HGetAll(ctx, lastKey)
	if err != nil {
		return domain.IngestRecord{}, false, fmt.Errorf("read ingest log: %w", err)
	}
	if len(m) == 0 {
		return domain.IngestRecord{}, false, nil
	}

	at, err := time.Parse(time.RFC3339, m["at"])
	if err != nil {
		return domain.IngestRecord{}, false, fmt.Errorf("parse ingest time %q: %w", m["at"], err)
	}
	durMs, _ := strconv.ParseInt(m["duration_ms"], 10, 64)

	return domain.IngestRecord{
		Root: m["root"],
		Stats: domain.IngestStats{
			Documents:    atoi(m["documents"]),
			Chunks:       atoi(m["chunks"]),
			SkippedShort: atoi(m["skipped_short"]),
			SkippedFiles: atoi(m["skipped_files"]),
			FailedFiles:  atoi(m["failed_files"]),
			Duration:     time.Duration(durMs) * time.Millisecond,
		},
		Dimension: atoi(m["dimension"]),
		At:        at,
	}, true, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
