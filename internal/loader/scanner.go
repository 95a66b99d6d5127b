package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

// DefaultWorkers bounds concurrent file loads.
const DefaultWorkers = 4

type outcome uint8

const (
	outcomeLoaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSkipped:
		return "skipped"
	case outcomeFailed:
		return "failed"
	default:
		return "loaded"
	}
}

// ScanResult is the outcome of one folder scan.
type ScanResult struct {
	// Documents are in path order.
	Documents []domain.Document
	Skipped   int
	Failed    int
}

// Scanner walks a folder and loads every supported file.
type Scanner struct {
	registry *Registry
	workers  int
	logger   *zap.Logger
}

// NewScanner creates a Scanner. workers <= 0 means DefaultWorkers.
func NewScanner(registry *Registry, workers int, logger *zap.Logger) *Scanner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scanner{registry: registry, workers: workers, logger: logger}
}

// Scan loads all supported files under root, recursively. A file that fails
// to load is logged and counted, never fatal. The only errors are an
// unreadable root and context cancellation, checked before every file.
func (s *Scanner) Scan(ctx context.Context, root string) (ScanResult, error) {
	paths, err := s.collect(root)
	if err != nil {
		return ScanResult{}, err
	}

	docs := make([]domain.Document, len(paths))
	outcomes := make([]outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err //nolint:wrapcheck // context error
			}
			doc, oc := s.load(gctx, root, rel)
			docs[i], outcomes[i] = doc, oc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanResult{}, fmt.Errorf("scan %s: %w", root, err)
	}

	res := ScanResult{Documents: make([]domain.Document, 0, len(paths))}
	for i, oc := range outcomes {
		switch oc {
		case outcomeLoaded:
			res.Documents = append(res.Documents, docs[i])
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}
	}
	return res, nil
}

func (s *Scanner) load(ctx context.Context, root, rel string) (domain.Document, outcome) {
	adapter, _ := s.registry.Lookup(rel)
	path := filepath.Join(root, filepath.FromSlash(rel))

	doc, err := adapter.Load(ctx, path)
	oc := outcomeLoaded
	switch {
	case errors.Is(err, ErrSkip):
		oc = outcomeSkipped
		s.logger.Debug("Skipping file", zap.String("path", path), zap.Error(err))
	case err != nil:
		oc = outcomeFailed
		s.logger.Warn("Failed to load file",
			zap.String("path", path),
			zap.String("adapter", adapter.Name()),
			zap.Error(err),
		)
	default:
		doc.ID = documentID(rel)
	}
	metrics.LoaderFilesTotal.WithLabelValues(adapter.Name(), oc.String()).Inc()
	return doc, oc
}

// collect returns slash-separated paths relative to root, sorted, for files a
// registered adapter handles. Hidden files and directories are ignored.
func (s *Scanner) collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var paths []string
	err = doublestar.GlobWalk(os.DirFS(root), "**", func(p string, _ fs.DirEntry) error {
		if isHidden(p) {
			return nil
		}
		if _, ok := s.registry.Lookup(p); ok {
			paths = append(paths, p)
		}
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.Sort(paths)
	return paths, nil
}

func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// documentID derives a stable id from the path relative to the scan root.
func documentID(rel string) string {
	h := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(h[:8])
}
