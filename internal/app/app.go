// Package app wires a docrag engine and its supporting services from config.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/chunker"
	"github.com/kailas-cloud/docrag/internal/config"
	"github.com/kailas-cloud/docrag/internal/db"
	dbRedis "github.com/kailas-cloud/docrag/internal/db/redis"
	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/loader"
	"github.com/kailas-cloud/docrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docrag/internal/repository/budget"
	"github.com/kailas-cloud/docrag/internal/repository/embcache"
	"github.com/kailas-cloud/docrag/internal/repository/ingestlog"
	"github.com/kailas-cloud/docrag/internal/retrieval"
	openaiTransport "github.com/kailas-cloud/docrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/docrag/internal/usecase/embedding"
	"github.com/kailas-cloud/docrag/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/docrag/internal/usecase/health"
	usageuc "github.com/kailas-cloud/docrag/internal/usecase/usage"
)

// App holds the wired services.
type App struct {
	Engine *engine.Service
	Health *healthuc.Service
	Usage  *usageuc.Service
	// IngestLog is nil when the cache store is disabled.
	IngestLog *ingestlog.Store

	store db.Store
}

// New builds every service described by cfg. It connects to the cache store
// when enabled and waits for it to become ready.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Register()

	var store db.Store
	if cfg.Cache.Enabled {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		if err := s.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			s.Close()
			return nil, fmt.Errorf("cache store not ready: %w", err)
		}
		store = s
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	budget := buildBudget(ctx, cfg.Embedding, store, logger)

	// A typed nil *Budget inside the interface would not compare equal to nil.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	docEmbedder := buildEmbedder(base, cfg, cfg.Embedding.DocumentInstruction, store, budgetChecker, logger)
	queryEmbedder := buildEmbedder(base, cfg, cfg.Embedding.QueryInstruction, store, budgetChecker, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	registry := loader.DefaultRegistry().Restrict(cfg.Ingest.Extensions)
	scanner := loader.NewScanner(registry, cfg.Ingest.Workers, logger)

	splitter, err := chunker.New(cfg.Chunking.Strategy, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	if err := retrieval.SetTiktokenCacheDir(cfg.Retrieval.TokenizerCacheDir); err != nil {
		closeStore(store)
		return nil, err
	}
	estimator, err := retrieval.NewEstimator(cfg.Retrieval.TokenEstimator, cfg.Retrieval.TokenizerModel)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("create token estimator: %w", err)
	}

	deps := engine.Deps{
		Scanner:          scanner,
		Chunker:          splitter,
		DocumentEmbedder: docEmbedder,
		QueryEmbedder:    queryEmbedder,
		Generator:        generator,
		Assembler:        retrieval.NewAssembler(cfg.Retrieval.ContextBudgetTokens, estimator),
		Logger:           logger,
	}
	var ingestLog *ingestlog.Store
	if store != nil {
		ingestLog = ingestlog.New(store)
		deps.Recorder = ingestLog
	}

	eng := engine.New(deps, engine.Options{
		K:               cfg.Retrieval.K,
		FetchK:          cfg.Retrieval.FetchK,
		Lambda:          &cfg.Retrieval.Lambda,
		MinContentChars: cfg.Ingest.MinContentChars,
		BatchSize:       cfg.Embedding.BatchSize,
		Concurrency:     cfg.Embedding.Concurrency,
		PromptTemplate:  cfg.Generation.SystemPrompt,
		RebuildPolicy:   cfg.Retrieval.RebuildPolicy,
	})

	healthOpts := []healthuc.Option{
		healthuc.WithEmbedding(base),
		healthuc.WithGeneration(generator),
		healthuc.WithIndex(eng),
	}
	if store != nil {
		healthOpts = append(healthOpts, healthuc.WithCache(store))
	}

	logger.Info("Engine ready",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", generator.Model()),
		zap.Strings("extensions", registry.Extensions()),
		zap.String("chunking", cfg.Chunking.Strategy),
		zap.Bool("cache", store != nil),
		zap.Bool("budget", budget != nil),
	)

	return &App{
		Engine:    eng,
		Health:    healthuc.New(healthOpts...),
		Usage:     usageuc.New(budgetReader, eng),
		IngestLog: ingestLog,
		store:     store,
	}, nil
}

// Close releases the cache store connection.
func (a *App) Close() {
	closeStore(a.store)
}

func closeStore(s db.Store) {
	if s != nil {
		s.Close()
	}
}

func buildBudget(
	ctx context.Context, cfg config.EmbeddingConfig, store db.Store, logger *zap.Logger,
) *embeddinguc.Budget {
	if cfg.Budget.DailyTokenLimit <= 0 && cfg.Budget.MonthlyTokenLimit <= 0 {
		return nil
	}
	b := embeddinguc.NewBudget(cfg.Provider, embeddinguc.Limits{
		Daily:   cfg.Budget.DailyTokenLimit,
		Monthly: cfg.Budget.MonthlyTokenLimit,
		Reject:  cfg.Budget.Action == "reject",
	}, logger)
	if store != nil {
		b.WithStore(ctx, budgetrepo.New(store))
	}
	return b
}

// buildEmbedder assembles the decorator chain: provider -> budget -> cache -> instruction.
// Only cache misses reach the budget, so hits never count against it. The
// instruction is outermost so cache keys include it.
func buildEmbedder(
	base domain.Embedder,
	cfg config.Config,
	instruction string,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) batchEmbedder {
	var chain batchEmbedder = embeddinguc.NewMetered(base, budget, logger).WithMaxBatch(cfg.Embedding.BatchSize)
	if store != nil {
		chain = embcache.New(chain, store, metrics.EmbeddingCacheTotal, logger).
			WithNamespace(cfg.Embedding.Model).
			WithTTL(time.Duration(cfg.Cache.EmbeddingTTLHours) * time.Hour)
	}

	if instruction != "" {
		return domain.WithInstruction(chain, instruction)
	}
	return chain
}

type batchEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}
