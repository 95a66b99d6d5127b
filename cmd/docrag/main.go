package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/app"
	"github.com/kailas-cloud/docrag/internal/config"
	logpkg "github.com/kailas-cloud/docrag/internal/logger"
	chiTransport "github.com/kailas-cloud/docrag/internal/transport/chi"
	"github.com/kailas-cloud/docrag/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "docrag:", err)
		os.Exit(1)
	}
}

func run() error {
	ingestPath := flag.String("ingest", "", "folder to index at startup (overrides ingest.initial_path)")
	configPath := flag.String("config", "", "config file (default: config/<ENV>.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("docrag", version.String())
		return nil
	}

	// Real environment variables win over .env.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := loadConfig(*configPath, env)
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docrag",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer services.Close()

	if folder := firstSet(*ingestPath, cfg.Ingest.InitialPath); folder != "" {
		go initialIngest(ctx, services, folder, logger)
	}

	// Keep the interface nil, not a typed nil, when the log is disabled.
	var ingestLog chiTransport.IngestLog
	if services.IngestLog != nil {
		ingestLog = services.IngestLog
	}
	server := chiTransport.NewServer(services.Engine, services.Usage, services.Health, ingestLog, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      chiTransport.Handler(server, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Stopped")
	return nil
}

func loadConfig(path, env string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(env)
}

// initialIngest runs in the background. Queries meanwhile wait or fail fast
// according to the rebuild policy.
func initialIngest(ctx context.Context, services *app.App, folder string, logger *zap.Logger) {
	stats, err := services.Engine.Ingest(ctx, folder)
	if err != nil {
		logger.Error("Initial ingest failed", zap.String("folder", folder), zap.Error(err))
		return
	}
	logger.Info("Initial ingest done",
		zap.String("folder", folder),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration),
	)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
