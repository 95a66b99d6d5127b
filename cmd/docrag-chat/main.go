package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/app"
	"github.com/kailas-cloud/docrag/internal/config"
	"github.com/kailas-cloud/docrag/internal/domain"
	logpkg "github.com/kailas-cloud/docrag/internal/logger"
	"github.com/kailas-cloud/docrag/internal/tui"
	"github.com/kailas-cloud/docrag/internal/version"
	"github.com/kailas-cloud/docrag/pkg/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "docrag-chat:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default: config/<ENV>.yaml)")
	remote := flag.String("remote", "", "docrag server URL; chat through it instead of an in-process engine")
	apiKey := flag.String("api-key", os.Getenv("DOCRAG_API_KEY"), "bearer key for -remote")
	noIngest := flag.Bool("no-ingest", false, "skip the initial ingest (the server already has an index)")
	logFile := flag.String("log-file", "", "write logs to this file (default: discard)")
	logLevel := flag.String("log-level", "", "log level for -log-file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <folder>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("docrag-chat", version.String())
		return nil
	}

	folder := flag.Arg(0)
	if folder == "" && !*noIngest {
		flag.Usage()
		return fmt.Errorf("folder is required")
	}

	_ = godotenv.Load()

	logger, err := logpkg.NewFileLogger(*logFile, *logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend tui.Backend
	if *remote != "" {
		c, err := client.New(*remote, client.WithAPIKey(*apiKey), client.WithRetries(2))
		if err != nil {
			return err
		}
		backend = remoteBackend{client: c}
		logger.Info("chatting through server", zap.String("url", *remote))
	} else {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		services, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer services.Close()
		backend = services.Engine
	}

	m := tui.New(ctx, backend, folder, *noIngest)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(config.GetEnv())
}

// remoteBackend adapts the HTTP client to the chat backend.
type remoteBackend struct {
	client *client.Client
}

func (b remoteBackend) Ingest(ctx context.Context, folder string) (domain.IngestStats, error) {
	resp, err := b.client.Ingest(ctx, folder)
	if err != nil {
		return domain.IngestStats{}, err
	}
	return domain.IngestStats{
		Documents:    resp.DocumentCount,
		Chunks:       resp.ChunkCount,
		SkippedShort: resp.SkippedShort,
		SkippedFiles: resp.SkippedFiles,
		FailedFiles:  resp.FailedFiles,
		Duration:     time.Duration(resp.DurationMs) * time.Millisecond,
	}, nil
}

func (b remoteBackend) Query(ctx context.Context, question string) (domain.Answer, error) {
	resp, err := b.client.Query(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	sources := make([]domain.QueryResult, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, domain.QueryResult{
			Chunk:    domain.Chunk{ID: s.ChunkID, SourceName: s.Source, StartOffset: s.StartOffset},
			Score:    s.Score,
			MMRScore: s.MMRScore,
		})
	}
	return domain.Answer{
		Text:        resp.Answer,
		Sources:     sources,
		Dropped:     resp.DroppedSources,
		TotalTokens: resp.TotalTokens,
	}, nil
}
