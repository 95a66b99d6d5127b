package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docrag/internal/domain"
	"github.com/kailas-cloud/docrag/internal/metrics"
)

// DefaultTemperature keeps answers close to the supplied context.
const DefaultTemperature = 0.3

// Generator answers questions through an OpenAI-compatible chat completion endpoint.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// GeneratorConfig holds the chat backend settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// MaxTokens caps the completion; 0 leaves it to the backend.
	MaxTokens int
	// Timeout bounds a single completion call; 0 means no extra deadline.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewGenerator creates a chat completion backend.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Generate implements domain.Generator. The rendered system prompt carries the
// context block; the question goes in as the user turn.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: req.Question},
		},
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		chatReq.MaxTokens = g.maxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return domain.GenerationResult{}, describeAPIError("generation", err, domain.ErrGenerationBackend)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationBackend)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	g.logger.Debug("completion done",
		zap.String("model", g.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	return domain.GenerationResult{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies the chat backend is reachable.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return ping(ctx, g.client)
}
