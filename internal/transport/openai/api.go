// Package openai adapts OpenAI-compatible HTTP APIs to the embedding provider
// and generation backend contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// ping lists models, which every compatible server implements and which costs no tokens.
func ping(ctx context.Context, c *openai.Client) error {
	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// describeAPIError wraps an SDK error with kind and keeps the server's message.
func describeAPIError(op string, err, kind error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w: %w", op, err, kind)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := detail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, msg, kind)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, kind)
	}

	return fmt.Errorf("%s request failed: %v: %w", op, err, kind)
}

// detail reads the {"detail": "..."} body some compatible servers return.
func detail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Detail
}
