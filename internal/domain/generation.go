package domain

import (
	"context"
	"strings"
)

// ContextSlot is the placeholder replaced by the assembled context block.
const ContextSlot = "{context}"

// GenerationRequest is the input to a generation backend.
type GenerationRequest struct {
	// PromptTemplate is the system prompt containing ContextSlot.
	PromptTemplate string
	Question       string
	Context        string
}

// SystemPrompt renders the template with the context block.
// A template without the slot gets the context appended.
func (r GenerationRequest) SystemPrompt() string {
	if !strings.Contains(r.PromptTemplate, ContextSlot) {
		if r.Context == "" {
			return r.PromptTemplate
		}
		return r.PromptTemplate + "\n\n" + r.Context
	}
	return strings.ReplaceAll(r.PromptTemplate, ContextSlot, r.Context)
}

// GenerationResult carries the answer text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator produces an answer grounded on a context block.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}
