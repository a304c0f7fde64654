// Package llm talks to the generative text service.
package llm

import (
	"context"
	"fmt"
	"strings"

	"tweetsmith/internal/config"
)

// Request is one completion call: a fixed system instruction plus the
// category prompt and sampling parameters.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider returns free text for a request. Errors wrap model.ErrTransient
// when a retry may help and model.ErrAuth when credentials are rejected.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
