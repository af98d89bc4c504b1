// Package llm provides chat-completion clients for the assistant.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

// ErrEmptyCompletion is returned when a provider answers without any choices.
var ErrEmptyCompletion = errors.New("empty completion response")

// Options controls a single completion request.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// Client turns an ordered message list into one assistant reply.
type Client interface {
	Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, messages []*schema.Message, opts Options) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// New creates the client for the configured provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("llm provider %q is missing credentials or model", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderArk:
		return NewArkClient(ctx, cfg)
	case config.ProviderOllama:
		return NewOllamaClient(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
