package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

// LangChainClient adapts a langchaingo model to Client.
type LangChainClient struct {
	model llms.Model
}

// NewLangChainClient wraps any langchaingo model.
func NewLangChainClient(m llms.Model) *LangChainClient {
	return &LangChainClient{model: m}
}

// NewOllamaClient creates a client for a local Ollama server.
func NewOllamaClient(cfg config.LLMConfig) (*LangChainClient, error) {
	m, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return NewLangChainClient(m), nil
}

// Complete implements Client.
func (c *LangChainClient) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(float64(opts.Temperature))}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, toLangChainMessages(messages), callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}

func toLangChainMessages(messages []*schema.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case schema.System:
			role = llms.ChatMessageTypeSystem
		case schema.Assistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}
