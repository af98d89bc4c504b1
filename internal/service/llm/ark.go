package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

// ChatModelClient adapts an eino chat model to Client.
type ChatModelClient struct {
	model model.BaseChatModel
}

// NewChatModelClient wraps any eino chat model.
func NewChatModelClient(m model.BaseChatModel) *ChatModelClient {
	return &ChatModelClient{model: m}
}

// NewArkClient 使用 Ark 配置创建模型客户端。
func NewArkClient(ctx context.Context, cfg config.LLMConfig) (*ChatModelClient, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return NewChatModelClient(chatModel), nil
}

// Complete implements Client.
func (c *ChatModelClient) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	var modelOpts []model.Option
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	modelOpts = append(modelOpts, model.WithTemperature(opts.Temperature))

	resp, err := c.model.Generate(ctx, messages, modelOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}
