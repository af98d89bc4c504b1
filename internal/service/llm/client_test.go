package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOpenAIClient(config.LLMConfig{
		Provider:   config.ProviderOpenAI,
		APIKey:     "test-key",
		Model:      "test-model",
		BaseURL:    server.URL,
		MaxRetries: 3,
	})
	client.backoff = func(int) time.Duration { return 0 }
	return client
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestOpenAIClientSendsMessagesAndOptions(t *testing.T) {
	var captured struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeCompletion(w, "Hello from the model")
	})

	reply, err := client.Complete(context.Background(), []*schema.Message{
		schema.SystemMessage("persona"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("price?"),
	}, Options{MaxTokens: 300, Temperature: 0.8})
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", reply)

	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 300, captured.MaxTokens)
	assert.InDelta(t, 0.8, captured.Temperature, 0.001)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "assistant", captured.Messages[2].Role)
	assert.Equal(t, "price?", captured.Messages[3].Content)
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
			return
		}
		writeCompletion(w, "recovered")
	})

	reply, err := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("hi")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("hi")}, Options{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})
	client.maxRetries = 1

	_, err := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("hi")}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

type fakeChatModel struct {
	reply *schema.Message
	err   error
	opts  *model.Options
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.opts = model.GetCommonOptions(&model.Options{}, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatModelClientPassesOptions(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("ark reply", nil)}
	client := NewChatModelClient(fake)

	reply, err := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("hi")}, Options{MaxTokens: 300, Temperature: 0.8})
	require.NoError(t, err)
	assert.Equal(t, "ark reply", reply)
	require.NotNil(t, fake.opts.MaxTokens)
	assert.Equal(t, 300, *fake.opts.MaxTokens)
	require.NotNil(t, fake.opts.Temperature)
	assert.InDelta(t, 0.8, *fake.opts.Temperature, 0.001)
	assert.Len(t, fake.input, 1)
}

func TestChatModelClientWrapsErrors(t *testing.T) {
	client := NewChatModelClient(&fakeChatModel{err: errors.New("quota exceeded")})
	_, err := client.Complete(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

type fakeLangChainModel struct {
	messages []llms.MessageContent
	content  string
}

func (f *fakeLangChainModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeLangChainModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return f.content, nil
}

func TestLangChainClientMapsRoles(t *testing.T) {
	fake := &fakeLangChainModel{content: "ollama reply"}
	client := NewLangChainClient(fake)

	reply, err := client.Complete(context.Background(), []*schema.Message{
		schema.SystemMessage("persona"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
	}, Options{MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "ollama reply", reply)
	require.Len(t, fake.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.messages[2].Role)
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: config.ProviderOpenAI, Model: "m"})
	require.Error(t, err)
}
