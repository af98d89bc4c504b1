// Package assistant runs one customer-support turn: it retrieves prior
// context, grounds the prompt in the catalog, calls the completion client and
// patches the reply with authoritative product facts.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/service/llm"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

// FallbackReply is persisted and returned whenever the completion fails.
const FallbackReply = "I'm having trouble connecting right now. Can you try again in a moment? 😅"

// ErrEmptyUtterance rejects blank input before anything is persisted.
var ErrEmptyUtterance = errors.New("utterance is empty")

// Metadata keys stored on assistant messages.
const (
	MetadataMatchedProducts = "matched_products"
	MetadataReconciled      = "reconciled"
	MetadataFallback        = "fallback"
)

// Options tunes a Service. Zero values take the defaults.
type Options struct {
	PersonaID    string
	ContextLimit int
	MaxProducts  int
	MaxTokens    int
	Temperature  float32
	Logger       *slog.Logger
}

// Service is the turn pipeline.
type Service struct {
	store     store.ContextStore
	client    llm.Client
	retriever *Retriever
	matcher   *Matcher
	extractor *Extractor
	persona   string
	opts      Options
	logger    *slog.Logger
}

// TurnResult is the outcome of one utterance.
type TurnResult struct {
	ConversationID     string            `json:"conversationId"`
	Reply              string            `json:"reply"`
	Products           []catalog.Product `json:"products"`
	Reconciled         bool              `json:"reconciled"`
	Fallback           bool              `json:"fallback"`
	UserMessageID      string            `json:"userMessageId"`
	AssistantMessageID string            `json:"assistantMessageId"`
}

// NewService wires the pipeline. A nil client makes every turn answer with
// FallbackReply.
func NewService(st store.ContextStore, products catalog.Store, client llm.Client, opts Options) *Service {
	if opts.PersonaID == "" {
		opts.PersonaID = DefaultPersonaID
	}
	if opts.ContextLimit < 0 {
		opts.ContextLimit = 0
	} else if opts.ContextLimit == 0 {
		opts.ContextLimit = DefaultContextLimit
	}
	if opts.MaxProducts <= 0 {
		opts.MaxProducts = catalog.DefaultMatchLimit
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     st,
		client:    client,
		retriever: NewRetriever(st),
		matcher:   NewMatcher(products, opts.MaxProducts),
		extractor: NewExtractor(st, logger),
		persona:   NewPersonaPromptManager().BuildSystemPrompt(opts.PersonaID),
		opts:      opts,
		logger:    logger,
	}
}

// StartConversation creates a conversation and binds it to the session,
// clearing its history. A blank title becomes "Ecokart Session - <n>".
func (s *Service) StartConversation(ctx context.Context, sess *chat.Session, create *store.CreateConversation) (*chat.Conversation, error) {
	req := store.CreateConversation{}
	if create != nil {
		req = *create
	}

	if strings.TrimSpace(req.Title) == "" {
		stats, err := s.store.Statistics(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count conversations: %w", err)
		}
		req.Title = fmt.Sprintf("Ecokart Session - %d", stats.TotalConversations+1)
	}

	conv, err := s.store.CreateConversation(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	sess.Bind(conv.ID)
	s.logger.Info("started conversation", "session_id", sess.ID, "conversation_id", conv.ID, "title", conv.Title)
	return conv, nil
}

// LoadConversation binds an existing conversation, replacing the session
// history with its stored messages.
func (s *Service) LoadConversation(ctx context.Context, sess *chat.Session, conversationID string) (*chat.ConversationDetail, error) {
	detail, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	sess.Reset(detail.ID, detail.Messages)
	s.logger.Info("loaded conversation", "session_id", sess.ID, "conversation_id", detail.ID, "messages", len(detail.Messages))
	return detail, nil
}

// Respond processes one utterance. Only persistence failures are returned
// as errors; a failed completion yields FallbackReply.
func (s *Service) Respond(ctx context.Context, sess *chat.Session, utterance, currentContext string) (*TurnResult, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}

	if !sess.Active() {
		if _, err := s.StartConversation(ctx, sess, nil); err != nil {
			return nil, err
		}
	}
	conversationID := sess.ConversationID

	var (
		previous []chat.RelevantContext
		products []catalog.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		previous, err = s.retriever.Retrieve(gctx, utterance, s.opts.ContextLimit)
		return err
	})
	g.Go(func() error {
		products = s.matcher.Match(utterance)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if products == nil {
		products = []catalog.Product{}
	}

	userMsg, err := s.store.AppendMessage(ctx, &store.AppendMessage{
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        utterance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	sess.Append(*userMsg)

	messages := Compose(PromptInput{
		Persona:        s.persona,
		CurrentContext: currentContext,
		Previous:       previous,
		Products:       products,
		History:        sess.History(),
	})

	result := &TurnResult{
		ConversationID: conversationID,
		Products:       products,
		UserMessageID:  userMsg.ID,
	}

	raw, err := s.complete(ctx, messages)
	if err != nil {
		s.logger.Error("failed to generate response", "session_id", sess.ID, "conversation_id", conversationID, "error", err)

		fallback, err := s.store.AppendMessage(ctx, &store.AppendMessage{
			ConversationID: conversationID,
			Role:           chat.RoleAssistant,
			Content:        FallbackReply,
			Metadata:       map[string]any{MetadataFallback: true},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save fallback reply: %w", err)
		}
		sess.Append(*fallback)

		result.Reply = FallbackReply
		result.Fallback = true
		result.AssistantMessageID = fallback.ID
		return result, nil
	}

	reply, reconciled := Reconcile(raw, products)

	assistantMsg, err := s.store.AppendMessage(ctx, &store.AppendMessage{
		ConversationID: conversationID,
		Role:           chat.RoleAssistant,
		Content:        reply,
		Metadata: map[string]any{
			MetadataMatchedProducts: productNames(products),
			MetadataReconciled:      reconciled,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	sess.Append(*assistantMsg)

	s.extractor.Record(ctx, conversationID, utterance, reply)

	result.Reply = reply
	result.Reconciled = reconciled
	result.AssistantMessageID = assistantMsg.ID

	s.logger.Info("turn completed",
		"session_id", sess.ID,
		"conversation_id", conversationID,
		"products", len(products),
		"context_entries", len(previous),
		"reconciled", reconciled,
		"reply_length", len(reply))
	return result, nil
}

func (s *Service) complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if s.client == nil {
		return "", errors.New("completion client not configured")
	}

	reply, err := s.client.Complete(ctx, messages, llm.Options{
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", llm.ErrEmptyCompletion
	}
	return reply, nil
}

func productNames(products []catalog.Product) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}
