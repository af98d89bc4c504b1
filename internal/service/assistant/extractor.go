package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zhouzirui/ecokart/backend/internal/analysis/facts"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

// Extractor records structured facts from each completed turn. It is
// best-effort: every failure is logged and swallowed.
type Extractor struct {
	store  store.ContextStore
	logger *slog.Logger
}

// NewExtractor creates an Extractor writing to s.
func NewExtractor(s store.ContextStore, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{store: s, logger: logger}
}

// Record extracts facts from the utterance and persists them as one context
// record. It reports whether a record was written.
func (e *Extractor) Record(ctx context.Context, conversationID, utterance, reply string) (written bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("context extraction panicked", "conversation_id", conversationID, "panic", fmt.Sprint(r))
			written = false
		}
	}()

	extracted := facts.Extract(utterance)
	if extracted.Empty() {
		return false
	}

	_, err := e.store.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: conversationID,
		ContextType:    chat.ContextTypeConversation,
		ContextData:    extracted.Map(),
	})
	if err != nil {
		e.logger.Error("failed to save conversation context", "conversation_id", conversationID, "error", err)
		return false
	}

	e.logger.Debug("saved conversation context", "conversation_id", conversationID, "reply_length", len(reply))
	return true
}
