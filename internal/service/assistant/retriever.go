package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

// DefaultContextLimit caps how many prior context entries enrich a prompt.
const DefaultContextLimit = 3

// Retriever finds context recorded in earlier conversations.
type Retriever struct {
	store store.ContextStore
}

// NewRetriever creates a Retriever reading from s.
func NewRetriever(s store.ContextStore) *Retriever {
	return &Retriever{store: s}
}

// Retrieve returns up to limit context entries from conversations mentioning
// the utterance, newest first. A blank utterance yields nothing.
func (r *Retriever) Retrieve(ctx context.Context, utterance string, limit int) ([]chat.RelevantContext, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" || limit <= 0 {
		return nil, nil
	}

	entries, err := r.store.GetRelevantContext(ctx, utterance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get relevant context: %w", err)
	}
	return entries, nil
}

// FormatPrevious renders entries one per line as
// "Previous conversation '<title>': <data>".
func FormatPrevious(entries []chat.RelevantContext) string {
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("Previous conversation '%s': %s", entry.ConversationTitle, renderContextData(entry.ContextData)))
	}
	return strings.Join(lines, "\n")
}

func renderContextData(data map[string]any) string {
	if len(data) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, so the rendering is stable across turns.
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(raw)
}
