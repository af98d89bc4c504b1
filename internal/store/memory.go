package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

// MemoryStore keeps conversations in process memory. Suitable for tests and
// zero-configuration runs; everything is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.Message
	contexts      []chat.ContextRecord
	touched       map[string]int64
	seq           int64
	now           func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.Message),
		touched:       make(map[string]int64),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) touch(id string, at time.Time) {
	s.seq++
	s.touched[id] = s.seq
	if conv, ok := s.conversations[id]; ok {
		conv.UpdatedAt = at
	}
}

// CreateConversation stores a new conversation with a generated id.
func (s *MemoryStore) CreateConversation(_ context.Context, create *CreateConversation) (*chat.Conversation, error) {
	now := s.now()
	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		Title:     create.Title,
		Summary:   create.Summary,
		Tags:      append([]string(nil), create.Tags...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	s.touch(conv.ID, now)

	copied := *conv
	return &copied, nil
}

// AppendMessage adds a message to an existing conversation.
func (s *MemoryStore) AppendMessage(_ context.Context, create *AppendMessage) (*chat.Message, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[create.ConversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	now := s.now()
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Content:        create.Content,
		Timestamp:      now,
		MessageType:    create.MessageType,
		Metadata:       copyMap(create.Metadata),
	}
	s.messages[create.ConversationID] = append(s.messages[create.ConversationID], msg)
	s.touch(create.ConversationID, now)

	return &msg, nil
}

// GetConversation returns the conversation with its messages in insertion order.
func (s *MemoryStore) GetConversation(_ context.Context, id string) (*chat.ConversationDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	return &chat.ConversationDetail{
		Conversation: *conv,
		Messages:     append([]chat.Message{}, s.messages[id]...),
	}, nil
}

// ListConversations returns the most recently updated conversations first.
func (s *MemoryStore) ListConversations(_ context.Context, limit int) ([]chat.ConversationSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.summaries(func(string) bool { return true })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// SearchConversations matches title, summary or any message content, case-insensitively.
func (s *MemoryStore) SearchConversations(_ context.Context, query string) ([]chat.ConversationSummary, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []chat.ConversationSummary{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.summaries(func(id string) bool { return s.matches(id, needle) }), nil
}

// AddContextRecord attaches a structured fact to a conversation.
func (s *MemoryStore) AddContextRecord(_ context.Context, create *AddContextRecord) (*chat.ContextRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[create.ConversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	now := s.now()
	record := chat.ContextRecord{
		ID:             uuid.NewString(),
		ConversationID: create.ConversationID,
		ContextType:    create.ContextType,
		ContextData:    copyMap(create.ContextData),
		CreatedAt:      now,
	}
	s.contexts = append(s.contexts, record)
	s.touch(create.ConversationID, now)

	return &record, nil
}

// GetContextRecords lists a conversation's records newest first, optionally filtered by type.
func (s *MemoryStore) GetContextRecords(_ context.Context, conversationID, contextType string) ([]chat.ContextRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]chat.ContextRecord, 0)
	for i := len(s.contexts) - 1; i >= 0; i-- {
		record := s.contexts[i]
		if record.ConversationID != conversationID {
			continue
		}
		if contextType != "" && record.ContextType != contextType {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// GetRelevantContext returns context records of conversations whose title,
// summary or message content contains query, newest first.
func (s *MemoryStore) GetRelevantContext(_ context.Context, query string, limit int) ([]chat.RelevantContext, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || limit <= 0 {
		return []chat.RelevantContext{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make(map[string]bool)
	results := make([]chat.RelevantContext, 0, limit)
	for i := len(s.contexts) - 1; i >= 0 && len(results) < limit; i-- {
		record := s.contexts[i]
		matched, seen := hits[record.ConversationID]
		if !seen {
			matched = s.matches(record.ConversationID, needle)
			hits[record.ConversationID] = matched
		}
		if !matched {
			continue
		}
		results = append(results, chat.RelevantContext{
			ConversationID:    record.ConversationID,
			ConversationTitle: s.conversations[record.ConversationID].Title,
			ContextType:       record.ContextType,
			ContextData:       copyMap(record.ContextData),
			CreatedAt:         record.CreatedAt,
		})
	}
	return results, nil
}

// UpdateSummary replaces the conversation summary.
func (s *MemoryStore) UpdateSummary(_ context.Context, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Summary = summary
	s.touch(conversationID, s.now())
	return nil
}

// UpdateTitle renames the conversation.
func (s *MemoryStore) UpdateTitle(_ context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Title = title
	s.touch(conversationID, s.now())
	return nil
}

// DeleteConversation removes a conversation with its messages and context records.
func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}

	delete(s.conversations, id)
	delete(s.messages, id)
	delete(s.touched, id)

	kept := s.contexts[:0]
	for _, record := range s.contexts {
		if record.ConversationID != id {
			kept = append(kept, record)
		}
	}
	s.contexts = kept
	return nil
}

// Statistics aggregates counts across the store.
func (s *MemoryStore) Statistics(_ context.Context) (*chat.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &chat.Statistics{TotalConversations: len(s.conversations)}
	cutoff := s.now().Add(-RecentWindow)
	withMessages := 0
	for id, conv := range s.conversations {
		if !conv.UpdatedAt.Before(cutoff) {
			stats.RecentConversations++
		}
		if n := len(s.messages[id]); n > 0 {
			stats.TotalMessages += n
			withMessages++
		}
	}
	if withMessages > 0 {
		stats.AvgMessagesPerConversation = RoundAverage(float64(stats.TotalMessages) / float64(withMessages))
	}
	return stats, nil
}

func (s *MemoryStore) matches(id, needle string) bool {
	conv, ok := s.conversations[id]
	if !ok {
		return false
	}
	if strings.Contains(strings.ToLower(conv.Title), needle) || strings.Contains(strings.ToLower(conv.Summary), needle) {
		return true
	}
	for _, msg := range s.messages[id] {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			return true
		}
	}
	return false
}

// summaries must be called with the read lock held.
func (s *MemoryStore) summaries(keep func(id string) bool) []chat.ConversationSummary {
	list := make([]chat.ConversationSummary, 0, len(s.conversations))
	for id, conv := range s.conversations {
		if !keep(id) {
			continue
		}
		list = append(list, chat.ConversationSummary{Conversation: *conv, MessageCount: len(s.messages[id])})
	}
	sort.Slice(list, func(i, j int) bool {
		return s.touched[list[i].ID] > s.touched[list[j].ID]
	})
	return list
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
