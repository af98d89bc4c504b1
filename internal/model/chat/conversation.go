package chat

import "time"

// ContextTypeConversation tags facts extracted from a user turn.
const ContextTypeConversation = "conversation_context"

// Conversation groups an ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationSummary is a list row with the number of stored messages.
type ConversationSummary struct {
	Conversation
	MessageCount int `json:"messageCount"`
}

// ConversationDetail is a conversation together with its messages in timestamp order.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// ContextRecord is a structured fact attached to a conversation.
type ContextRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	ContextType    string         `json:"contextType"`
	ContextData    map[string]any `json:"contextData"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// RelevantContext is a context record joined with its conversation title.
type RelevantContext struct {
	ConversationID    string         `json:"conversationId"`
	ConversationTitle string         `json:"conversationTitle"`
	ContextType       string         `json:"contextType"`
	ContextData       map[string]any `json:"contextData"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Statistics aggregates store-wide counters.
type Statistics struct {
	TotalConversations         int     `json:"totalConversations"`
	TotalMessages              int     `json:"totalMessages"`
	RecentConversations        int     `json:"recentConversations"`
	AvgMessagesPerConversation float64 `json:"avgMessagesPerConversation"`
}
