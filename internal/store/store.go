// Package store defines persistence for conversations, messages and context records.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyContent         = errors.New("message content is required")
	ErrInvalidRole          = errors.New("message role must be user or assistant")
)

const (
	// DefaultListLimit is used when a caller passes a non-positive limit to ListConversations.
	DefaultListLimit = 50
	// RecentWindow is the age under which a conversation counts as recent.
	RecentWindow = 7 * 24 * time.Hour
)

// ContextStore is the durable home of conversations.
//
// Every message and context record references an existing conversation, and
// deleting a conversation removes both. Message and context mutations refresh
// the owning conversation's UpdatedAt.
type ContextStore interface {
	CreateConversation(ctx context.Context, create *CreateConversation) (*chat.Conversation, error)
	AppendMessage(ctx context.Context, create *AppendMessage) (*chat.Message, error)
	GetConversation(ctx context.Context, id string) (*chat.ConversationDetail, error)
	ListConversations(ctx context.Context, limit int) ([]chat.ConversationSummary, error)
	SearchConversations(ctx context.Context, query string) ([]chat.ConversationSummary, error)
	AddContextRecord(ctx context.Context, create *AddContextRecord) (*chat.ContextRecord, error)
	GetContextRecords(ctx context.Context, conversationID, contextType string) ([]chat.ContextRecord, error)
	GetRelevantContext(ctx context.Context, query string, limit int) ([]chat.RelevantContext, error)
	UpdateSummary(ctx context.Context, conversationID, summary string) error
	UpdateTitle(ctx context.Context, conversationID, title string) error
	DeleteConversation(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*chat.Statistics, error)
}

// CreateConversation carries the optional fields of a new conversation.
type CreateConversation struct {
	Title   string
	Summary string
	Tags    []string
}

// AppendMessage describes a message to persist.
type AppendMessage struct {
	ConversationID string
	Role           chat.Role
	Content        string
	MessageType    string
	Metadata       map[string]any
}

// Validate normalizes defaults and rejects malformed messages.
func (a *AppendMessage) Validate() error {
	if a.Content == "" {
		return ErrEmptyContent
	}
	if a.Role != chat.RoleUser && a.Role != chat.RoleAssistant {
		return ErrInvalidRole
	}
	if a.MessageType == "" {
		a.MessageType = chat.DefaultMessageType
	}
	return nil
}

// AddContextRecord describes a context fact to persist.
type AddContextRecord struct {
	ConversationID string
	ContextType    string
	ContextData    map[string]any
}

// RoundAverage rounds to two decimal places.
func RoundAverage(v float64) float64 {
	return math.Round(v*100) / 100
}
