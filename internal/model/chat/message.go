package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultMessageType is stored when a caller does not classify a message.
const DefaultMessageType = "text"

// Message is a single persisted utterance inside a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	MessageType    string         `json:"messageType"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
