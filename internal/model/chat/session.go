package chat

import "time"

// HistoryWindow bounds how many recent messages a session keeps for prompting.
const HistoryWindow = 10

// Session is the per-user conversational state. A session without a
// ConversationID has no active conversation; the first turn or an explicit
// load binds one.
type Session struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	history []Message
}

// NewSession returns a session with no active conversation.
func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now().UTC()}
}

// Active reports whether a conversation is bound.
func (s *Session) Active() bool {
	return s.ConversationID != ""
}

// Bind attaches a freshly created conversation and clears the history.
func (s *Session) Bind(conversationID string) {
	s.ConversationID = conversationID
	s.history = nil
}

// Reset attaches an existing conversation and mirrors its stored messages.
func (s *Session) Reset(conversationID string, messages []Message) {
	s.ConversationID = conversationID
	s.history = nil
	for _, msg := range messages {
		s.Append(msg)
	}
}

// Append records a persisted message, keeping only the trailing window.
func (s *Session) Append(msg Message) {
	s.history = append(s.history, msg)
	if len(s.history) > HistoryWindow {
		s.history = append([]Message(nil), s.history[len(s.history)-HistoryWindow:]...)
	}
}

// History returns a copy of the rolling window, oldest first.
func (s *Session) History() []Message {
	return append([]Message(nil), s.history...)
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.history = s.History()
	return &c
}
