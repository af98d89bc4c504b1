package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	// sem admits one turn at a time; a buffered channel lets waiters give up
	// when their context ends.
	sem     chan struct{}
	session *chat.Session
}

// Service keeps live sessions in memory. Conversations themselves live in
// the context store; a session only tracks which one is active and the
// rolling history window.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService bootstraps an empty session registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*entry),
	}
}

// CreateSession provisions a session with no active conversation.
func (s *Service) CreateSession(_ context.Context) (*chat.Session, error) {
	session := chat.NewSession(shortuuid.New())

	s.mu.Lock()
	s.sessions[session.ID] = &entry{sem: make(chan struct{}, 1), session: session}
	s.mu.Unlock()

	return session.Clone(), nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	var snapshot *chat.Session
	err := s.WithSession(ctx, sessionID, func(session *chat.Session) error {
		snapshot = session.Clone()
		return nil
	})
	return snapshot, err
}

// WithSession runs fn with exclusive access to the session, so a session
// processes one utterance at a time.
func (s *Service) WithSession(ctx context.Context, sessionID string, fn func(*chat.Session) error) error {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	return fn(e.session)
}

// DeleteSession forgets the session. Its conversation stays in the store.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
