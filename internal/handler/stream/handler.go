package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	"github.com/zhouzirui/ecokart/backend/pkg/utils"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Responder runs one turn of the assistant pipeline.
type Responder interface {
	Respond(ctx context.Context, sess *chat.Session, utterance, currentContext string) (*assistant.TurnResult, error)
}

// Handler delivers assistant turns via Server-Sent Events
type Handler struct {
	responder Responder
	chatSvc   *chatService.Service
	logger    *slog.Logger
}

// New creates a new stream handler
func New(responder Responder, chatSvc *chatService.Service) *Handler {
	return &Handler{
		responder: responder,
		chatSvc:   chatSvc,
		logger:    slog.Default().With("component", "stream"),
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event          string `json:"event"`
	Content        string `json:"content,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Finished       bool   `json:"finished,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn for the session and emits start,
// products, message and end events. Only the reconciled reply is sent, so no
// unverified price reaches the client.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage, currentContext string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	utils.SetupSSEHeaders(w)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Content:   "Harvey is typing...",
	})

	var result *assistant.TurnResult
	err := h.chatSvc.WithSession(ctx, sessionID, func(sess *chat.Session) error {
		var err error
		result, err = h.responder.Respond(ctx, sess, userMessage, currentContext)
		return err
	})
	if err != nil {
		h.sendSSEError(w, flusher, sessionID, describeError(err))
		return err
	}

	if len(result.Products) > 0 {
		payload, err := json.Marshal(result.Products)
		if err == nil {
			h.sendSSE(w, flusher, StreamResponse{
				Event:          "products",
				SessionID:      sessionID,
				ConversationID: result.ConversationID,
				Content:        string(payload),
			})
		}
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:          "message",
		SessionID:      sessionID,
		ConversationID: result.ConversationID,
		Content:        result.Reply,
	})

	h.sendSSE(w, flusher, StreamResponse{
		Event:          "end",
		SessionID:      sessionID,
		ConversationID: result.ConversationID,
		Finished:       true,
	})

	h.logger.Info("stream completed", "session_id", sessionID, "conversation_id", result.ConversationID, "fallback", result.Fallback)
	return nil
}

func describeError(err error) string {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return "We couldn't find that chat session. Please start a new one."
	case errors.Is(err, assistant.ErrEmptyUtterance):
		return "message is required"
	default:
		return "Sorry, something went wrong on our side. Please try again in a moment."
	}
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		Error:     errorMsg,
	})
}
