package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

// 面向用户的错误提示，不暴露内部错误
const (
	troubleMessage  = "Sorry, something went wrong on our side. Please try again in a moment."
	notFoundMessage = "We couldn't find that chat session. Please start a new one."
)

// TurnService 抽象对话流水线，便于测试与替换实现
type TurnService interface {
	StartConversation(ctx context.Context, sess *chat.Session, create *store.CreateConversation) (*chat.Conversation, error)
	LoadConversation(ctx context.Context, sess *chat.Session, conversationID string) (*chat.ConversationDetail, error)
	Respond(ctx context.Context, sess *chat.Session, utterance, currentContext string) (*assistant.TurnResult, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	turnSvc TurnService
	logger  *slog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, turnSvc TurnService) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		turnSvc: turnSvc,
		logger:  slog.Default().With("component", "chat-handler"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.handleGetSession)
		sr.Delete("/", h.handleDeleteSession)
		sr.Post("/conversation", h.handleNewConversation)
		sr.Post("/messages", h.handleSendMessage)
	})
}

type sessionPayload struct {
	ConversationID string   `json:"conversationId"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
}

type sessionResponse struct {
	SessionID      string         `json:"sessionId"`
	ConversationID string         `json:"conversationId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Messages       []chat.Message `json:"messages,omitempty"`
}

// handleCreateSession 创建会话，可选地加载已有对话或以指定标题开始新对话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if !decodeOptionalBody(w, r, &payload) {
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		respondError(w, http.StatusInternalServerError, troubleMessage)
		return
	}

	var resp sessionResponse
	err = h.chatSvc.WithSession(r.Context(), session.ID, func(sess *chat.Session) error {
		switch {
		case strings.TrimSpace(payload.ConversationID) != "":
			detail, err := h.turnSvc.LoadConversation(r.Context(), sess, strings.TrimSpace(payload.ConversationID))
			if err != nil {
				return err
			}
			resp.Messages = detail.Messages
		case payload.Title != "" || payload.Summary != "" || len(payload.Tags) > 0:
			if _, err := h.turnSvc.StartConversation(r.Context(), sess, &store.CreateConversation{
				Title:   payload.Title,
				Summary: payload.Summary,
				Tags:    payload.Tags,
			}); err != nil {
				return err
			}
		}
		resp.SessionID = sess.ID
		resp.ConversationID = sess.ConversationID
		resp.CreatedAt = sess.CreatedAt
		return nil
	})
	if err != nil {
		_ = h.chatSvc.DeleteSession(r.Context(), session.ID)
		if errors.Is(err, store.ErrConversationNotFound) {
			respondError(w, http.StatusNotFound, "We couldn't find that conversation.")
			return
		}
		h.logger.Error("failed to prepare session", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, troubleMessage)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId":      session.ID,
		"conversationId": session.ConversationID,
		"createdAt":      session.CreatedAt,
		"history":        session.History(),
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNewConversation 在已有会话上开始一段新对话
func (h *Handler) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if !decodeOptionalBody(w, r, &payload) {
		return
	}

	var conv *chat.Conversation
	err := h.chatSvc.WithSession(r.Context(), chi.URLParam(r, "sessionID"), func(sess *chat.Session) error {
		var err error
		conv, err = h.turnSvc.StartConversation(r.Context(), sess, &store.CreateConversation{
			Title:   payload.Title,
			Summary: payload.Summary,
			Tags:    payload.Tags,
		})
		return err
	})
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, conv)
}

// handleSendMessage 处理一轮用户输入
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	var result *assistant.TurnResult
	err := h.chatSvc.WithSession(r.Context(), chi.URLParam(r, "sessionID"), func(sess *chat.Session) error {
		var err error
		result, err = h.turnSvc.Respond(r.Context(), sess, payload.Message, payload.Context)
		return err
	})
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, assistant.ErrEmptyUtterance):
		respondError(w, http.StatusBadRequest, "message is required")
	default:
		h.logger.Error("chat request failed", "error", err)
		respondError(w, http.StatusInternalServerError, troubleMessage)
	}
}

// decodeOptionalBody 解析可选的 JSON 请求体，空请求体视为零值
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// respondJSON 发送JSON响应
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError 发送错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
