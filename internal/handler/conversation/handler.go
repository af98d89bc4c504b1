package conversation

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ecokart/backend/internal/analysis/facts"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
	"github.com/zhouzirui/ecokart/backend/pkg/utils"
)

// Handler 对话历史的HTTP处理器
type Handler struct {
	store  store.ContextStore
	logger *slog.Logger
}

// New 创建对话历史处理器
func New(st store.ContextStore) *Handler {
	return &Handler{
		store:  st,
		logger: slog.Default().With("component", "conversation-handler"),
	}
}

// RegisterRoutes 注册对话历史相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleList)
	r.Get("/conversations/search", h.handleSearch)
	r.Route("/conversations/{conversationID}", func(cr chi.Router) {
		cr.Get("/", h.handleGet)
		cr.Delete("/", h.handleDelete)
		cr.Patch("/summary", h.handleUpdateSummary)
		cr.Patch("/title", h.handleUpdateTitle)
		cr.Get("/context", h.handleContext)
	})
	r.Get("/stats", h.handleStats)
}

// handleList 按最近更新时间列出对话
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	items, err := h.store.ListConversations(r.Context(), limit)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleSearch 按标题、摘要与消息内容搜索对话
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "q is required")
		return
	}

	items, err := h.store.SearchConversations(r.Context(), query)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		h.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateSummary 更新对话摘要
func (h *Handler) handleUpdateSummary(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "conversationID")
	if err := h.store.UpdateSummary(r.Context(), id, payload.Summary); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": id, "summary": payload.Summary})
}

// handleUpdateTitle 重命名对话；title 为空时根据用户消息自动生成标题
func (h *Handler) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := decodeOptionalBody(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "conversationID")
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		detail, err := h.store.GetConversation(r.Context(), id)
		if err != nil {
			h.respondStoreError(w, err)
			return
		}
		var userMessages []string
		for _, msg := range detail.Messages {
			if msg.Role == chat.RoleUser {
				userMessages = append(userMessages, msg.Content)
			}
		}
		title = facts.AutoTitle(userMessages)
	}

	if err := h.store.UpdateTitle(r.Context(), id, title); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": id, "title": title})
}

// handleContext 返回对话的上下文记录，可按 type 过滤
func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.GetContextRecords(r.Context(), chi.URLParam(r, "conversationID"), r.URL.Query().Get("type"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

// handleStats 返回全局统计
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Statistics(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

func decodeOptionalBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrConversationNotFound) {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	h.logger.Error("conversation store request failed", "error", err)
	utils.RespondError(w, http.StatusInternalServerError, "failed to access conversation history")
}
