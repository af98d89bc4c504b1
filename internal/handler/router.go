package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/ecokart/backend/internal/handler/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/handler/chat"
	"github.com/zhouzirui/ecokart/backend/internal/handler/conversation"
	"github.com/zhouzirui/ecokart/backend/internal/handler/speech"
	"github.com/zhouzirui/ecokart/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/ecokart/backend/internal/middleware"
	catalogModel "github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	speechService "github.com/zhouzirui/ecokart/backend/internal/service/speech"
	"github.com/zhouzirui/ecokart/backend/internal/store"
	"github.com/zhouzirui/ecokart/backend/pkg/utils"
)

// Services groups the dependencies the HTTP layer is wired to.
// Speech and RateLimiter are optional.
type Services struct {
	Store       store.ContextStore
	Catalog     catalogModel.Store
	Sessions    *chatService.Service
	Assistant   *assistant.Service
	Speech      *speechService.Service
	RateLimiter *middlewarePkg.RateLimiter
	MaxProducts int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	catalogHandler := catalog.New(svc.Catalog, svc.MaxProducts)
	conversationHandler := conversation.New(svc.Store)
	chatHandler := chat.New(svc.Sessions, svc.Assistant)
	streamHandler := stream.New(svc.Assistant, svc.Sessions)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"products": svc.Catalog.Len(),
			"sessions": svc.Sessions.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		catalogHandler.RegisterRoutes(api)
		conversationHandler.RegisterRoutes(api)

		// Turn endpoints call the completion provider and are rate limited per client
		api.Group(func(turns chi.Router) {
			if svc.RateLimiter != nil {
				turns.Use(svc.RateLimiter.Middleware)
			}

			chatHandler.RegisterRoutes(turns)

			turns.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
				sessionID := chi.URLParam(r, "sessionID")
				userMessage := r.URL.Query().Get("message")
				if userMessage == "" {
					utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
					return
				}

				err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage, r.URL.Query().Get("context"))
				switch {
				case errors.Is(err, stream.ErrStreamingUnsupported):
					utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
				case err != nil:
					// The error event has already been written to the stream.
					slog.Warn("stream request failed", "session_id", sessionID, "error", err)
				}
			})

			if svc.Speech.Enabled() {
				speechHandler := speech.New(svc.Speech, svc.Sessions, svc.Assistant)
				speechHandler.RegisterRoutes(turns)
			} else {
				turns.HandleFunc("/speech/*", func(w http.ResponseWriter, _ *http.Request) {
					utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
				})
			}
		})
	})

	return r
}
