package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/ecokart/backend/internal/service/speech"
)

const (
	maxUploadSize   = 32 << 20 // 32MB
	defaultLanguage = "en"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	TranscribeAudio(rCtx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(rCtx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	TranscribeBuffer(rCtx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
	SynthesizeToBuffer(rCtx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	responder speechsvc.Responder
	chain     *speechsvc.VoiceChain
	logger    *slog.Logger
}

// New 创建语音处理器。responder 或 chatSvc 为空时，仅提供转写与合成
func New(speechSvc SpeechService, chatSvc *chatservice.Service, responder speechsvc.Responder) *Handler {
	logger := slog.Default().With("component", "speech-handler")
	h := &Handler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		responder: responder,
		logger:    logger,
	}
	if h.voiceTurnAvailable() {
		h.chain = speechsvc.NewVoiceChain(speechSvc, speechSvc, responder, logger)
	}
	return h
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		// ASR 端点
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/transcribe/{sessionID}", h.handleTranscribeWithSession)

		// TTS 端点
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)

		// 健康检查
		speechRouter.Get("/health", h.handleHealth)

		// 语音对话端点 (需要对话流水线)
		if h.voiceTurnAvailable() {
			speechRouter.Post("/turn/{sessionID}", h.handleVoiceTurn)
			wsHandler := NewWebSocketHandler(h.speechSvc, h.chatSvc, h.responder)
			wsHandler.RegisterWebSocketRoutes(speechRouter)
		} else {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				respondError(w, http.StatusNotImplemented, "voice conversation not available")
			}
			speechRouter.Post("/turn/{sessionID}", unavailable)
			speechRouter.Get("/ws/{sessionID}", unavailable)
		}
	})
}

func (h *Handler) voiceTurnAvailable() bool {
	return h.speechSvc != nil && h.chatSvc != nil && h.responder != nil
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	h.processTranscribe(w, r, "")
}

// handleTranscribeWithSession 处理带会话ID的语音转文本请求
func (h *Handler) handleTranscribeWithSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	h.processTranscribe(w, r, sessionID)
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

// handleSynthesizeWithSession 处理带会话ID的文本转语音请求
func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	h.processSynthesize(w, r, sessionID)
}

func (h *Handler) processTranscribe(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	sessionID := overrideSessionID
	if sessionID == "" {
		sessionID = r.FormValue("sessionId")
	}
	if sessionID == "" {
		sessionID = "default"
	}

	language := r.FormValue("language")
	if language == "" {
		language = defaultLanguage
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    inferAudioFormat(header.Filename),
		Language:  language,
	})
	if err != nil {
		h.logger.Error("ASR error", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "speech recognition failed")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if overrideSessionID != "" {
		req.SessionID = overrideSessionID
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		h.logger.Error("TTS error", "session_id", req.SessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	writeAudio(w, resp.AudioData, resp.Format, h.logger)
}

// voiceTurnResponse 语音对话结果，音频以 base64 编码返回
type voiceTurnResponse struct {
	*speechsvc.VoiceTurnOutput
	Retry       bool   `json:"retry,omitempty"`
	OutputAudio string `json:"outputAudio,omitempty"`
}

// handleVoiceTurn 处理一轮语音对话：识别、对话流水线、合成
func (h *Handler) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = defaultLanguage
	}

	var out *speechsvc.VoiceTurnOutput
	err = h.chatSvc.WithSession(r.Context(), sessionID, func(sess *chat.Session) error {
		var err error
		out, err = h.chain.ProcessVoiceTurn(r.Context(), &speechsvc.VoiceTurnInput{
			Session:        sess,
			AudioData:      audio,
			AudioFormat:    inferAudioFormat(header.Filename),
			Language:       language,
			Voice:          r.FormValue("voice"),
			CurrentContext: r.FormValue("context"),
		})
		return err
	})
	switch {
	case errors.Is(err, speechsvc.ErrNoSpeech):
		respondJSON(w, http.StatusOK, voiceTurnResponse{
			VoiceTurnOutput: &speechsvc.VoiceTurnOutput{SessionID: sessionID, OutputText: speechsvc.RetryPrompt},
			Retry:           true,
		})
		return
	case errors.Is(err, chatservice.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "We couldn't find that chat session. Please start a new one.")
		return
	case err != nil:
		h.logger.Error("voice turn failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "Sorry, something went wrong on our side. Please try again in a moment.")
		return
	}

	if out.Exit {
		// 结束语关闭会话，对话记录保留在存储中
		_ = h.chatSvc.DeleteSession(r.Context(), sessionID)
	}

	resp := voiceTurnResponse{VoiceTurnOutput: out}
	if len(out.OutputAudio) > 0 {
		resp.OutputAudio = base64.StdEncoding.EncodeToString(out.OutputAudio)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"service":          "speech",
		"voiceTurnEnabled": h.voiceTurnAvailable(),
	})
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".m4a":
		return "m4a"
	case ".ogg":
		return "ogg"
	case ".flac":
		return "flac"
	default:
		return "wav"
	}
}

func writeAudio(w http.ResponseWriter, audio []byte, format string, logger *slog.Logger) {
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		logger.Error("failed to write audio response", "error", err)
	}
}

// respondJSON 发送JSON响应
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError 发送错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
