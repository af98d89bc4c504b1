package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/model/speech"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/ecokart/backend/internal/service/speech"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	responder speechsvc.Responder
	voice     *speechsvc.VoiceChain
	text      *speechsvc.VoiceChain
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, chatSvc *chatservice.Service, responder speechsvc.Responder) *WebSocketHandler {
	logger := slog.Default().With("component", "speech-ws")
	return &WebSocketHandler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		responder: responder,
		voice:     speechsvc.NewVoiceChain(speechSvc, speechSvc, responder, logger),
		text:      speechsvc.NewVoiceChain(speechSvc, nil, responder, logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	Context    string `json:"context"`
	ASREnabled *bool  `json:"asrEnabled,omitempty"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
	StreamMode *bool  `json:"streamMode,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	language    string
	voice       string
	context     string
	asrEnabled  bool
	ttsEnabled  bool
	streamMode  bool
	audioFormat string
	buffer      bytes.Buffer
	closing     bool
}

func newConnectionState(sessionID string) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		language:   defaultLanguage,
		asrEnabled: true,
		ttsEnabled: true,
		streamMode: true,
	}
}

// wsConn 串行化写操作，gorilla 连接不支持并发写
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", "error", err)
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	h.logger.Info("new connection", "session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := newConnectionState(sessionID)
	h.sendInfo(conn, sessionID, map[string]any{
		"type":           "connected",
		"conversationId": session.ConversationID,
		"language":       state.language,
	})

	for !state.closing {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", "session_id", sessionID, "error", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "goodbye"),
		time.Now().Add(writeWait))
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *wsConn, state *connectionState, raw json.RawMessage) {
	if !state.asrEnabled {
		h.sendInfo(conn, state.sessionID, map[string]any{"type": "asr", "enabled": false})
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if len(audio.AudioData) > 0 {
		state.buffer.Write(audio.AudioData)
	}
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal || !state.streamMode {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *wsConn, state *connectionState) {
	audioBytes := append([]byte(nil), state.buffer.Bytes()...)
	state.buffer.Reset()

	if len(audioBytes) == 0 {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	chain := h.text
	if state.ttsEnabled {
		chain = h.voice
	}

	var out *speechsvc.VoiceTurnOutput
	err := h.chatSvc.WithSession(ctx, state.sessionID, func(sess *chat.Session) error {
		var err error
		out, err = chain.ProcessVoiceTurn(ctx, &speechsvc.VoiceTurnInput{
			Session:        sess,
			AudioData:      audioBytes,
			AudioFormat:    format,
			Language:       state.language,
			Voice:          state.voice,
			CurrentContext: state.context,
		})
		return err
	})
	if errors.Is(err, speechsvc.ErrNoSpeech) {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "asr",
			"retry": true,
			"text":  speechsvc.RetryPrompt,
		})
		return
	}
	if err != nil {
		h.sendTurnError(conn, state, err)
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "asr",
		"text":    out.InputText,
		"isFinal": true,
	})
	if out.VoiceSwitch {
		state.voice = out.Voice
	}
	h.sendReply(conn, state, out.OutputText, out.Turn, out.Exit)
	if len(out.OutputAudio) > 0 {
		h.sendAudio(conn, state, out.OutputAudio, out.AudioFormat)
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *wsConn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	userText := strings.TrimSpace(text.Text)
	if userText == "" {
		return
	}
	currentContext := state.context
	if text.Context != "" {
		currentContext = text.Context
	}

	var (
		reply string
		turn  *assistant.TurnResult
		exit  bool
	)
	switch {
	case speechsvc.IsExitPhrase(userText):
		reply, exit = speechsvc.GoodbyeReply, true
	case speechsvc.IsSwitchVoicePhrase(userText):
		state.voice = speechsvc.NextVoice(state.voice)
		reply = speechsvc.VoiceSwitchReply(state.voice)
	default:
		err := h.chatSvc.WithSession(ctx, state.sessionID, func(sess *chat.Session) error {
			var err error
			turn, err = h.responder.Respond(ctx, sess, userText, currentContext)
			return err
		})
		if err != nil {
			h.sendTurnError(conn, state, err)
			return
		}
		reply = turn.Reply
	}

	h.sendReply(conn, state, reply, turn, exit)
	if state.ttsEnabled {
		h.sendTTS(ctx, conn, state, reply)
	}
}

// sendReply 发送助手回复；结束语会在本轮结束后关闭连接
func (h *WebSocketHandler) sendReply(conn *wsConn, state *connectionState, reply string, turn *assistant.TurnResult, exit bool) {
	data := map[string]any{
		"type":    "ai",
		"text":    reply,
		"voice":   state.voice,
		"isFinal": true,
	}
	if turn != nil {
		data["conversationId"] = turn.ConversationID
		data["products"] = turn.Products
		data["reconciled"] = turn.Reconciled
		data["fallback"] = turn.Fallback
	}
	if exit {
		data["exit"] = true
		state.closing = true
	}
	h.sendInfo(conn, state.sessionID, data)
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *wsConn, state *connectionState, text string) {
	ttsResp, err := h.speechSvc.SynthesizeToBuffer(ctx, &speech.TTSRequest{
		SessionID: state.sessionID,
		Text:      text,
		Voice:     state.voice,
	})
	if err != nil {
		h.logger.Warn("TTS failed", "session_id", state.sessionID, "error", err)
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": "synthesis failed",
		})
		return
	}
	if len(ttsResp.AudioData) == 0 {
		h.logger.Warn("TTS returned empty audio", "session_id", state.sessionID)
		return
	}

	h.sendAudio(conn, state, ttsResp.AudioData, ttsResp.Format)
}

func (h *WebSocketHandler) sendAudio(conn *wsConn, state *connectionState, audio []byte, format string) {
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":      "tts",
		"audioData": base64.StdEncoding.EncodeToString(audio),
		"format":    format,
		"isFinal":   true,
	})
}

func (h *WebSocketHandler) sendTurnError(conn *wsConn, state *connectionState, err error) {
	if errors.Is(err, chatservice.ErrSessionNotFound) {
		h.sendError(conn, "session not found")
		state.closing = true
		return
	}
	h.logger.Error("turn failed", "session_id", state.sessionID, "error", err)
	h.sendError(conn, "Sorry, something went wrong on our side. Please try again in a moment.")
}

func (h *WebSocketHandler) handleConfigMessage(conn *wsConn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	applyConfig(state, cfg)

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "config",
		"language":   state.language,
		"voice":      state.voice,
		"context":    state.context,
		"asr":        state.asrEnabled,
		"tts":        state.ttsEnabled,
		"streamMode": state.streamMode,
	})
}

func applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = speechsvc.CanonicalVoice(cfg.Voice)
	}
	if cfg.Context != "" {
		state.context = cfg.Context
	}
	if cfg.ASREnabled != nil {
		state.asrEnabled = *cfg.ASREnabled
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}
	if cfg.StreamMode != nil {
		state.streamMode = *cfg.StreamMode
	}
}

func (h *WebSocketHandler) sendInfo(conn *wsConn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Warn("write info failed", "session_id", sessionID, "error", err)
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Warn("write error failed", "error", err)
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
