package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/ecokart/backend/internal/model/speech"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/ecokart/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/ecokart/backend/internal/service/speech"
)

type fakeSpeechService struct {
	transcript        string
	transcribeErr     error
	transcribeSession string
	synthSession      string
	synthVoice        string
}

func (f *fakeSpeechService) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	f.transcribeSession = req.SessionID
	return &speechmodel.ASRResponse{SessionID: req.SessionID, Text: "ok"}, nil
}

func (f *fakeSpeechService) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.synthSession = req.SessionID
	f.synthVoice = req.Voice
	return &speechmodel.TTSResponse{SessionID: req.SessionID, AudioData: []byte("audio"), Format: "mp3"}, nil
}

func (f *fakeSpeechService) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speechmodel.ASRResponse, error) {
	f.transcribeSession = sessionID
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &speechmodel.ASRResponse{SessionID: sessionID, Text: f.transcript}, nil
}

func (f *fakeSpeechService) SynthesizeToBuffer(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.synthSession = req.SessionID
	f.synthVoice = req.Voice
	return &speechmodel.TTSResponse{SessionID: req.SessionID, AudioData: []byte("audio:" + req.Text), Format: "wav"}, nil
}

type echoResponder struct {
	calls int
}

func (e *echoResponder) Respond(_ context.Context, sess *chat.Session, utterance, _ string) (*assistant.TurnResult, error) {
	e.calls++
	sess.Append(chat.Message{Role: chat.RoleUser, Content: utterance})
	return &assistant.TurnResult{ConversationID: "c1", Reply: "echo: " + utterance}, nil
}

func multipartAudio(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "sample.webm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func setupRouter(svc *fakeSpeechService) (*chi.Mux, *chatservice.Service, *echoResponder) {
	chatSvc := chatservice.NewService()
	responder := &echoResponder{}
	r := chi.NewRouter()
	New(svc, chatSvc, responder).RegisterRoutes(r)
	return r, chatSvc, responder
}

func TestProcessTranscribeOverridesSession(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	handler := New(fakeSvc, nil, nil)

	body, contentType := multipartAudio(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe/test", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	handler.processTranscribe(rr, req, "session-override")

	if fakeSvc.transcribeSession != "session-override" {
		t.Fatalf("expected override session, got %s", fakeSvc.transcribeSession)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestProcessSynthesizeWritesAudio(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	handler := New(fakeSvc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize/test", bytes.NewReader([]byte(`{"text":"hello","voice":"harvey"}`)))
	rr := httptest.NewRecorder()
	handler.processSynthesize(rr, req, "s1")

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if fakeSvc.synthSession != "s1" || fakeSvc.synthVoice != "harvey" {
		t.Fatalf("unexpected request session=%s voice=%s", fakeSvc.synthSession, fakeSvc.synthVoice)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mp3" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Body.String() != "audio" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestProcessSynthesizeRequiresText(t *testing.T) {
	handler := New(&fakeSpeechService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewReader([]byte(`{"text":"  "}`)))
	rr := httptest.NewRecorder()
	handler.processSynthesize(rr, req, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestVoiceTurn(t *testing.T) {
	fakeSvc := &fakeSpeechService{transcript: "where is my order"}
	r, chatSvc, responder := setupRouter(fakeSvc)
	session, _ := chatSvc.CreateSession(context.Background())

	body, contentType := multipartAudio(t, map[string]string{"voice": "calm"})
	req := httptest.NewRequest(http.MethodPost, "/speech/turn/"+session.ID, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp struct {
		InputText   string `json:"inputText"`
		OutputText  string `json:"outputText"`
		OutputAudio string `json:"outputAudio"`
		Exit        bool   `json:"exit"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.InputText != "where is my order" || resp.OutputText != "echo: where is my order" {
		t.Fatalf("unexpected response %+v", resp)
	}
	audio, _ := base64.StdEncoding.DecodeString(resp.OutputAudio)
	if string(audio) != "audio:echo: where is my order" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if fakeSvc.synthVoice != "calm" {
		t.Fatalf("expected voice alias to reach synthesis, got %s", fakeSvc.synthVoice)
	}
	if responder.calls != 1 {
		t.Fatalf("expected 1 responder call, got %d", responder.calls)
	}
}

func TestVoiceTurnNoSpeechAsksToRetry(t *testing.T) {
	r, chatSvc, responder := setupRouter(&fakeSpeechService{transcribeErr: errors.New("unintelligible")})
	session, _ := chatSvc.CreateSession(context.Background())

	body, contentType := multipartAudio(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/speech/turn/"+session.ID, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp struct {
		Retry      bool   `json:"retry"`
		OutputText string `json:"outputText"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if rr.Code != http.StatusOK || !resp.Retry || resp.OutputText != speechsvc.RetryPrompt {
		t.Fatalf("unexpected retry response %d %+v", rr.Code, resp)
	}
	if responder.calls != 0 {
		t.Fatal("responder should not run without speech")
	}
}

func TestVoiceTurnExitEndsSession(t *testing.T) {
	r, chatSvc, responder := setupRouter(&fakeSpeechService{transcript: "ok goodbye"})
	session, _ := chatSvc.CreateSession(context.Background())

	body, contentType := multipartAudio(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/speech/turn/"+session.ID, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp struct {
		OutputText string `json:"outputText"`
		Exit       bool   `json:"exit"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Exit || resp.OutputText != speechsvc.GoodbyeReply {
		t.Fatalf("unexpected exit response %+v", resp)
	}
	if responder.calls != 0 {
		t.Fatal("exit phrase should not reach the responder")
	}
	if _, err := chatSvc.GetSession(context.Background(), session.ID); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected session to be closed, got %v", err)
	}
}

func TestVoiceTurnSwitchesVoice(t *testing.T) {
	fakeSvc := &fakeSpeechService{transcript: "Could you switch voice?"}
	r, chatSvc, responder := setupRouter(fakeSvc)
	session, _ := chatSvc.CreateSession(context.Background())

	body, contentType := multipartAudio(t, map[string]string{"voice": "Aria"})
	req := httptest.NewRequest(http.MethodPost, "/speech/turn/"+session.ID, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp struct {
		OutputText  string `json:"outputText"`
		Voice       string `json:"voice"`
		VoiceSwitch bool   `json:"voiceSwitch"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Code != http.StatusOK || !resp.VoiceSwitch || resp.Voice != "harvey" {
		t.Fatalf("unexpected switch response %d %+v", rr.Code, resp)
	}
	if resp.OutputText != speechsvc.VoiceSwitchReply("harvey") {
		t.Fatalf("unexpected confirmation %q", resp.OutputText)
	}
	if fakeSvc.synthVoice != "harvey" {
		t.Fatalf("expected confirmation in the new voice, got %s", fakeSvc.synthVoice)
	}
	if responder.calls != 0 {
		t.Fatal("voice switch should not reach the responder")
	}
}

func TestVoiceTurnUnknownSession(t *testing.T) {
	r, _, _ := setupRouter(&fakeSpeechService{transcript: "hello"})

	body, contentType := multipartAudio(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/speech/turn/missing", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestVoiceRoutesFallbackWhenUnavailable(t *testing.T) {
	handler := New(nil, nil, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	for _, target := range []struct{ method, path string }{
		{http.MethodGet, "/speech/ws/abc"},
		{http.MethodPost, "/speech/turn/abc"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected 501 status, got %d", target.path, rr.Code)
		}
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"clip.MP3":  "mp3",
		"clip.webm": "webm",
		"clip.ogg":  "ogg",
		"clip":      "wav",
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Fatalf("inferAudioFormat(%s) = %s, want %s", name, got, want)
		}
	}
}
