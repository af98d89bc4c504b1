package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/ecokart/backend/internal/config"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/model/speech"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewService(config.SpeechConfig{
		APIKey:      "test-key",
		BaseURL:     server.URL,
		ASRModel:    "whisper-1",
		ASRLanguage: "en",
		TTSModel:    "tts-1",
		TTSVoice:    "alloy",
		TTSFormat:   "mp3",
		TTSSpeed:    1.0,
		Enabled:     true,
	})
}

func TestTranscribeBuffer(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.webm", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake-audio", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  tell me about the UltraBook  "}`))
	})

	resp, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("fake-audio"), "webm", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "tell me about the UltraBook", resp.Text)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "en", resp.Language)
}

func TestTranscribeBufferRejectsEmptyAudio(t *testing.T) {
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := svc.TranscribeBuffer(context.Background(), "s1", nil, "wav", "")
	require.Error(t, err)
}

func TestSynthesizeResolvesVoiceAlias(t *testing.T) {
	var body map[string]any
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	})

	resp, err := svc.SynthesizeToBuffer(context.Background(), &speech.TTSRequest{SessionID: "s1", Text: "Hello!", Voice: "default"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), resp.AudioData)
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, "alloy", resp.Voice)

	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "Hello!", body["input"])
	assert.Equal(t, "alloy", body["voice"])
	assert.Equal(t, "mp3", body["response_format"])
}

func TestSynthesizeRequiresText(t *testing.T) {
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := svc.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "  "})
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestResolveVoice(t *testing.T) {
	svc := NewService(config.SpeechConfig{TTSVoice: "Arista-PlayAI", TTSSpeed: 1.2})

	assert.Equal(t, VoiceProfile{Voice: "Arista-PlayAI", Speed: 1.2}, svc.ResolveVoice(""))
	assert.Equal(t, VoiceProfile{Voice: "Celeste-PlayAI", Speed: 0.9}, svc.ResolveVoice("Calm"))
	assert.Equal(t, VoiceProfile{Voice: "nova", Speed: 1.2}, svc.ResolveVoice("nova"))
}

func TestCanonicalVoice(t *testing.T) {
	cases := []struct {
		voice  string
		expect string
	}{
		{voice: "Harvey", expect: "harvey"},
		{voice: " calm ", expect: "calm"},
		{voice: "DEFAULT", expect: "default"},
		{voice: "Fritz-PlayAI", expect: "Fritz-PlayAI"},
		{voice: "", expect: ""},
	}

	for _, tc := range cases {
		if got := CanonicalVoice(tc.voice); got != tc.expect {
			t.Fatalf("CanonicalVoice(%s) = %s, want %s", tc.voice, got, tc.expect)
		}
	}
}

func TestCanonicalVoiceKeepsProfileSpeed(t *testing.T) {
	svc := NewService(config.SpeechConfig{TTSVoice: "Arista-PlayAI", TTSSpeed: 1.0})
	assert.Equal(t, VoiceProfile{Voice: "Celeste-PlayAI", Speed: 0.9}, svc.ResolveVoice(CanonicalVoice("Calm")))
	assert.Equal(t, VoiceProfile{Voice: "Chip-PlayAI", Speed: 1.1}, svc.ResolveVoice(CanonicalVoice("UPBEAT")))
}

func TestNextVoice(t *testing.T) {
	cases := map[string]string{
		"":        "aria",
		"default": "aria",
		"Aria":    "harvey",
		"harvey":  "default",
		"calm":    "default",
		"nova":    "default",
	}
	for current, expect := range cases {
		if got := NextVoice(current); got != expect {
			t.Fatalf("NextVoice(%q) = %q, want %q", current, got, expect)
		}
	}
}

func TestIsExitPhrase(t *testing.T) {
	for _, utterance := range []string{"Goodbye!", "ok bye", "please STOP", "quit."} {
		assert.True(t, IsExitPhrase(utterance), utterance)
	}
	for _, utterance := range []string{"", "where is my order", "a nonstop flight", "stopwatch deals"} {
		assert.False(t, IsExitPhrase(utterance), utterance)
	}
}

func TestIsSwitchVoicePhrase(t *testing.T) {
	for _, utterance := range []string{"switch voice", "Can you CHANGE VOICE please?", "switch  tts", "change-tts"} {
		assert.True(t, IsSwitchVoicePhrase(utterance), utterance)
	}
	for _, utterance := range []string{"", "switch", "my voice changed", "switch voices", "switchvoice"} {
		assert.False(t, IsSwitchVoicePhrase(utterance), utterance)
	}
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) TranscribeBuffer(context.Context, string, []byte, string, string) (*speech.ASRResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speech.ASRResponse{Text: f.text}, nil
}

type fakeSynthesizer struct {
	err   error
	text  string
	voice string
}

func (f *fakeSynthesizer) SynthesizeToBuffer(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	f.text = req.Text
	f.voice = req.Voice
	if f.err != nil {
		return nil, f.err
	}
	return &speech.TTSResponse{AudioData: []byte("audio:" + req.Text), Format: "wav"}, nil
}

type fakeResponder struct {
	calls int
	err   error
}

func (f *fakeResponder) Respond(_ context.Context, _ *chat.Session, utterance, _ string) (*assistant.TurnResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.TurnResult{ConversationID: "c1", Reply: "echo: " + utterance}, nil
}

func TestProcessVoiceTurn(t *testing.T) {
	synth := &fakeSynthesizer{}
	responder := &fakeResponder{}
	chain := NewVoiceChain(fakeTranscriber{text: "where is my order"}, synth, responder, nil)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1"), AudioData: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "where is my order", out.InputText)
	assert.Equal(t, "echo: where is my order", out.OutputText)
	assert.Equal(t, []byte("audio:echo: where is my order"), out.OutputAudio)
	assert.False(t, out.Exit)
	assert.Equal(t, 1, responder.calls)
}

func TestProcessVoiceTurnPicksVoiceByTone(t *testing.T) {
	for name, tc := range map[string]struct {
		utterance string
		voice     string
		expect    string
	}{
		"frustrated": {utterance: "my parcel never arrived", expect: "calm"},
		"neutral":    {utterance: "where is my order", expect: ""},
		"explicit":   {utterance: "my parcel never arrived", voice: "harvey", expect: "harvey"},
	} {
		t.Run(name, func(t *testing.T) {
			synth := &fakeSynthesizer{}
			chain := NewVoiceChain(fakeTranscriber{text: tc.utterance}, synth, &fakeResponder{}, nil)
			_, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1"), Voice: tc.voice})
			require.NoError(t, err)
			assert.Equal(t, tc.expect, synth.voice)
		})
	}
}

func TestProcessVoiceTurnSwitchVoice(t *testing.T) {
	synth := &fakeSynthesizer{}
	responder := &fakeResponder{}
	chain := NewVoiceChain(fakeTranscriber{text: "Switch voice, please"}, synth, responder, nil)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1"), Voice: "Aria"})
	require.NoError(t, err)
	assert.True(t, out.VoiceSwitch)
	assert.False(t, out.Exit)
	assert.Equal(t, "harvey", out.Voice)
	assert.Equal(t, VoiceSwitchReply("harvey"), out.OutputText)
	assert.Equal(t, "harvey", synth.voice, "confirmation is spoken in the new voice")
	assert.Nil(t, out.Turn)
	assert.Zero(t, responder.calls)
}

func TestProcessVoiceTurnNoSpeech(t *testing.T) {
	for name, transcriber := range map[string]fakeTranscriber{
		"error": {err: errors.New("decode failed")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			responder := &fakeResponder{}
			chain := NewVoiceChain(transcriber, &fakeSynthesizer{}, responder, nil)
			_, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1")})
			require.ErrorIs(t, err, ErrNoSpeech)
			assert.Zero(t, responder.calls)
		})
	}
}

func TestProcessVoiceTurnExitPhrase(t *testing.T) {
	synth := &fakeSynthesizer{}
	responder := &fakeResponder{}
	chain := NewVoiceChain(fakeTranscriber{text: "Goodbye!"}, synth, responder, nil)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1")})
	require.NoError(t, err)
	assert.True(t, out.Exit)
	assert.Equal(t, GoodbyeReply, out.OutputText)
	assert.Equal(t, GoodbyeReply, synth.text)
	assert.Zero(t, responder.calls)
}

func TestProcessVoiceTurnSynthesisFailureKeepsText(t *testing.T) {
	chain := NewVoiceChain(fakeTranscriber{text: "hello"}, &fakeSynthesizer{err: errors.New("tts down")}, &fakeResponder{}, nil)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1")})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out.OutputText)
	assert.Nil(t, out.OutputAudio)
}

func TestProcessVoiceTurnPropagatesPersistenceFailure(t *testing.T) {
	chain := NewVoiceChain(fakeTranscriber{text: "hello"}, &fakeSynthesizer{}, &fakeResponder{err: errors.New("db gone")}, nil)

	_, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{Session: chat.NewSession("s1")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSpeech)
}
