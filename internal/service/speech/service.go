package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/ecokart/backend/internal/config"
	"github.com/zhouzirui/ecokart/backend/internal/model/speech"
)

// ErrEmptyText 表示合成请求缺少文本
var ErrEmptyText = errors.New("text is required")

// Service 语音服务核心业务逻辑，基于 OpenAI 兼容的音频接口（默认 Groq）
type Service struct {
	client   *openai.Client
	config   config.SpeechConfig
	profiles map[string]VoiceProfile
}

// NewService 创建语音服务实例
func NewService(cfg config.SpeechConfig) *Service {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Service{
		client:   openai.NewClientWithConfig(clientConfig),
		config:   cfg,
		profiles: defaultVoiceProfiles(cfg),
	}
}

// Enabled 指示语音服务是否可用
func (s *Service) Enabled() bool {
	return s != nil && s.config.Enabled
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, errors.New("audio data is required")
	}

	format := strings.TrimPrefix(strings.ToLower(req.Format), ".")
	if format == "" {
		format = "wav"
	}
	language := req.Language
	if language == "" {
		language = s.config.ASRLanguage
	}
	// Whisper 只接受 ISO-639-1 语言代码
	if idx := strings.IndexAny(language, "-_"); idx > 0 {
		language = language[:idx]
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.ASRModel,
		FilePath: "audio." + format,
		Reader:   req.AudioData,
		Language: strings.ToLower(language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      strings.TrimSpace(resp.Text),
		Language:  language,
		Duration:  int64(resp.Duration * 1000),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	profile := s.ResolveVoice(req.Voice)
	speed := req.Speed
	if speed <= 0 {
		speed = profile.Speed
	}
	format := req.Format
	if format == "" {
		format = s.config.TTSFormat
	}

	raw, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.TTSModel),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(profile.Voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          float64(speed),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    format,
		Voice:     profile.Voice,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	if len(audioData) == 0 {
		return nil, errors.New("audio data is required")
	}

	return s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, req)
}

// ResolveVoice 将别名解析为具体声音，未知别名视为供应商声音 ID
func (s *Service) ResolveVoice(alias string) VoiceProfile {
	return resolveVoiceProfile(s.profiles, alias, VoiceProfile{Voice: s.config.TTSVoice, Speed: s.config.TTSSpeed})
}
