package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/zhouzirui/ecokart/backend/internal/analysis/tone"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/model/speech"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
)

// ErrNoSpeech 表示没有识别到可用的语音内容，调用方应提示用户重试
var ErrNoSpeech = errors.New("no speech recognised")

// GoodbyeReply 在用户说出结束语时播报
const GoodbyeReply = "Thanks for chatting with me! Have a great day and happy shopping!"

// RetryPrompt 是识别失败时给用户的提示
const RetryPrompt = "Sorry, I didn't catch that. Could you say it again?"

var exitPhrases = []string{"goodbye", "exit", "quit", "bye", "stop"}

var switchVoicePhrases = []string{"switch voice", "change voice", "switch tts", "change tts"}

func words(utterance string) []string {
	return strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// IsExitPhrase 判断一句话是否表示结束对话
func IsExitPhrase(utterance string) bool {
	for _, word := range words(utterance) {
		for _, phrase := range exitPhrases {
			if word == phrase {
				return true
			}
		}
	}
	return false
}

// IsSwitchVoicePhrase 判断一句话是否要求切换合成声音
func IsSwitchVoicePhrase(utterance string) bool {
	padded := " " + strings.Join(words(utterance), " ") + " "
	for _, phrase := range switchVoicePhrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// VoiceSwitchReply 确认已切换到新的声音
func VoiceSwitchReply(voice string) string {
	return fmt.Sprintf("Switched to the %s voice. You'll notice a different voice now!", voice)
}

// Transcriber 将音频转写为文本
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
}

// Synthesizer 将文本合成为音频
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Responder 处理一轮文本对话
type Responder interface {
	Respond(ctx context.Context, sess *chat.Session, utterance, currentContext string) (*assistant.TurnResult, error)
}

// VoiceChain 语音处理链，串联 ASR、对话流水线与 TTS
type VoiceChain struct {
	transcriber Transcriber
	synthesizer Synthesizer
	responder   Responder
	logger      *slog.Logger
}

// NewVoiceChain 创建语音处理链
func NewVoiceChain(transcriber Transcriber, synthesizer Synthesizer, responder Responder, logger *slog.Logger) *VoiceChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceChain{
		transcriber: transcriber,
		synthesizer: synthesizer,
		responder:   responder,
		logger:      logger,
	}
}

// VoiceTurnInput 一轮语音输入
type VoiceTurnInput struct {
	Session        *chat.Session
	AudioData      []byte
	AudioFormat    string
	Language       string
	Voice          string
	CurrentContext string
}

// VoiceTurnOutput 一轮语音输出
type VoiceTurnOutput struct {
	SessionID   string                `json:"sessionId"`
	InputText   string                `json:"inputText"`
	OutputText  string                `json:"outputText"`
	OutputAudio []byte                `json:"-"`
	AudioFormat string                `json:"audioFormat,omitempty"`
	Exit        bool                  `json:"exit"`
	Voice       string                `json:"voice,omitempty"`
	VoiceSwitch bool                  `json:"voiceSwitch"`
	Turn        *assistant.TurnResult `json:"turn,omitempty"`
	ProcessTime int64                 `json:"processTime"` // milliseconds
}

// ProcessVoiceTurn 处理语音到语音的完整流程。
// 识别失败或识别结果为空时返回 ErrNoSpeech；合成失败只记录日志，返回不带音频的文本回复。
func (vc *VoiceChain) ProcessVoiceTurn(ctx context.Context, input *VoiceTurnInput) (*VoiceTurnOutput, error) {
	started := time.Now()

	// 步骤1: ASR - 语音转文本
	asrResp, err := vc.transcriber.TranscribeBuffer(ctx, input.Session.ID, input.AudioData, input.AudioFormat, input.Language)
	if err != nil {
		vc.logger.Warn("transcription failed", "session_id", input.Session.ID, "error", err)
		return nil, ErrNoSpeech
	}
	text := strings.TrimSpace(asrResp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	output := &VoiceTurnOutput{
		SessionID: input.Session.ID,
		InputText: text,
		Voice:     CanonicalVoice(input.Voice),
	}

	// 步骤2: 结束语与切换声音指令不进入对话流水线
	switch {
	case IsExitPhrase(text):
		output.Exit = true
		output.OutputText = GoodbyeReply
	case IsSwitchVoicePhrase(text):
		output.VoiceSwitch = true
		output.Voice = NextVoice(input.Voice)
		output.OutputText = VoiceSwitchReply(output.Voice)
	default:
		turn, err := vc.responder.Respond(ctx, input.Session, text, input.CurrentContext)
		if err != nil {
			return nil, err
		}
		output.Turn = turn
		output.OutputText = turn.Reply
	}

	// 步骤3: TTS - 文本转语音，未指定声音时按语气挑选
	if vc.synthesizer != nil {
		voice := output.Voice
		if voice == "" && output.Turn != nil {
			voice = tone.Analyze(text, output.OutputText).Voice
		}
		ttsResp, err := vc.synthesizer.SynthesizeToBuffer(ctx, &speech.TTSRequest{
			SessionID: input.Session.ID,
			Text:      output.OutputText,
			Voice:     voice,
		})
		if err != nil {
			vc.logger.Warn("speech synthesis failed, replying with text only", "session_id", input.Session.ID, "error", err)
		} else {
			output.OutputAudio = ttsResp.AudioData
			output.AudioFormat = ttsResp.Format
		}
	}

	output.ProcessTime = time.Since(started).Milliseconds()
	return output, nil
}
