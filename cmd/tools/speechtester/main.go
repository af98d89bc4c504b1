package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/ecokart/backend/internal/config"
	speechmodel "github.com/zhouzirui/ecokart/backend/internal/model/speech"
	"github.com/zhouzirui/ecokart/backend/internal/service/speech"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("无法加载 .env，改用系统环境变量", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("配置加载失败", err)
	}
	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if !cfg.Speech.Enabled {
		fatal("语音服务未启用，请先配置 SPEECH_API_KEY 或 GROQ_API_KEY", nil)
	}

	mode := flag.String("mode", "", "测试模式: asr、tts 或 roundtrip")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "音频格式 (ASR: 输入格式; TTS: 输出格式)")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音或别名 (aria, harvey, calm, upbeat)")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(cfg.Speech)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, svc, sessionID, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, svc, sessionID, *text, *voice, *format, *outputPath)
	case "roundtrip":
		runRoundTrip(ctx, svc, sessionID, *text, *voice, *language)
	default:
		flag.Usage()
		fatal("请通过 -mode=asr、-mode=tts 或 -mode=roundtrip 指定测试模式", nil)
	}
}

func runASR(ctx context.Context, svc *speech.Service, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		fatal("ASR 模式需要通过 -audio 指定音频文件路径", nil)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		fatal("打开音频文件失败", err)
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	}

	slog.Info("开始进行 ASR 测试", "session_id", sessionID, "format", format, "language", language)

	resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		fatal("ASR 调用失败", err)
	}

	slog.Info("ASR 识别成功", "text", resp.Text, "language", resp.Language, "duration_ms", resp.Duration)
}

func runTTS(ctx context.Context, svc *speech.Service, sessionID, text, voice, format, outputPath string) {
	if strings.TrimSpace(text) == "" {
		fatal("TTS 模式需要通过 -text 提供待合成文本", nil)
	}

	slog.Info("开始进行 TTS 测试", "session_id", sessionID, "voice", voice, "format", format)

	resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
	})
	if err != nil {
		fatal("TTS 调用失败", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		fatal("写入音频文件失败", err)
	}

	slog.Info("TTS 合成成功", "file", outputPath, "voice", resp.Voice, "bytes", len(resp.AudioData))
}

// runRoundTrip 先合成再识别，用于检查两端配置是否匹配
func runRoundTrip(ctx context.Context, svc *speech.Service, sessionID, text, voice, language string) {
	if strings.TrimSpace(text) == "" {
		text = "Do you have the UltraBook X in stock?"
	}

	tts, err := svc.SynthesizeToBuffer(ctx, &speechmodel.TTSRequest{SessionID: sessionID, Text: text, Voice: voice})
	if err != nil {
		fatal("TTS 调用失败", err)
	}

	asr, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(tts.AudioData),
		Format:    tts.Format,
		Language:  language,
	})
	if err != nil {
		fatal("ASR 调用失败", err)
	}

	slog.Info("往返测试完成", "input", text, "transcript", asr.Text, "exit_phrase", speech.IsExitPhrase(asr.Text))
}

func fatal(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
