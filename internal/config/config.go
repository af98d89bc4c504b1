package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// 支持的大模型提供方。
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
	ProviderOllama = "ollama"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Speech    SpeechConfig
	Store     StoreConfig
	Catalog   CatalogConfig
	Assistant AssistantConfig
	Log       LogConfig
}

// flagKeys maps command-line flags onto the environment keys they override.
var flagKeys = map[string]string{
	"port":         "PORT",
	"catalog":      "CATALOG_PATH",
	"db-driver":    "DB_DRIVER",
	"db-dsn":       "DB_DSN",
	"llm-provider": "LLM_PROVIDER",
	"llm-model":    "LLM_MODEL",
	"log-level":    "LOG_LEVEL",
	"log-file":     "LOG_FILE",
}

// RegisterFlags 声明可覆盖环境变量的命令行参数。
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("port", "", "HTTP listen port or address (env PORT)")
	flags.String("catalog", "", "product catalog file, JSON or YAML (env CATALOG_PATH)")
	flags.String("db-driver", "", "context store driver: sqlite, postgres or memory (env DB_DRIVER)")
	flags.String("db-dsn", "", "context store DSN (env DB_DSN)")
	flags.String("llm-provider", "", "completion provider: openai, ark or ollama (env LLM_PROVIDER)")
	flags.String("llm-model", "", "completion model name (env LLM_MODEL)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-file", "", "optional JSON log file (env LOG_FILE)")
}

// BindFlags 将命令行参数绑定到 viper，参数优先于环境变量。
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load 从全局 viper 实例加载配置。
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom 从环境变量（以及已绑定的命令行参数）加载配置。
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	r := reader{v: v}

	server, err := r.loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := r.loadLLMConfig()
	if err != nil {
		return nil, err
	}

	speech, err := r.loadSpeechConfig(llm)
	if err != nil {
		return nil, err
	}

	storeCfg, err := r.loadStoreConfig()
	if err != nil {
		return nil, err
	}

	assistant, err := r.loadAssistantConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := r.loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		LLM:       llm,
		Speech:    speech,
		Store:     storeCfg,
		Catalog:   CatalogConfig{Path: r.getEnvOrDefault("CATALOG_PATH", "data/catalog.json")},
		Assistant: assistant,
		Log:       logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	RateLimitRPS   float64
	RateLimitBurst int
}

// LLMConfig 描述大模型相关配置。
type LLMConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c LLMConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOllama:
		return c.Model != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return c.Model != "" && c.APIKey != ""
	}
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	APIKey      string
	BaseURL     string
	ASRModel    string
	ASRLanguage string
	TTSModel    string
	TTSVoice    string
	TTSFormat   string
	TTSSpeed    float32
	Timeout     time.Duration
	Enabled     bool
}

// StoreConfig 描述上下文存储配置。
type StoreConfig struct {
	Driver string
	DSN    string
}

// CatalogConfig 描述商品目录位置。
type CatalogConfig struct {
	Path string
}

// AssistantConfig 描述单轮对话的检索与匹配上限。
type AssistantConfig struct {
	ContextLimit int
	MaxProducts  int
}

// LogConfig 描述日志级别与输出。
type LogConfig struct {
	Level slog.Level
	File  string
}

type reader struct {
	v *viper.Viper
}

// loadServerConfig 解析服务器监听地址。
func (r reader) loadServerConfig() (ServerConfig, error) {
	port := r.getEnvOrDefault("PORT", "8080")

	rps, err := r.parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return ServerConfig{}, err
	}
	burst, err := r.parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{RateLimitRPS: 2, RateLimitBurst: 5}
	if rps != nil {
		cfg.RateLimitRPS = *rps
	}
	if burst != nil {
		cfg.RateLimitBurst = *burst
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

func (r reader) loadLLMConfig() (LLMConfig, error) {
	provider := strings.ToLower(r.getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI))

	maxTokens := 300
	if override, err := r.parseOptionalIntEnv("LLM_MAX_TOKENS"); err != nil {
		return LLMConfig{}, err
	} else if override != nil && *override > 0 {
		maxTokens = *override
	}

	temperature := float32(0.8)
	if override, err := r.parseOptionalFloatEnv("LLM_TEMPERATURE"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		temperature = float32(*override)
	}

	retries := 3
	if override, err := r.parseOptionalIntEnv("LLM_MAX_RETRIES"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		if *override < 1 {
			retries = 1
		} else {
			retries = *override
		}
	}

	timeout := 30 * time.Second
	if override, err := r.parseOptionalIntEnv("LLM_TIMEOUT"); err != nil {
		return LLMConfig{}, err
	} else if override != nil && *override > 0 {
		timeout = time.Duration(*override) * time.Second
	}

	cfg := LLMConfig{
		Provider:    provider,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		MaxRetries:  retries,
		Timeout:     timeout,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = r.getEnvOrDefault("ARK_API_KEY", "")
		cfg.AccessKey = r.getEnvOrDefault("ARK_ACCESS_KEY", "")
		cfg.SecretKey = r.getEnvOrDefault("ARK_SECRET_KEY", "")
		cfg.Model = r.firstOf("LLM_MODEL", "ARK_MODEL")
		cfg.BaseURL = r.getEnvOrDefault("LLM_BASE_URL", r.getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"))
		cfg.Region = r.getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOllama:
		cfg.Model = r.getEnvOrDefault("LLM_MODEL", "llama3.1")
		cfg.BaseURL = r.getEnvOrDefault("LLM_BASE_URL", r.getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"))
	case ProviderOpenAI:
		cfg.APIKey = r.firstOf("LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")
		cfg.Model = r.getEnvOrDefault("LLM_MODEL", defaultGroqModel)
		cfg.BaseURL = r.getEnvOrDefault("LLM_BASE_URL", defaultGroqBaseURL)
	default:
		return LLMConfig{}, fmt.Errorf("invalid LLM_PROVIDER value: %q", provider)
	}

	return cfg, nil
}

func (r reader) loadSpeechConfig(llm LLMConfig) (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := r.parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := r.parseOptionalFloatEnv("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0) // 默认1.0倍速
	if speed != nil {
		ttsSpeed = float32(*speed)
	}

	enabled, err := r.parseBoolEnv("SPEECH_ENABLED", true)
	if err != nil {
		return SpeechConfig{}, err
	}

	// 如果没有专门的语音配置，沿用 OpenAI 兼容的大模型凭证
	apiKey := r.firstOf("SPEECH_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")
	if apiKey == "" && llm.Provider == ProviderOpenAI {
		apiKey = llm.APIKey
	}

	return SpeechConfig{
		APIKey:      apiKey,
		BaseURL:     r.getEnvOrDefault("SPEECH_BASE_URL", defaultGroqBaseURL),
		ASRModel:    r.getEnvOrDefault("SPEECH_ASR_MODEL", "whisper-large-v3"),
		ASRLanguage: r.getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en"),
		TTSModel:    r.getEnvOrDefault("SPEECH_TTS_MODEL", "playai-tts"),
		TTSVoice:    r.getEnvOrDefault("SPEECH_TTS_VOICE", "Arista-PlayAI"),
		TTSFormat:   r.getEnvOrDefault("SPEECH_TTS_FORMAT", "wav"),
		TTSSpeed:    ttsSpeed,
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     enabled && apiKey != "",
	}, nil
}

func (r reader) loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(r.getEnvOrDefault("DB_DRIVER", "sqlite")))
	// Aliases match the names sqldb.Open accepts.
	switch driver {
	case "sqlite", "postgres", "memory":
	case "sqlite3":
		driver = "sqlite"
	case "postgresql":
		driver = "postgres"
	default:
		return StoreConfig{}, fmt.Errorf("invalid DB_DRIVER value: %q", driver)
	}

	dsn := r.getEnvOrDefault("DB_DSN", "")
	if dsn == "" && driver == "sqlite" {
		dsn = "ecokart.db"
	}
	if dsn == "" && driver == "postgres" {
		return StoreConfig{}, fmt.Errorf("DB_DSN is required for the postgres driver")
	}
	return StoreConfig{Driver: driver, DSN: dsn}, nil
}

func (r reader) loadAssistantConfig() (AssistantConfig, error) {
	cfg := AssistantConfig{ContextLimit: 3, MaxProducts: 3}

	if limit, err := r.parseOptionalIntEnv("ASSISTANT_CONTEXT_LIMIT"); err != nil {
		return AssistantConfig{}, err
	} else if limit != nil && *limit >= 0 {
		cfg.ContextLimit = *limit
	}

	if max, err := r.parseOptionalIntEnv("ASSISTANT_MAX_PRODUCTS"); err != nil {
		return AssistantConfig{}, err
	} else if max != nil && *max >= 0 {
		cfg.MaxProducts = *max
	}
	return cfg, nil
}

func (r reader) loadLogConfig() (LogConfig, error) {
	level, err := parseLogLevel(r.getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{Level: level, File: r.getEnvOrDefault("LOG_FILE", "")}, nil
}

func (r reader) getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(r.v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func (r reader) firstOf(keys ...string) string {
	for _, key := range keys {
		if value := r.getEnvOrDefault(key, ""); value != "" {
			return value
		}
	}
	return ""
}

func (r reader) parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func (r reader) parseOptionalFloatEnv(key string) (*float64, error) {
	value := r.getEnvOrDefault(key, "")
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func (r reader) parseOptionalIntEnv(key string) (*int, error) {
	value := r.getEnvOrDefault(key, "")
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
