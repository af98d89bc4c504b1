package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "LLM_MODEL", "LLM_BASE_URL", "LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY",
		"ARK_API_KEY", "ARK_MODEL", "OLLAMA_HOST", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_MAX_RETRIES",
		"SPEECH_API_KEY", "SPEECH_ENABLED", "SPEECH_TTS_SPEED", "DB_DRIVER", "DB_DSN", "CATALOG_PATH",
		"ASSISTANT_CONTEXT_LIMIT", "ASSISTANT_MAX_PRODUCTS", "LOG_LEVEL", "LOG_FILE",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, defaultGroqModel, cfg.LLM.Model)
	assert.Equal(t, defaultGroqBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, 300, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.8, cfg.LLM.Temperature, 0.0001)
	assert.False(t, cfg.LLM.Enabled())
	assert.False(t, cfg.Speech.Enabled)
	assert.Equal(t, "whisper-large-v3", cfg.Speech.ASRModel)
	assert.Equal(t, 30*time.Second, cfg.Speech.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ecokart.db", cfg.Store.DSN)
	assert.Equal(t, "data/catalog.json", cfg.Catalog.Path)
	assert.Equal(t, 3, cfg.Assistant.ContextLimit)
	assert.Equal(t, 3, cfg.Assistant.MaxProducts)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
}

func TestLoadGroqKeyEnablesLLMAndSpeech(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.Speech.Enabled)
}

func TestLoadOllamaProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "llama3.1", cfg.LLM.Model)
	assert.True(t, cfg.LLM.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":            "80 80",
		"LLM_PROVIDER":    "bard",
		"LLM_TEMPERATURE": "hot",
		"DB_DRIVER":       "mysql",
		"LOG_LEVEL":       "loud",
		"SPEECH_ENABLED":  "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := LoadFrom(viper.New())
			require.Error(t, err)
		})
	}
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "postgres")
	_, err := LoadFrom(viper.New())
	require.Error(t, err)
}

func TestLoadAcceptsDriverAliases(t *testing.T) {
	for alias, expect := range map[string]string{
		"sqlite3":    "sqlite",
		"SQLite":     "sqlite",
		"postgresql": "postgres",
	} {
		t.Run(alias, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DB_DRIVER", alias)
			t.Setenv("DB_DSN", "stub-dsn")
			cfg, err := LoadFrom(viper.New())
			require.NoError(t, err)
			assert.Equal(t, expect, cfg.Store.Driver)
		})
	}
}

func TestPortAcceptsAddress(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--port", "9090", "--db-driver", "memory"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = parseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var text, jsonOut bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &jsonOut, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("turn completed", "conversation_id", 7)

	assert.Contains(t, text.String(), "turn completed")
	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, jsonOut.String(), `"conversation_id":7`)
}
