package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhouzirui/ecokart/backend/internal/config"
	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/service/assistant"
	"github.com/zhouzirui/ecokart/backend/internal/service/chat"
	"github.com/zhouzirui/ecokart/backend/internal/service/llm"
	"github.com/zhouzirui/ecokart/backend/internal/service/speech"
	"github.com/zhouzirui/ecokart/backend/internal/store"
	"github.com/zhouzirui/ecokart/backend/internal/store/sqldb"
)

const driverMemory = "memory"

// app holds the wired services shared by every command.
type app struct {
	cfg       *config.Config
	store     store.ContextStore
	catalog   catalog.Store
	sessions  *chat.Service
	assistant *assistant.Service
	speech    *speech.Service

	closeStore func() error
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.ContextStore, func() error, error) {
	if strings.EqualFold(cfg.Driver, driverMemory) {
		slog.Warn("using in-memory context store, conversations are lost on exit")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}

	db, err := sqldb.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// newApp wires storage, catalog, completion and speech. A missing or broken
// completion provider is not fatal: every turn then answers with the fallback reply.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	products := catalog.NewMemoryStore(catalog.Load(cfg.Catalog.Path))

	var client llm.Client
	if cfg.LLM.Enabled() {
		client, err = llm.New(ctx, cfg.LLM)
		if err != nil {
			slog.Warn("failed to initialize completion client, replies will use the fallback", "provider", cfg.LLM.Provider, "error", err)
			client = nil
		} else {
			slog.Info("completion client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
		}
	} else {
		slog.Warn("completion provider not configured, replies will use the fallback", "provider", cfg.LLM.Provider)
	}

	var speechSvc *speech.Service
	if cfg.Speech.Enabled {
		speechSvc = speech.NewService(cfg.Speech)
		slog.Info("speech service initialized", "asr_model", cfg.Speech.ASRModel, "tts_model", cfg.Speech.TTSModel)
	} else {
		slog.Info("speech credentials not configured, skipping speech features")
	}

	assistantSvc := assistant.NewService(st, products, client, assistant.Options{
		ContextLimit: cfg.Assistant.ContextLimit,
		MaxProducts:  cfg.Assistant.MaxProducts,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})

	return &app{
		cfg:        cfg,
		store:      st,
		catalog:    products,
		sessions:   chat.NewService(),
		assistant:  assistantSvc,
		speech:     speechSvc,
		closeStore: closeStore,
	}, nil
}

func (a *app) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
