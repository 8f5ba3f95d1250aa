package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/heirloom/internal/agent"
	"github.com/nugget/heirloom/internal/chat"
	"github.com/nugget/heirloom/internal/config"
	"github.com/nugget/heirloom/internal/conversation"
	"github.com/nugget/heirloom/internal/database"
	"github.com/nugget/heirloom/internal/grounding"
	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/llm"
	"github.com/nugget/heirloom/internal/rules"
	"github.com/nugget/heirloom/internal/tools"
	"github.com/nugget/heirloom/internal/usage"
)

// app holds the wired components shared by serve and ask.
type app struct {
	db            *sql.DB
	book          *rules.Book
	legacies      *legacy.Store
	conversations conversation.Store
	usage         *usage.Store
	chat          *chat.Service
	logger        *slog.Logger
}

// openStores opens the database and the stores that live in it. It does
// not touch the model endpoint, so seed can use it without API keys.
func openStores(cfg *config.Config, logger *slog.Logger) (*app, error) {
	book, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, book: book, logger: logger}

	a.legacies, err = legacy.NewStore(db, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.usage, err = usage.NewStore(db)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openApp wires the full chat stack.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.legacies.SeedCatalog(ctx, a.book); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	a.conversations, err = openConversations(ctx, cfg, a.db, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	client, err := createLLMClient(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	loop := agent.NewLoop(
		client,
		a.conversations,
		grounding.NewAssembler(a.legacies, a.book, logger),
		tools.NewExecutor(a.legacies, logger),
		agent.Config{
			Model:          cfg.LLM.Model,
			MaxTokens:      cfg.LLM.MaxTokens,
			Temperature:    &cfg.LLM.Temperature,
			MaxRounds:      cfg.LLM.MaxRounds,
			HistoryWindow:  cfg.Conversations.HistoryWindow,
			RequestTimeout: cfg.LLM.RequestTimeout,
		},
		logger,
	)
	a.chat = chat.NewService(a.legacies, a.conversations, loop, a.usage,
		chat.Config{MaxMessageChars: cfg.Chat.MaxMessageChars}, logger)
	return a, nil
}

func openConversations(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (conversation.Store, error) {
	switch cfg.Conversations.Backend {
	case "mongo":
		s, err := conversation.DialMongo(ctx, cfg.Conversations.Mongo.URI, cfg.Conversations.Mongo.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("open mongo conversation store: %w", err)
		}
		logger.Info("conversation store ready", "backend", "mongo", "database", cfg.Conversations.Mongo.Database)
		return s, nil
	default:
		s, err := conversation.NewSQLiteStore(db, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// createLLMClient builds a multi-provider client. The configured
// provider must have credentials; the other provider is registered when
// its key is present.
func createLLMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	providers := make(map[string]llm.Client)

	if cfg.LLM.Anthropic.APIKey != "" {
		providers["anthropic"] = llm.NewAnthropicClient(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.BaseURL, logger)
	}
	if cfg.LLM.Gemini.APIKey != "" {
		g, err := llm.NewGeminiClient(ctx, cfg.LLM.Gemini.APIKey, logger)
		if err != nil {
			return nil, err
		}
		providers["gemini"] = g
	}

	primary, ok := providers[cfg.LLM.Provider]
	if !ok {
		return nil, fmt.Errorf("llm.%s.api_key is required for provider %q", cfg.LLM.Provider, cfg.LLM.Provider)
	}

	multi := llm.NewMultiClient(primary)
	for name, c := range providers {
		multi.AddProvider(name, c)
	}
	multi.AddModel(cfg.LLM.Model, cfg.LLM.Provider)

	logger.Info("LLM client initialized", "model", cfg.LLM.Model, "provider", cfg.LLM.Provider, "providers", len(providers))
	return multi, nil
}

// Close releases the stores and the database.
func (a *app) Close() error {
	var errs []error
	if a.conversations != nil {
		errs = append(errs, a.conversations.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
