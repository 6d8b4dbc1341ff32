package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/llm"
	"github.com/dslachut/hawat/memory"
	"github.com/dslachut/hawat/memory/embedder/cached"
	"github.com/dslachut/hawat/memory/embedder/mock"
	"github.com/dslachut/hawat/memory/embedder/remote"
	"github.com/dslachut/hawat/memory/store/postgres"
	"github.com/dslachut/hawat/memory/store/sqlite"
)

// openStore opens the configured backend. The result is a nil interface on
// error.
func openStore(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// newEmbedder builds the configured embedder, wrapped in a cache when
// enabled. The returned func releases it.
func newEmbedder(cfg *config.Config) (memory.Embedder, func(), error) {
	var (
		inner   memory.Embedder
		release = func() {}
	)

	switch cfg.Embedder {
	case config.EmbedderMock:
		inner = mock.New()
	case config.EmbedderRemote:
		c, err := remote.New(remote.Config{
			BaseURL: cfg.EmbeddingBaseURL,
			APIKey:  cfg.EmbeddingAPIKey,
			Model:   cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remote embedder: %w", err)
		}
		inner = c
	default:
		e, closeFn, err := newONNXEmbedder(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("onnx embedder: %w", err)
		}
		inner, release = e, closeFn
	}

	if !cfg.EmbedCacheEnabled {
		return inner, release, nil
	}
	c, err := cached.New(inner, cached.Config{})
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		release()
	}, nil
}

// newCompleter builds the configured completion backend.
func newCompleter(cfg *config.Config) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
		return llm.NewAnthropicCompleter(llm.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		}), nil
	default:
		return llm.NewOpenAICompleter(llm.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIChatModel,
		})
	}
}

// app is everything a command needs to touch memory.
type app struct {
	manager *memory.SimpleManager
	store   memory.Store
	cleanup func()
}

// newApp opens the store and embedder. Store and embedder failures are
// logged and degrade memory rather than failing, unless requireStore is set.
func newApp(ctx context.Context, cfg *config.Config, requireStore bool) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		if requireStore {
			return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
		}
		log.Printf("[MEMORY] Failed to open %s store, continuing without memory: %v", cfg.DBDriver, err)
	}

	embedder, release, err := newEmbedder(cfg)
	if err != nil {
		log.Printf("[EMBED] %v; similarity search disabled", err)
		embedder, release = nil, func() {}
	}

	mem := cfg.Memory
	a := &app{
		manager: memory.NewSimpleManager(store, embedder, &mem),
		store:   store,
	}
	a.cleanup = func() {
		release()
		if store != nil {
			if err := store.Close(); err != nil {
				log.Printf("[MEMORY] Close store: %v", err)
			}
		}
	}
	return a, nil
}
