package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jstall/pennywise/internal/config"
	"github.com/jstall/pennywise/internal/engine"
	"github.com/jstall/pennywise/internal/feedback"
	"github.com/jstall/pennywise/internal/llm"
	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/ollama"
	"github.com/jstall/pennywise/internal/rule"
	"github.com/jstall/pennywise/internal/similarity"
	"github.com/jstall/pennywise/internal/storage"
	"github.com/spf13/viper"
)

// initStorage opens the SQLite database and brings the schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/pennywise/pennywise.db"
	}

	// Expand tilde and environment variables
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close storage", "error", err)
	}
}

// newBackend builds the Ollama client from configuration.
func newBackend() *ollama.Client {
	return ollama.NewClient(ollama.Config{
		BaseURL:        viper.GetString("ollama.base_url"),
		GenerateModel:  viper.GetString("ollama.generate_model"),
		EmbeddingModel: viper.GetString("ollama.embedding_model"),
		MaxConns:       viper.GetInt("ollama.max_connections"),
	})
}

// services bundles the fully wired categorization stack for a command
// invocation. Close releases the database handle.
type services struct {
	store     *storage.SQLiteStorage
	backend   *ollama.Client
	embedder  *similarity.Embedder
	cache     *similarity.Cache
	pipeline  *engine.Pipeline
	retrainer *feedback.Retrainer
	recorder  *feedback.Recorder
}

// newServices wires storage, the Ollama backend, the similarity layer, the
// classifier, the categorization pipeline, and the learning loop.
func newServices(ctx context.Context) (*services, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	backend := newBackend()
	logger := slog.Default()

	embeddingModel := viper.GetString("ollama.embedding_model")
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}
	embedder := similarity.NewEmbedder(backend, embeddingModel)

	cacheLimit := viper.GetInt("similarity.cache_limit")
	cacheTTL := viper.GetDuration("similarity.cache_ttl")
	cache := similarity.NewCache(store, cacheLimit, cacheTTL)

	classifier := llm.NewClassifier(backend, llm.Config{
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
	}, logger)

	retrainer := feedback.NewRetrainer(store, embedder, cache, logger)
	recorder := feedback.NewRecorder(store, embedder, retrainer, logger)

	cfg := engine.DefaultConfig()
	if chunk := viper.GetInt("categorize.chunk_size"); chunk > 0 {
		cfg.ChunkSize = chunk
	}
	if pause := viper.GetDuration("categorize.chunk_pause"); pause > 0 {
		cfg.ChunkPause = pause
	}
	pipeline := engine.NewWithConfig(store, rule.NewEngine(), embedder, cache, classifier, backend, logger, cfg)
	pipeline.SetRetrainState(retrainer)

	return &services{
		store:     store,
		backend:   backend,
		embedder:  embedder,
		cache:     cache,
		pipeline:  pipeline,
		retrainer: retrainer,
		recorder:  recorder,
	}, nil
}

func (s *services) Close() {
	closeStorage(s.store)
}

// parseItemType validates the --type flag.
func parseItemType(raw string) (model.ItemType, error) {
	switch model.ItemType(raw) {
	case model.ItemTypeTransaction:
		return model.ItemTypeTransaction, nil
	case model.ItemTypeOrder:
		return model.ItemTypeOrder, nil
	default:
		return "", fmt.Errorf("invalid item type %q (want %q or %q)", raw, model.ItemTypeTransaction, model.ItemTypeOrder)
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
