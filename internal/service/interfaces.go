// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/jstall/pennywise/internal/model"
)

// CategoryStore provides the category catalog and rule/mapping reads.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryRules(ctx context.Context, enabledOnly bool) ([]model.Rule, error)
	UpsertMerchantMapping(ctx context.Context, pattern, category string) error
	GetMerchantMappings(ctx context.Context) ([]model.MerchantMapping, error)
	// GetExternalIDRule resolves a stable catalog identifier (ASIN, SKU)
	// to a category, independent of the generic rule table.
	GetExternalIDRule(ctx context.Context, externalID string) (string, error)
}

// CategorizationStore persists pipeline decisions.
type CategorizationStore interface {
	GetRecord(ctx context.Context, itemID string, itemType model.ItemType) (*model.CategorizationRecord, error)
	SaveRecord(ctx context.Context, record *model.CategorizationRecord) error
	CountRecords(ctx context.Context) (int, error)
}

// EmbeddingStore persists item vectors.
type EmbeddingStore interface {
	GetConfirmedEmbeddings(ctx context.Context, itemType model.ItemType, limit int) ([]model.Embedding, error)
	GetEmbedding(ctx context.Context, itemID string, itemType model.ItemType) (*model.Embedding, error)
	SaveEmbedding(ctx context.Context, embedding *model.Embedding) error
}

// FeedbackStore is the append-only correction log.
type FeedbackStore interface {
	SaveFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	GetUnprocessedFeedback(ctx context.Context, limit int) ([]model.FeedbackEvent, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	GetPendingCount(ctx context.Context) (int, error)
	GetRepeatedCorrections(ctx context.Context, minCount int) ([]model.CorrectionPattern, error)
}

// RuleStore creates rules on behalf of the learning loop.
type RuleStore interface {
	// CreateAutoRule is idempotent: an equivalent existing rule is left
	// untouched and no duplicate row is created.
	CreateAutoRule(ctx context.Context, name, pattern, category string, matchKind model.MatchKind, confidence float64, origin model.RuleOrigin) error
}

// TrainingStore records retraining audit entries.
type TrainingStore interface {
	SaveTrainingHistory(ctx context.Context, entry *model.TrainingHistoryEntry) error
	GetTrainingHistory(ctx context.Context, limit int) ([]model.TrainingHistoryEntry, error)
}

// Storage aggregates every persistence collaborator the pipeline consumes.
type Storage interface {
	CategoryStore
	CategorizationStore
	EmbeddingStore
	FeedbackStore
	RuleStore
	TrainingStore

	Migrate(ctx context.Context) error
	Close() error
}

// GenerativeClient is the generative/embedding backend (a local inference
// server in the default deployment).
type GenerativeClient interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	IsAvailable(ctx context.Context) bool
	// Pull self-provisions a model that the server reports missing.
	Pull(ctx context.Context, modelName string) error
}

// GenerateOptions bounds a generation request.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// BatchProgress is reported after each processed chunk of a batch run.
type BatchProgress struct {
	Processed  int
	Total      int
	Percentage float64
}

// ProgressFunc receives batch progress updates.
type ProgressFunc func(BatchProgress)

// PipelineStatus is the caller-facing health summary.
type PipelineStatus struct {
	BackendAvailable    bool
	EmbeddingsAvailable bool
	PendingFeedback     int
	RetrainingThreshold int
	TotalCategorized    int
	RetrainingActive    bool
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
