package engine

import (
	"context"

	"github.com/jstall/pennywise/internal/llm"
	"github.com/jstall/pennywise/internal/model"
)

// RuleMatcher evaluates the rule table against item text.
type RuleMatcher interface {
	Match(text string, rules []model.Rule) *model.Rule
}

// Embedder generates vectors for the semantic stage. Embed fails soft; a
// nil vector means the stage is skipped for this item.
type Embedder interface {
	Available() bool
	Embed(ctx context.Context, text string) []float64
}

// EmbeddingSource supplies the confirmed embeddings the semantic stage
// votes over.
type EmbeddingSource interface {
	Confirmed(ctx context.Context, itemType model.ItemType) ([]model.Embedding, error)
}

// Classifier is the generative last stage. It never errors; it degrades
// internally to a fixed-confidence fallback.
type Classifier interface {
	Classify(ctx context.Context, item model.Item, categories []model.Category, mappings []model.MerchantMapping) llm.Result
}

// RetrainState exposes the learning loop's state for status reporting.
type RetrainState interface {
	Active() bool
	Threshold(totalCategorized int) int
}
