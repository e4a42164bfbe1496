package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements service.GenerativeClient with scripted responses.
type fakeBackend struct {
	response    string
	generateErr error
	// failures makes Generate error this many times before succeeding.
	failures  int
	available bool
	prompts   []string
}

func (f *fakeBackend) Generate(_ context.Context, prompt string, _ service.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.failures > 0 {
		f.failures--
		return "", errors.New("transient backend error")
	}
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.response, nil
}

func (f *fakeBackend) Embed(_ context.Context, _ string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBackend) IsAvailable(_ context.Context) bool { return f.available }

func (f *fakeBackend) Pull(_ context.Context, _ string) error { return nil }

func testCatalog() []model.Category {
	return []model.Category{
		{Name: "Groceries", Description: "Food and household staples", Keywords: []string{"grocery", "market", "food"}},
		{Name: "Dining Out", Keywords: []string{"restaurant", "coffee"}},
		{Name: "Shopping", Keywords: []string{"amazon"}},
		{Name: "Uncategorized"},
	}
}

func newTestClassifier(t *testing.T, backend *fakeBackend) *Classifier {
	t.Helper()
	return NewClassifier(backend, Config{RateLimit: 600}, nil)
}

func TestClassifier_ValidResponse(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response:  `{"category": "groceries", "confidence": 0.82, "reasoning": "food merchant", "alternatives": [{"category": "Dining Out", "confidence": 0.4}]}`,
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Safeway"}, testCatalog(), nil)

	// Category name is normalized to the catalog's spelling.
	assert.Equal(t, "Groceries", got.Category)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
	assert.Equal(t, "food merchant", got.Reasoning)
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, "Dining Out", got.Alternatives[0].Category)
}

func TestClassifier_ResponseWithProse(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response:  `Looking at this transaction, {"category": "Dining Out", "confidence": 0.75, "reasoning": "coffee shop"} is my answer.`,
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Blue Bottle"}, testCatalog(), nil)

	assert.Equal(t, "Dining Out", got.Category)
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
}

func TestClassifier_NoJSONFallsBack(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response:  "I think this is groceries!",
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Mystery Shop"}, testCatalog(), nil)

	assert.Equal(t, "Uncategorized", got.Category)
	assert.InDelta(t, FallbackConfidence, got.Confidence, 1e-9)
}

func TestClassifier_UnknownCategoryFallsBack(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response:  `{"category": "Cryptowidgets", "confidence": 0.99}`,
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1"}, testCatalog(), nil)

	assert.Equal(t, "Uncategorized", got.Category)
	assert.InDelta(t, FallbackConfidence, got.Confidence, 1e-9)
}

func TestClassifier_BackendDownUsesKeywords(t *testing.T) {
	backend := &fakeBackend{available: false}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Corner Market", Name: "grocery run"}, testCatalog(), nil)

	assert.Equal(t, "Groceries", got.Category)
	assert.Greater(t, got.Confidence, FallbackConfidence)
	assert.Empty(t, backend.prompts, "no generate call should be made when unavailable")
}

func TestClassifier_BackendDownNoKeywordMatch(t *testing.T) {
	backend := &fakeBackend{available: false}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Zzyzx Holdings"}, testCatalog(), nil)

	assert.Equal(t, "Uncategorized", got.Category)
	assert.InDelta(t, FallbackConfidence, got.Confidence, 1e-9)
}

func TestClassifier_RetriesTransientGenerateFailure(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		failures:  1,
		response:  `{"category": "Groceries", "confidence": 0.8}`,
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Safeway"}, testCatalog(), nil)

	assert.Equal(t, "Groceries", got.Category)
	assert.Len(t, backend.prompts, 2)
}

func TestClassifier_GenerateErrorUsesKeywords(t *testing.T) {
	backend := &fakeBackend{available: true, generateErr: errors.New("timeout")}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "amazon marketplace"}, testCatalog(), nil)

	assert.Equal(t, "Shopping", got.Category)
}

func TestClassifier_PromptContainsCatalogAndMappings(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response:  `{"category": "Shopping", "confidence": 0.9}`,
	}
	c := newTestClassifier(t, backend)

	mappings := []model.MerchantMapping{
		{MerchantPattern: "trader joe's", Category: "Groceries", UseCount: 9},
	}
	c.Classify(context.Background(), model.Item{ID: "t1", Merchant: "Amazon"}, testCatalog(), mappings)

	require.Len(t, backend.prompts, 1)
	prompt := backend.prompts[0]
	assert.Contains(t, prompt, "Groceries")
	assert.Contains(t, prompt, "Food and household staples")
	assert.Contains(t, prompt, "trader joe's")
	assert.Contains(t, prompt, "Amazon")
}

func TestClassifier_AlternativesValidatedAndCapped(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		response: `{"category": "Shopping", "confidence": 0.9, "alternatives": [
			{"category": "Groceries", "confidence": 0.5},
			{"category": "Nonexistent", "confidence": 0.4},
			{"category": "Shopping", "confidence": 0.3},
			{"category": "Dining Out", "confidence": 0.2},
			{"category": "Uncategorized", "confidence": 0.1}
		]}`,
	}
	c := newTestClassifier(t, backend)

	got := c.Classify(context.Background(), model.Item{ID: "t1"}, testCatalog(), nil)

	require.Len(t, got.Alternatives, 3)
	names := []string{got.Alternatives[0].Category, got.Alternatives[1].Category, got.Alternatives[2].Category}
	assert.Equal(t, []string{"Groceries", "Dining Out", "Uncategorized"}, names)
}
