package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jstall/pennywise/internal/llm"
	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/rule"
	"github.com/jstall/pennywise/internal/service"
	"github.com/jstall/pennywise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vectors   map[string][]float64
	available bool
	calls     int
}

func (s *stubEmbedder) Available() bool { return s.available }

func (s *stubEmbedder) Embed(_ context.Context, text string) []float64 {
	s.calls++
	return s.vectors[text]
}

type stubEmbeddings struct {
	embeddings []model.Embedding
	calls      int
}

func (s *stubEmbeddings) Confirmed(_ context.Context, _ model.ItemType) ([]model.Embedding, error) {
	s.calls++
	return s.embeddings, nil
}

type stubClassifier struct {
	result llm.Result
	calls  int
}

func (s *stubClassifier) Classify(_ context.Context, _ model.Item, _ []model.Category, _ []model.MerchantMapping) llm.Result {
	s.calls++
	return s.result
}

type stubBackend struct {
	available bool
}

func (s *stubBackend) Generate(_ context.Context, _ string, _ service.GenerateOptions) (string, error) {
	return "", nil
}
func (s *stubBackend) Embed(_ context.Context, _ string) ([]float64, error) { return nil, nil }
func (s *stubBackend) IsAvailable(_ context.Context) bool                   { return s.available }
func (s *stubBackend) Pull(_ context.Context, _ string) error               { return nil }

type stubRetrainState struct {
	active    bool
	threshold int
}

func (s *stubRetrainState) Active() bool        { return s.active }
func (s *stubRetrainState) Threshold(_ int) int { return s.threshold }

func catalog() []model.Category {
	return []model.Category{
		{Name: "Groceries"},
		{Name: "Dining Out"},
		{Name: "Shopping"},
		{Name: "Books"},
		{Name: "Uncategorized"},
	}
}

type fixture struct {
	storage    *testutil.MemoryStorage
	embedder   *stubEmbedder
	embeddings *stubEmbeddings
	classifier *stubClassifier
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage:    testutil.NewMemoryStorage(),
		embedder:   &stubEmbedder{vectors: map[string][]float64{}},
		embeddings: &stubEmbeddings{},
		classifier: &stubClassifier{result: llm.Result{Category: "Uncategorized", Confidence: llm.FallbackConfidence, Fallback: true}},
	}
	f.storage.Categories = catalog()
	f.pipeline = NewWithConfig(f.storage, rule.NewEngine(), f.embedder, f.embeddings, f.classifier, &stubBackend{available: true}, nil, Config{ChunkSize: 10, ChunkPause: 0})
	return f
}

func TestCategorize_ExactMatchShortCircuit(t *testing.T) {
	f := newFixture(t)
	f.embedder.available = true
	require.NoError(t, f.storage.SaveRecord(context.Background(), &model.CategorizationRecord{
		ItemID:        "txn-1",
		ItemType:      model.ItemTypeTransaction,
		Category:      "Groceries",
		Confidence:    0.82,
		Method:        model.MethodGenerative,
		UserConfirmed: true,
	}))
	require.NoError(t, f.storage.SaveEmbedding(context.Background(), &model.Embedding{
		ItemID: "txn-1", ItemType: model.ItemTypeTransaction, Vector: []float64{1}, Confirmed: true,
	}))

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-1", Type: model.ItemTypeTransaction, Merchant: "Safeway"})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", record.Category)
	assert.Equal(t, model.MethodExactMatch, record.Method)
	assert.InDelta(t, 1.0, record.Confidence, 1e-9)
	assert.Zero(t, f.classifier.calls, "confirmed records must not reach the generative stage")
	assert.Zero(t, f.embedder.calls, "confirmed records with a stored embedding need no network calls")
}

func TestCategorize_ExactMatchBackfillsEmbedding(t *testing.T) {
	f := newFixture(t)
	f.embedder.available = true
	item := model.Item{ID: "txn-1", Type: model.ItemTypeTransaction, Merchant: "Safeway"}
	f.embedder.vectors[item.SearchText()] = []float64{0.5, 0.5}
	require.NoError(t, f.storage.SaveRecord(context.Background(), &model.CategorizationRecord{
		ItemID:        "txn-1",
		ItemType:      model.ItemTypeTransaction,
		Category:      "Groceries",
		UserConfirmed: true,
	}))

	_, err := f.pipeline.Categorize(context.Background(), item)
	require.NoError(t, err)

	stored, err := f.storage.GetEmbedding(context.Background(), "txn-1", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)
	assert.Equal(t, "Groceries", stored.Category)
	assert.Equal(t, []float64{0.5, 0.5}, stored.Vector)
}

func TestCategorize_RuleClearsGate(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Whole Foods", Pattern: "whole foods", MatchKind: model.MatchContains, Category: "Groceries", Confidence: 0.92, Enabled: true},
	}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-2", Type: model.ItemTypeTransaction, Merchant: "Whole Foods Market"})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", record.Category)
	assert.Equal(t, model.MethodRule, record.Method)
	assert.InDelta(t, 0.92, record.Confidence, 1e-9)
	assert.Zero(t, f.classifier.calls)

	// Persisted and confident enough to teach the mapping table.
	stored, err := f.storage.GetRecord(context.Background(), "txn-2", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", stored.Category)
	assert.Contains(t, f.storage.Mappings, "whole foods market")
}

func TestCategorize_DefaultAmazonRule(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = rule.DefaultRules()

	record, err := f.pipeline.Categorize(context.Background(), model.Item{
		ID:   "ord-1",
		Type: model.ItemTypeOrder,
		Name: "Amazon order, electronics category",
	})
	require.NoError(t, err)

	assert.Equal(t, "Shopping", record.Category)
	assert.Equal(t, model.MethodRule, record.Method)
	assert.GreaterOrEqual(t, record.Confidence, 0.90)
}

func TestCategorize_ExternalIDRule(t *testing.T) {
	f := newFixture(t)
	f.storage.ExternalRules["B00ABC123"] = "Books"
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Generic", Pattern: "paperback", MatchKind: model.MatchContains, Category: "Shopping", Confidence: 0.92, Enabled: true},
	}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{
		ID:         "ord-2",
		Type:       model.ItemTypeOrder,
		Name:       "Some Paperback",
		ExternalID: "B00ABC123",
	})
	require.NoError(t, err)

	assert.Equal(t, "Books", record.Category)
	assert.InDelta(t, externalIDConfidence, record.Confidence, 1e-9)
	assert.Equal(t, model.MethodRule, record.Method)
}

func TestCategorize_MerchantMappingFastPath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.storage.UpsertMerchantMapping(context.Background(), "trader joe's", "Groceries"))

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-3", Type: model.ItemTypeTransaction, Merchant: "Trader Joe's"})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", record.Category)
	assert.InDelta(t, mappingConfidence, record.Confidence, 1e-9)
	assert.Equal(t, model.MethodRule, record.Method)
	assert.Zero(t, f.classifier.calls)
}

func TestCategorize_SimilarityVote(t *testing.T) {
	f := newFixture(t)
	f.embedder.available = true
	item := model.Item{ID: "txn-4", Type: model.ItemTypeTransaction, Merchant: "New Seasons"}
	f.embedder.vectors[item.SearchText()] = []float64{1, 0}
	f.embeddings.embeddings = []model.Embedding{
		{ItemID: "g1", Category: "Groceries", Confirmed: true, Vector: []float64{1, 0}},
		{ItemID: "g2", Category: "Groceries", Confirmed: true, Vector: []float64{1, 0.2}},
		{ItemID: "d1", Category: "Dining Out", Confirmed: true, Vector: []float64{0.85, 0.527}},
	}

	record, err := f.pipeline.Categorize(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "Groceries", record.Category)
	assert.Equal(t, model.MethodSimilarity, record.Method)
	assert.InDelta(t, similarityConfidenceCap, record.Confidence, 1e-9)
	require.Len(t, record.Alternatives, 1)
	assert.Equal(t, "Dining Out", record.Alternatives[0].Category)
	assert.Less(t, record.Alternatives[0].Confidence, 0.5)
	assert.Zero(t, f.classifier.calls)
}

func TestCategorize_EmbedderUnavailableSkipsSimilarity(t *testing.T) {
	f := newFixture(t)
	f.embedder.available = false
	f.embeddings.embeddings = []model.Embedding{
		{ItemID: "g1", Category: "Groceries", Confirmed: true, Vector: []float64{1, 0}},
	}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-5", Type: model.ItemTypeTransaction, Merchant: "Mystery"})
	require.NoError(t, err)

	assert.Zero(t, f.embeddings.calls, "similarity stage must be skipped entirely")
	assert.Equal(t, 1, f.classifier.calls)
	assert.Equal(t, model.MethodFallback, record.Method)
}

func TestCategorize_FallbackWhenNothingMatches(t *testing.T) {
	f := newFixture(t)

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-6", Type: model.ItemTypeTransaction, Merchant: "Zzyzx Holdings"})
	require.NoError(t, err)

	assert.Equal(t, "Uncategorized", record.Category)
	assert.Equal(t, model.MethodFallback, record.Method)
	assert.InDelta(t, llm.FallbackConfidence, record.Confidence, 1e-9)
	assert.NotContains(t, f.storage.Mappings, "zzyzx holdings", "low-confidence results must not teach the mapping table")
}

func TestCategorize_SubGateRuleBeatsWeakGenerative(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Amazon purchases", Pattern: "amazon", MatchKind: model.MatchContains, Category: "Shopping", Enabled: true},
	}
	f.classifier.result = llm.Result{Category: "Uncategorized", Confidence: llm.FallbackConfidence, Fallback: true}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-7", Type: model.ItemTypeTransaction, Merchant: "Amazon"})
	require.NoError(t, err)

	// Default-confidence (0.90) matches sit at the gate rather than over
	// it, so the pipeline continues, but the carried candidate still beats
	// the fallback.
	assert.Equal(t, "Shopping", record.Category)
	assert.Equal(t, model.MethodRule, record.Method)
	assert.InDelta(t, model.DefaultRuleConfidence, record.Confidence, 1e-9)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestCategorize_StrongGenerativeBeatsSubGateRule(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Amazon purchases", Pattern: "amazon", MatchKind: model.MatchContains, Category: "Shopping", Enabled: true},
	}
	f.classifier.result = llm.Result{Category: "Books", Confidence: 0.95, Reasoning: "book order"}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-8", Type: model.ItemTypeTransaction, Merchant: "Amazon", Name: "kindle book"})
	require.NoError(t, err)

	assert.Equal(t, "Books", record.Category)
	assert.Equal(t, model.MethodGenerative, record.Method)
}

func TestCategorize_RuleWithUnknownCategorySkipped(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Ghost", Pattern: "amazon", MatchKind: model.MatchContains, Category: "Deleted Category", Confidence: 0.95, Enabled: true},
	}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-9", Type: model.ItemTypeTransaction, Merchant: "Amazon"})
	require.NoError(t, err)

	assert.Equal(t, model.MethodFallback, record.Method)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestCategorize_NoCategories(t *testing.T) {
	f := newFixture(t)
	f.storage.Categories = nil

	_, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-10", Type: model.ItemTypeTransaction})
	assert.Error(t, err)
}

func TestCategorize_OverwritesUnconfirmedRecord(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.storage.SaveRecord(context.Background(), &model.CategorizationRecord{
		ItemID:   "txn-11",
		ItemType: model.ItemTypeTransaction,
		Category: "Dining Out",
		Method:   model.MethodGenerative,
	}))
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Safeway", Pattern: "safeway", MatchKind: model.MatchContains, Category: "Groceries", Confidence: 0.92, Enabled: true},
	}

	record, err := f.pipeline.Categorize(context.Background(), model.Item{ID: "txn-11", Type: model.ItemTypeTransaction, Merchant: "Safeway"})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", record.Category)

	stored, err := f.storage.GetRecord(context.Background(), "txn-11", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", stored.Category)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.embedder.available = true
	f.pipeline.SetRetrainState(&stubRetrainState{active: true, threshold: 5})
	require.NoError(t, f.storage.SaveFeedbackEvent(context.Background(), &model.FeedbackEvent{ItemID: "a", ItemType: model.ItemTypeTransaction, ItemText: "a"}))
	require.NoError(t, f.storage.SaveRecord(context.Background(), &model.CategorizationRecord{ItemID: "a", ItemType: model.ItemTypeTransaction, Category: "Groceries", CategorizedAt: time.Now()}))

	status, err := f.pipeline.Status(context.Background())
	require.NoError(t, err)

	assert.True(t, status.BackendAvailable)
	assert.True(t, status.EmbeddingsAvailable)
	assert.Equal(t, 1, status.PendingFeedback)
	assert.Equal(t, 1, status.TotalCategorized)
	assert.Equal(t, 5, status.RetrainingThreshold)
	assert.True(t, status.RetrainingActive)
}
