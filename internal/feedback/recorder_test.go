package feedback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(store *testutil.MemoryStorage, embedder *fakeEmbedder) *Recorder {
	retrainer := NewRetrainer(store, embedder, &fakeCache{}, nil)
	return NewRecorder(store, embedder, retrainer, nil)
}

// newFeedbackStore returns storage with a catalog for corrections to
// resolve against.
func newFeedbackStore() *testutil.MemoryStorage {
	store := testutil.NewMemoryStorage()
	store.Categories = []model.Category{
		{Name: "Groceries", IsActive: true},
		{Name: "Dining Out", IsActive: true},
		{Name: "Shopping", IsActive: true},
		{Name: "Uncategorized", IsActive: true},
	}
	return store
}

func TestRecordFeedback_ConfirmsCorrection(t *testing.T) {
	store := newFeedbackStore()
	embedder := &fakeEmbedder{available: true, vector: []float64{0.3, 0.7}}
	recorder := newRecorder(store, embedder)

	err := recorder.RecordFeedback(context.Background(), Correction{
		ItemID:               "txn-1",
		ItemType:             model.ItemTypeTransaction,
		ItemText:             "safeway 123 main st",
		SuggestedCategory:    "Dining Out",
		ActualCategory:       "Groceries",
		SuggestionMethod:     model.MethodGenerative,
		SuggestionConfidence: 0.6,
	})
	require.NoError(t, err)

	record, err := store.GetRecord(context.Background(), "txn-1", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", record.Category)
	assert.True(t, record.UserConfirmed)
	assert.InDelta(t, 1.0, record.Confidence, 1e-9)

	embedding, err := store.GetEmbedding(context.Background(), "txn-1", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.True(t, embedding.Confirmed)
	assert.Equal(t, "Groceries", embedding.Category)

	pending, err := store.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestRecordFeedback_RequiresIDAndCategory(t *testing.T) {
	recorder := newRecorder(newFeedbackStore(), &fakeEmbedder{})

	err := recorder.RecordFeedback(context.Background(), Correction{ItemID: "txn-1"})
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	err = recorder.RecordFeedback(context.Background(), Correction{ActualCategory: "Groceries"})
	assert.ErrorIs(t, err, ErrInvalidCorrection)
}

func TestRecordFeedback_RejectsUnknownCategory(t *testing.T) {
	store := newFeedbackStore()
	recorder := newRecorder(store, &fakeEmbedder{available: true, vector: []float64{1}})

	err := recorder.RecordFeedback(context.Background(), Correction{
		ItemID:         "txn-1",
		ItemType:       model.ItemTypeTransaction,
		ItemText:       "safeway 123 main st",
		ActualCategory: "Grocceries",
	})
	require.ErrorIs(t, err, ErrUnknownCategory)

	// Nothing is written for a rejected correction.
	_, err = store.GetRecord(context.Background(), "txn-1", model.ItemTypeTransaction)
	assert.Error(t, err)
	pending, err := store.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRecordFeedback_NormalizesCategoryCase(t *testing.T) {
	store := newFeedbackStore()
	recorder := newRecorder(store, &fakeEmbedder{available: true, vector: []float64{1}})

	require.NoError(t, recorder.RecordFeedback(context.Background(), Correction{
		ItemID:         "txn-1",
		ItemType:       model.ItemTypeTransaction,
		ItemText:       "safeway",
		ActualCategory: "groceries",
	}))

	record, err := store.GetRecord(context.Background(), "txn-1", model.ItemTypeTransaction)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", record.Category)
}

func TestRecordFeedback_Idempotent(t *testing.T) {
	store := newFeedbackStore()
	embedder := &fakeEmbedder{available: true, vector: []float64{1}}
	recorder := newRecorder(store, embedder)

	correction := Correction{
		ItemID:            "txn-1",
		ItemType:          model.ItemTypeTransaction,
		ItemText:          "blue bottle coffee",
		SuggestedCategory: "Shopping",
		ActualCategory:    "Dining Out",
		SuggestionMethod:  model.MethodRule,
	}
	require.NoError(t, recorder.RecordFeedback(context.Background(), correction))
	require.NoError(t, recorder.RecordFeedback(context.Background(), correction))

	// One record, overwritten rather than duplicated.
	count, err := store.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The repeated pattern promotes exactly one rule.
	rules, err := store.GetCategoryRules(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "blue bottle coffee", rules[0].Pattern)
	assert.Equal(t, "Dining Out", rules[0].Category)
}

func TestRecordFeedback_AutoRuleAcrossItems(t *testing.T) {
	store := newFeedbackStore()
	embedder := &fakeEmbedder{available: true, vector: []float64{1}}
	recorder := newRecorder(store, embedder)

	// Two different item ids sharing merchant text, both corrected to the
	// same category.
	for _, id := range []string{"A1", "A2"} {
		require.NoError(t, recorder.RecordFeedback(context.Background(), Correction{
			ItemID:         id,
			ItemType:       model.ItemTypeTransaction,
			ItemText:       "corner market",
			ActualCategory: "Groceries",
		}))
	}

	rules, err := store.GetCategoryRules(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "corner market", rules[0].Pattern)
	assert.Equal(t, model.MatchExact, rules[0].MatchKind)
	assert.Equal(t, "Groceries", rules[0].Category)
	assert.Equal(t, model.OriginAuto, rules[0].Origin)
}

func TestRecordFeedback_ThresholdTriggersRetrain(t *testing.T) {
	store := newFeedbackStore()
	embedder := &fakeEmbedder{available: true, vector: []float64{1}}
	recorder := newRecorder(store, embedder)

	// Below 100 categorized items the threshold is 5 corrections.
	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.RecordFeedback(context.Background(), Correction{
			ItemID:         fmt.Sprintf("txn-%d", i),
			ItemType:       model.ItemTypeTransaction,
			ItemText:       fmt.Sprintf("merchant %d", i),
			ActualCategory: "Groceries",
		}))
	}

	assert.Eventually(t, func() bool {
		history, err := store.GetTrainingHistory(context.Background(), 10)
		return err == nil && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond, "crossing the threshold should retrain in the background")

	assert.Eventually(t, func() bool {
		pending, err := store.GetPendingCount(context.Background())
		return err == nil && pending == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecordFeedback_BelowThresholdDoesNotRetrain(t *testing.T) {
	store := newFeedbackStore()
	embedder := &fakeEmbedder{available: true, vector: []float64{1}}
	recorder := newRecorder(store, embedder)

	require.NoError(t, recorder.RecordFeedback(context.Background(), Correction{
		ItemID:         "txn-1",
		ItemType:       model.ItemTypeTransaction,
		ItemText:       "safeway",
		ActualCategory: "Groceries",
	}))

	time.Sleep(50 * time.Millisecond)
	history, err := store.GetTrainingHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
