package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ChecksOnStart(t *testing.T) {
	store := testutil.NewMemoryStorage()
	embedder := &fakeEmbedder{available: true, vector: []float64{1}}
	retrainer := NewRetrainer(store, embedder, &fakeCache{}, nil)

	// Enough pending feedback to cross the threshold immediately.
	for i := 0; i < 5; i++ {
		seedFeedback(t, store, model.FeedbackEvent{
			ItemID:         string(rune('a' + i)),
			ItemType:       model.ItemTypeTransaction,
			ItemText:       "some merchant",
			ActualCategory: "Groceries",
		})
	}

	scheduler := NewScheduler(store, retrainer, nil, time.Hour, 0)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		history, err := store.GetTrainingHistory(context.Background(), 10)
		return err == nil && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_BelowThresholdDoesNothing(t *testing.T) {
	store := testutil.NewMemoryStorage()
	retrainer := NewRetrainer(store, &fakeEmbedder{available: true, vector: []float64{1}}, &fakeCache{}, nil)

	seedFeedback(t, store, model.FeedbackEvent{
		ItemID:         "a",
		ItemType:       model.ItemTypeTransaction,
		ItemText:       "some merchant",
		ActualCategory: "Groceries",
	})

	scheduler := NewScheduler(store, retrainer, nil, time.Hour, 0)
	scheduler.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	history, err := store.GetTrainingHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScheduler_StopIsClean(t *testing.T) {
	store := testutil.NewMemoryStorage()
	retrainer := NewRetrainer(store, &fakeEmbedder{}, &fakeCache{}, nil)

	scheduler := NewScheduler(store, retrainer, nil, 10*time.Millisecond, 0)
	scheduler.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
	// A repeated Stop is a no-op, not a panic.
	scheduler.Stop()
}

func TestScheduler_ForcedPeriodTriggersRetrain(t *testing.T) {
	store := testutil.NewMemoryStorage()
	retrainer := NewRetrainer(store, &fakeEmbedder{available: true, vector: []float64{1}}, &fakeCache{}, nil)

	// One pending event, below the threshold, so only the forced tick
	// can start a run.
	seedFeedback(t, store, model.FeedbackEvent{
		ItemID:         "a",
		ItemType:       model.ItemTypeTransaction,
		ItemText:       "some merchant",
		ActualCategory: "Groceries",
	})

	scheduler := NewScheduler(store, retrainer, nil, time.Hour, 20*time.Millisecond)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		history, err := store.GetTrainingHistory(context.Background(), 10)
		return err == nil && len(history) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	history, err := store.GetTrainingHistory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerScheduled, history[0].Trigger)
}
