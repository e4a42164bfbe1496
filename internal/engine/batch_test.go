package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/rule"
	"github.com/jstall/pennywise/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCategorize_ChunksAndProgress(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Coffee", Pattern: "coffee", MatchKind: model.MatchContains, Category: "Dining Out", Confidence: 0.92, Enabled: true},
	}

	items := make([]model.Item, 25)
	for i := range items {
		items[i] = model.Item{
			ID:       fmt.Sprintf("txn-%d", i),
			Type:     model.ItemTypeTransaction,
			Merchant: fmt.Sprintf("Coffee Shop %d", i),
		}
	}

	var updates []service.BatchProgress
	records, err := f.pipeline.BatchCategorize(context.Background(), items, func(p service.BatchProgress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)

	require.Len(t, records, 25)
	for i, record := range records {
		assert.Equal(t, items[i].ID, record.ItemID, "records must come back in input order")
		assert.Equal(t, "Dining Out", record.Category)
	}

	require.Len(t, updates, 3)
	assert.Equal(t, 10, updates[0].Processed)
	assert.Equal(t, 25, updates[0].Total)
	assert.InDelta(t, 40, updates[0].Percentage, 1e-9)
	assert.Equal(t, 20, updates[1].Processed)
	assert.InDelta(t, 80, updates[1].Percentage, 1e-9)
	assert.Equal(t, 25, updates[2].Processed)
	assert.InDelta(t, 100, updates[2].Percentage, 1e-9)

	count, err := f.storage.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, count)
}

func TestBatchCategorize_Empty(t *testing.T) {
	f := newFixture(t)
	records, err := f.pipeline.BatchCategorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// failingStorage makes lookups for one item fail to exercise best-effort
// batch semantics.
type failingStorage struct {
	service.Storage
	failID string
}

func (f *failingStorage) GetRecord(ctx context.Context, itemID string, itemType model.ItemType) (*model.CategorizationRecord, error) {
	if itemID == f.failID {
		return nil, errors.New("disk on fire")
	}
	return f.Storage.GetRecord(ctx, itemID, itemType)
}

func TestBatchCategorize_OneFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.storage.Rules = []model.Rule{
		{ID: 1, Name: "Coffee", Pattern: "coffee", MatchKind: model.MatchContains, Category: "Dining Out", Confidence: 0.92, Enabled: true},
	}
	wrapped := &failingStorage{Storage: f.storage, failID: "txn-1"}
	pipeline := NewWithConfig(wrapped, rule.NewEngine(), f.embedder, f.embeddings, f.classifier, &stubBackend{}, nil, Config{ChunkSize: 10, ChunkPause: 0})

	items := []model.Item{
		{ID: "txn-0", Type: model.ItemTypeTransaction, Merchant: "Coffee A"},
		{ID: "txn-1", Type: model.ItemTypeTransaction, Merchant: "Coffee B"},
		{ID: "txn-2", Type: model.ItemTypeTransaction, Merchant: "Coffee C"},
	}

	records, err := pipeline.BatchCategorize(context.Background(), items, nil)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "txn-0", records[0].ItemID)
	assert.Equal(t, "txn-2", records[1].ItemID)
}

func TestBatchCategorize_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.BatchCategorize(ctx, []model.Item{{ID: "txn-0", Type: model.ItemTypeTransaction}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
