package main

import (
	"context"
	"testing"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuleStore() *testutil.MemoryStorage {
	store := testutil.NewMemoryStorage()
	store.Categories = []model.Category{
		{ID: 1, Name: "Groceries", IsActive: true},
		{ID: 2, Name: "Dining Out", IsActive: true},
	}
	return store
}

func TestAddRule_ConvertsPercentConfidence(t *testing.T) {
	store := newRuleStore()
	ctx := context.Background()

	canonical, err := addRule(ctx, store, "safeway", "groceries", model.MatchContains, 85)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", canonical)

	rules, err := store.GetCategoryRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "safeway", rules[0].Pattern)
	assert.Equal(t, "Groceries", rules[0].Category)
	assert.Equal(t, model.MatchContains, rules[0].MatchKind)
	assert.Equal(t, model.OriginUser, rules[0].Origin)
	assert.InDelta(t, 0.85, rules[0].Confidence, 1e-9)
}

func TestAddRule_RejectsUnknownCategory(t *testing.T) {
	store := newRuleStore()

	_, err := addRule(context.Background(), store, "safeway", "Grocceries", model.MatchContains, 85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")

	rules, err := store.GetCategoryRules(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestParseMatchKind(t *testing.T) {
	tests := []struct {
		input   string
		want    model.MatchKind
		wantErr bool
	}{
		{input: "exact", want: model.MatchExact},
		{input: "contains", want: model.MatchContains},
		{input: "startswith", want: model.MatchStartsWith},
		{input: "endswith", want: model.MatchEndsWith},
		{input: "regex", want: model.MatchRegex},
		{input: "fuzzy", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseMatchKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
