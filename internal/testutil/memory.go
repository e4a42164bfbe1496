// Package testutil provides shared fixtures for pipeline and feedback
// tests: an in-memory Storage and a database helper around the sqlite
// implementation.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
)

// MemoryStorage is a map-backed service.Storage for tests. Safe for
// concurrent use.
type MemoryStorage struct {
	mu sync.Mutex

	Categories    []model.Category
	Rules         []model.Rule
	Mappings      map[string]*model.MerchantMapping
	ExternalRules map[string]string
	Records       map[string]*model.CategorizationRecord
	Embeddings    map[string]*model.Embedding
	Feedback      []*model.FeedbackEvent
	History       []model.TrainingHistoryEntry

	nextFeedbackID int64
	nextRuleID     int
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Mappings:      make(map[string]*model.MerchantMapping),
		ExternalRules: make(map[string]string),
		Records:       make(map[string]*model.CategorizationRecord),
		Embeddings:    make(map[string]*model.Embedding),
	}
}

func recordKey(itemID string, itemType model.ItemType) string {
	return itemID + "|" + string(itemType)
}

// ListCategories returns the configured catalog.
func (s *MemoryStorage) ListCategories(_ context.Context) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Category(nil), s.Categories...), nil
}

// GetCategoryRules returns the rule table, optionally filtered to enabled
// rules.
func (s *MemoryStorage) GetCategoryRules(_ context.Context, enabledOnly bool) ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Rule
	for _, r := range s.Rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// UpsertMerchantMapping inserts or updates a merchant→category mapping.
func (s *MemoryStorage) UpsertMerchantMapping(_ context.Context, pattern, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(pattern)
	if m, ok := s.Mappings[key]; ok {
		m.Category = category
		m.UseCount++
		m.LastUpdated = time.Now()
		return nil
	}
	s.Mappings[key] = &model.MerchantMapping{
		MerchantPattern: key,
		Category:        category,
		UseCount:        1,
		LastUpdated:     time.Now(),
	}
	return nil
}

// GetMerchantMappings returns all learned mappings.
func (s *MemoryStorage) GetMerchantMappings(_ context.Context) ([]model.MerchantMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MerchantMapping, 0, len(s.Mappings))
	for _, m := range s.Mappings {
		out = append(out, *m)
	}
	return out, nil
}

// GetExternalIDRule resolves a catalog identifier to a category.
func (s *MemoryStorage) GetExternalIDRule(_ context.Context, externalID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	category, ok := s.ExternalRules[externalID]
	if !ok {
		return "", fmt.Errorf("identifier rule %s: %w", externalID, common.ErrNotFound)
	}
	return category, nil
}

// GetRecord returns the stored decision for an item.
func (s *MemoryStorage) GetRecord(_ context.Context, itemID string, itemType model.ItemType) (*model.CategorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.Records[recordKey(itemID, itemType)]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", itemID, common.ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

// SaveRecord overwrites the stored decision for an item.
func (s *MemoryStorage) SaveRecord(_ context.Context, record *model.CategorizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.Records[recordKey(record.ItemID, record.ItemType)] = &clone
	return nil
}

// CountRecords returns the number of stored decisions.
func (s *MemoryStorage) CountRecords(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Records), nil
}

// GetConfirmedEmbeddings returns confirmed embeddings of the given type.
func (s *MemoryStorage) GetConfirmedEmbeddings(_ context.Context, itemType model.ItemType, limit int) ([]model.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Embedding
	for _, e := range s.Embeddings {
		if e.Confirmed && e.ItemType == itemType {
			out = append(out, *e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// GetEmbedding returns the stored embedding for an item.
func (s *MemoryStorage) GetEmbedding(_ context.Context, itemID string, itemType model.ItemType) (*model.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Embeddings[recordKey(itemID, itemType)]
	if !ok {
		return nil, fmt.Errorf("embedding %s: %w", itemID, common.ErrNotFound)
	}
	clone := *e
	return &clone, nil
}

// SaveEmbedding inserts or overwrites an item's embedding.
func (s *MemoryStorage) SaveEmbedding(_ context.Context, embedding *model.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *embedding
	s.Embeddings[recordKey(embedding.ItemID, embedding.ItemType)] = &clone
	return nil
}

// SaveFeedbackEvent appends a correction to the feedback log.
func (s *MemoryStorage) SaveFeedbackEvent(_ context.Context, event *model.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFeedbackID++
	clone := *event
	clone.ID = s.nextFeedbackID
	event.ID = clone.ID
	s.Feedback = append(s.Feedback, &clone)
	return nil
}

// GetUnprocessedFeedback returns up to limit unprocessed events.
func (s *MemoryStorage) GetUnprocessedFeedback(_ context.Context, limit int) ([]model.FeedbackEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FeedbackEvent
	for _, e := range s.Feedback {
		if e.Processed {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkProcessed flags the given events processed.
func (s *MemoryStorage) MarkProcessed(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flagged := make(map[int64]bool, len(ids))
	for _, id := range ids {
		flagged[id] = true
	}
	for _, e := range s.Feedback {
		if flagged[e.ID] {
			e.Processed = true
		}
	}
	return nil
}

// GetPendingCount returns the number of unprocessed events.
func (s *MemoryStorage) GetPendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.Feedback {
		if !e.Processed {
			count++
		}
	}
	return count, nil
}

// GetRepeatedCorrections aggregates unprocessed corrections by normalized
// item text and target category.
func (s *MemoryStorage) GetRepeatedCorrections(_ context.Context, minCount int) ([]model.CorrectionPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type groupKey struct {
		pattern  string
		itemType model.ItemType
		category string
	}
	counts := make(map[groupKey]int)
	for _, e := range s.Feedback {
		text := strings.ToLower(strings.TrimSpace(e.ItemText))
		if text == "" {
			continue
		}
		counts[groupKey{pattern: text, itemType: e.ItemType, category: e.ActualCategory}]++
	}

	var out []model.CorrectionPattern
	for key, count := range counts {
		if count >= minCount {
			out = append(out, model.CorrectionPattern{
				Pattern:  key.pattern,
				ItemType: key.itemType,
				Category: key.category,
				Count:    count,
			})
		}
	}
	return out, nil
}

// CreateAutoRule creates a rule unless an equivalent one already exists.
func (s *MemoryStorage) CreateAutoRule(_ context.Context, name, pattern, category string, matchKind model.MatchKind, confidence float64, origin model.RuleOrigin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Rules {
		if r.Pattern == pattern && r.Category == category && r.MatchKind == matchKind {
			return nil
		}
	}
	s.nextRuleID++
	s.Rules = append(s.Rules, model.Rule{
		ID:         s.nextRuleID,
		Name:       name,
		Pattern:    pattern,
		MatchKind:  matchKind,
		Category:   category,
		Origin:     origin,
		Confidence: confidence,
		Enabled:    true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	return nil
}

// SaveTrainingHistory appends a retraining audit entry.
func (s *MemoryStorage) SaveTrainingHistory(_ context.Context, entry *model.TrainingHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	clone.ID = int64(len(s.History) + 1)
	s.History = append(s.History, clone)
	return nil
}

// GetTrainingHistory returns the most recent entries.
func (s *MemoryStorage) GetTrainingHistory(_ context.Context, limit int) ([]model.TrainingHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.TrainingHistoryEntry(nil), s.History...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Migrate is a no-op for the in-memory storage.
func (s *MemoryStorage) Migrate(_ context.Context) error { return nil }

// Close is a no-op for the in-memory storage.
func (s *MemoryStorage) Close() error { return nil }
