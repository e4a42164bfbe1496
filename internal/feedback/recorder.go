package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

// ErrInvalidCorrection indicates a correction missing required fields.
var ErrInvalidCorrection = errors.New("invalid correction")

// ErrUnknownCategory indicates a correction naming a category that is not
// in the catalog.
var ErrUnknownCategory = errors.New("unknown category")

// Correction is one user correction of a pipeline decision. ItemText is
// the item's searchable text at correction time; it feeds pattern mining
// and embedding recomputation.
type Correction struct {
	ItemID               string
	ItemType             model.ItemType
	ItemText             string
	SuggestedCategory    string
	ActualCategory       string
	SuggestionMethod     model.Method
	SuggestionConfidence float64
}

// Recorder applies user corrections: it logs the feedback event, makes the
// corrected category authoritative, refreshes the item's embedding,
// promotes repeated corrections into rules, and kicks off retraining when
// the adaptive threshold is crossed.
type Recorder struct {
	storage   service.Storage
	embedder  Embedder
	retrainer *Retrainer
	logger    *slog.Logger
}

// NewRecorder creates a recorder over the given collaborators.
func NewRecorder(storage service.Storage, embedder Embedder, retrainer *Retrainer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		storage:   storage,
		embedder:  embedder,
		retrainer: retrainer,
		logger:    logger,
	}
}

// RecordFeedback processes one correction. The corrected category is
// force-written as a user-confirmed record so future lookups of the same
// item short-circuit to it. Retraining, when triggered, runs in the
// background; RecordFeedback does not wait for it.
func (r *Recorder) RecordFeedback(ctx context.Context, correction Correction) error {
	if correction.ItemID == "" || correction.ActualCategory == "" {
		return fmt.Errorf("correction requires an item id and category: %w", ErrInvalidCorrection)
	}

	// A confirmed record must name a real category; corrections are typed
	// by hand, so reject rather than degrade. The catalog's spelling wins.
	categories, err := r.storage.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	cat := model.FindCategory(categories, correction.ActualCategory)
	if cat == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, correction.ActualCategory)
	}
	correction.ActualCategory = cat.Name

	event := &model.FeedbackEvent{
		CreatedAt:            time.Now(),
		ItemID:               correction.ItemID,
		ItemType:             correction.ItemType,
		ItemText:             correction.ItemText,
		SuggestedCategory:    correction.SuggestedCategory,
		ActualCategory:       correction.ActualCategory,
		SuggestionMethod:     correction.SuggestionMethod,
		SuggestionConfidence: correction.SuggestionConfidence,
	}
	if err := r.storage.SaveFeedbackEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to save feedback event: %w", err)
	}

	record := &model.CategorizationRecord{
		CategorizedAt: time.Now(),
		ItemID:        correction.ItemID,
		ItemType:      correction.ItemType,
		Category:      correction.ActualCategory,
		Confidence:    1.0,
		Method:        model.MethodExactMatch,
		Reasoning:     "user correction",
		UserConfirmed: true,
	}
	if err := r.storage.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save confirmed record: %w", err)
	}

	r.refreshEmbedding(ctx, correction)

	if err := r.promoteRepeats(ctx); err != nil {
		r.logger.Warn("Failed to promote repeated corrections", "error", err)
	}

	r.logger.Info("Feedback recorded",
		"item_id", correction.ItemID,
		"suggested", correction.SuggestedCategory,
		"actual", correction.ActualCategory,
		"method", correction.SuggestionMethod)

	r.maybeRetrain(ctx)
	return nil
}

// refreshEmbedding recomputes the corrected item's embedding so the
// similarity stage learns the new category. Best effort.
func (r *Recorder) refreshEmbedding(ctx context.Context, correction Correction) {
	if r.embedder == nil || !r.embedder.Available() {
		return
	}

	text := correction.ItemText
	if text == "" {
		if existing, err := r.storage.GetEmbedding(ctx, correction.ItemID, correction.ItemType); err == nil && existing != nil {
			text = existing.SourceText
		}
	}
	if text == "" {
		return
	}

	vector := r.embedder.Embed(ctx, text)
	if vector == nil {
		return
	}

	if err := r.storage.SaveEmbedding(ctx, &model.Embedding{
		ItemID:     correction.ItemID,
		ItemType:   correction.ItemType,
		SourceText: text,
		Vector:     vector,
		Category:   correction.ActualCategory,
		Confirmed:  true,
		CreatedAt:  time.Now(),
	}); err != nil {
		r.logger.Warn("Failed to save corrected embedding",
			"item_id", correction.ItemID,
			"error", err)
	}
}

// promoteRepeats creates exact rules for patterns corrected repeatedly to
// the same category.
func (r *Recorder) promoteRepeats(ctx context.Context) error {
	patterns, err := r.storage.GetRepeatedCorrections(ctx, autoRuleMinRepeats)
	if err != nil {
		return err
	}
	for _, p := range patterns {
		name := fmt.Sprintf("Learned: %s -> %s", truncate(p.Pattern, 40), p.Category)
		if err := r.storage.CreateAutoRule(ctx, name, p.Pattern, p.Category, model.MatchExact, autoRuleConfidence, model.OriginAuto); err != nil {
			r.logger.Warn("Failed to create auto rule",
				"pattern", p.Pattern,
				"category", p.Category,
				"error", err)
		}
	}
	return nil
}

// maybeRetrain starts a background retraining run when the pending
// feedback count crosses the adaptive threshold.
func (r *Recorder) maybeRetrain(ctx context.Context) {
	if r.retrainer == nil {
		return
	}

	pending, err := r.storage.GetPendingCount(ctx)
	if err != nil {
		r.logger.Warn("Failed to count pending feedback", "error", err)
		return
	}
	total, err := r.storage.CountRecords(ctx)
	if err != nil {
		r.logger.Warn("Failed to count categorized items", "error", err)
		return
	}

	threshold := Threshold(total)
	if pending < threshold {
		return
	}

	r.logger.Info("Feedback threshold crossed, retraining",
		"pending", pending,
		"threshold", threshold)

	background := context.WithoutCancel(ctx)
	go func() {
		if err := r.retrainer.Retrain(background, model.TriggerThreshold); err != nil {
			r.logger.Error("Background retraining failed", "error", err)
		}
	}()
}
