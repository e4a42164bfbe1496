package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

const (
	// maxFeedbackPerRun caps how many unprocessed events one retraining
	// run consumes.
	maxFeedbackPerRun = 1000

	// autoRuleMinRepeats is how many corrections to the same category a
	// pattern needs before it becomes a rule.
	autoRuleMinRepeats = 2

	// autoRuleConfidence is assigned to promoted rules. High enough to
	// short-circuit the rule stage.
	autoRuleConfidence = 0.95
)

// Embedder generates vectors for corrected items. Embed fails soft.
type Embedder interface {
	Available() bool
	Embed(ctx context.Context, text string) []float64
}

// Cache is the similarity stage's embedding cache, cleared after
// retraining so the next lookup sees fresh vectors.
type Cache interface {
	Clear()
}

// Retrainer turns accumulated feedback into rules and refreshed
// embeddings. Runs are single-flight: a retrain requested while one is in
// progress is a no-op.
type Retrainer struct {
	storage  service.Storage
	embedder Embedder
	cache    Cache
	logger   *slog.Logger
	active   atomic.Bool
}

// NewRetrainer creates a retrainer over the given collaborators.
func NewRetrainer(storage service.Storage, embedder Embedder, cache Cache, logger *slog.Logger) *Retrainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrainer{
		storage:  storage,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

// Active reports whether a retraining run is in progress.
func (r *Retrainer) Active() bool {
	return r.active.Load()
}

// Threshold returns the adaptive retraining threshold for the given
// categorized volume.
func (r *Retrainer) Threshold(totalCategorized int) int {
	return Threshold(totalCategorized)
}

// Retrain runs one retraining pass: promote repeated corrections to rules,
// recompute embeddings for corrected items, and record a history entry.
// Events whose embedding update does not succeed stay unprocessed for a
// future run.
func (r *Retrainer) Retrain(ctx context.Context, trigger model.RetrainTrigger) error {
	if !r.active.CompareAndSwap(false, true) {
		r.logger.Debug("Retraining already in progress, skipping", "trigger", trigger)
		return nil
	}
	defer r.active.Store(false)

	start := time.Now()

	events, err := r.storage.GetUnprocessedFeedback(ctx, maxFeedbackPerRun)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed feedback: %w", err)
	}
	if len(events) == 0 {
		r.logger.Debug("No unprocessed feedback, nothing to retrain", "trigger", trigger)
		return nil
	}

	r.logger.Info("Retraining started",
		"trigger", trigger,
		"feedback_count", len(events))

	rulesGenerated, err := r.promoteRepeatedCorrections(ctx)
	if err != nil {
		return err
	}

	processed := make([]int64, 0, len(events))
	embeddingsUpdated := 0
	for _, event := range events {
		updated, ok := r.refreshEmbedding(ctx, event)
		if !ok {
			continue
		}
		if updated {
			embeddingsUpdated++
		}
		processed = append(processed, event.ID)
	}

	if len(processed) > 0 {
		if err := r.storage.MarkProcessed(ctx, processed); err != nil {
			return fmt.Errorf("failed to mark feedback processed: %w", err)
		}
	}

	if r.cache != nil {
		r.cache.Clear()
	}

	entry := &model.TrainingHistoryEntry{
		StartedAt:         start,
		Trigger:           trigger,
		FeedbackCount:     len(events),
		RulesGenerated:    rulesGenerated,
		EmbeddingsUpdated: embeddingsUpdated,
		Duration:          time.Since(start),
	}
	if len(processed) < len(events) {
		entry.Notes = fmt.Sprintf("%d events left unprocessed", len(events)-len(processed))
	}
	if err := r.storage.SaveTrainingHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to save training history: %w", err)
	}

	r.logger.Info("Retraining finished",
		"trigger", trigger,
		"rules_generated", rulesGenerated,
		"embeddings_updated", embeddingsUpdated,
		"processed", len(processed),
		"duration", entry.Duration)

	return nil
}

// promoteRepeatedCorrections creates an exact rule for every pattern
// corrected to the same category at least autoRuleMinRepeats times.
// Creation is idempotent at the store level.
func (r *Retrainer) promoteRepeatedCorrections(ctx context.Context) (int, error) {
	patterns, err := r.storage.GetRepeatedCorrections(ctx, autoRuleMinRepeats)
	if err != nil {
		return 0, fmt.Errorf("failed to load repeated corrections: %w", err)
	}

	created := 0
	for _, p := range patterns {
		name := fmt.Sprintf("Learned: %s -> %s", truncate(p.Pattern, 40), p.Category)
		if err := r.storage.CreateAutoRule(ctx, name, p.Pattern, p.Category, model.MatchExact, autoRuleConfidence, model.OriginAuto); err != nil {
			r.logger.Warn("Failed to create auto rule",
				"pattern", p.Pattern,
				"category", p.Category,
				"error", err)
			continue
		}
		created++
	}
	return created, nil
}

// refreshEmbedding recomputes a corrected item's embedding. The second
// return reports whether the event may be marked processed: true when the
// write succeeded or there is nothing to embed, false on a transient
// failure that a later run should retry.
func (r *Retrainer) refreshEmbedding(ctx context.Context, event model.FeedbackEvent) (updated, ok bool) {
	text := event.ItemText
	if text == "" {
		if existing, err := r.storage.GetEmbedding(ctx, event.ItemID, event.ItemType); err == nil && existing != nil {
			text = existing.SourceText
		}
	}
	if text == "" || r.embedder == nil || !r.embedder.Available() {
		return false, true
	}

	vector := r.embedder.Embed(ctx, text)
	if vector == nil {
		return false, false
	}

	if err := r.storage.SaveEmbedding(ctx, &model.Embedding{
		ItemID:     event.ItemID,
		ItemType:   event.ItemType,
		SourceText: text,
		Vector:     vector,
		Category:   event.ActualCategory,
		Confirmed:  true,
		CreatedAt:  time.Now(),
	}); err != nil {
		r.logger.Warn("Failed to save embedding during retraining",
			"item_id", event.ItemID,
			"error", err)
		return false, false
	}
	return true, true
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
