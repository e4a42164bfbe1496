// Package engine implements the categorization pipeline: a four-stage
// waterfall from exact match through rules and semantic similarity down to
// the generative fallback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
	"github.com/jstall/pennywise/internal/similarity"
)

// Stage gates and confidence constants.
const (
	// ruleGate is the confidence a rule match needs to short-circuit the
	// remaining stages. A match at or below the gate is carried forward as
	// a candidate instead of being discarded.
	ruleGate = 0.90

	// externalIDConfidence applies to identifier-keyed catalog rules.
	externalIDConfidence = 0.95

	// mappingConfidence applies to learned merchant mapping hits.
	mappingConfidence = 0.95

	// similarityGate is the confidence a semantic result needs to
	// short-circuit the generative stage.
	similarityGate = 0.85

	// bestSimilarityFloor is the minimum winning similarity for the
	// semantic stage to produce a result at all.
	bestSimilarityFloor = 0.85

	// candidateSimilarityFloor admits runners-up into the weighted vote.
	candidateSimilarityFloor = 0.80

	// maxVoteCandidates bounds how many neighbors participate in the vote.
	maxVoteCandidates = 5

	// similarityConfidenceCap bounds semantic confidence below rule and
	// exact-match confidence.
	similarityConfidenceCap = 0.92

	// alternativeConfidenceCap bounds reported alternative confidences.
	alternativeConfidenceCap = 0.95

	// mappingFloor is the minimum terminal confidence for a decision to
	// update the merchant mapping table.
	mappingFloor = 0.85
)

// Config holds pipeline tuning knobs.
type Config struct {
	ChunkSize  int
	ChunkPause time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  10,
		ChunkPause: 500 * time.Millisecond,
	}
}

// Pipeline orchestrates categorization of items.
type Pipeline struct {
	storage    service.Storage
	rules      RuleMatcher
	embedder   Embedder
	embeddings EmbeddingSource
	classifier Classifier
	backend    service.GenerativeClient
	retrain    RetrainState
	logger     *slog.Logger
	chunkSize  int
	chunkPause time.Duration
}

// New creates a pipeline with the default configuration.
func New(storage service.Storage, rules RuleMatcher, embedder Embedder, embeddings EmbeddingSource, classifier Classifier, backend service.GenerativeClient, logger *slog.Logger) *Pipeline {
	return NewWithConfig(storage, rules, embedder, embeddings, classifier, backend, logger, DefaultConfig())
}

// NewWithConfig creates a pipeline with custom configuration.
func NewWithConfig(storage service.Storage, rules RuleMatcher, embedder Embedder, embeddings EmbeddingSource, classifier Classifier, backend service.GenerativeClient, logger *slog.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}
	chunkPause := cfg.ChunkPause
	if chunkPause < 0 {
		chunkPause = 0
	}
	return &Pipeline{
		storage:    storage,
		rules:      rules,
		embedder:   embedder,
		embeddings: embeddings,
		classifier: classifier,
		backend:    backend,
		logger:     logger,
		chunkSize:  chunkSize,
		chunkPause: chunkPause,
	}
}

// SetRetrainState wires the learning loop in for status reporting.
func (p *Pipeline) SetRetrainState(state RetrainState) {
	p.retrain = state
}

// Categorize runs the item through the stage waterfall and persists the
// terminal decision. Only persistence failures surface as errors; backend
// problems degrade stage by stage down to the fixed-confidence fallback.
func (p *Pipeline) Categorize(ctx context.Context, item model.Item) (*model.CategorizationRecord, error) {
	// Stage 1: a user-confirmed record always wins.
	existing, err := p.storage.GetRecord(ctx, item.ID, item.Type)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up existing record: %w", err)
	}
	if existing != nil && existing.UserConfirmed {
		p.logger.Debug("exact match hit",
			"item_id", item.ID,
			"category", existing.Category)
		p.ensureConfirmedEmbedding(ctx, item, existing.Category)
		record := *existing
		record.Confidence = 1.0
		record.Method = model.MethodExactMatch
		return &record, nil
	}

	categories, err := p.storage.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, common.ErrNoCategories
	}

	text := item.SearchText()

	mappings, err := p.storage.GetMerchantMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant mappings: %w", err)
	}

	// Stage 2: identifier rules, learned mappings, then the rule table.
	candidate, err := p.ruleStage(ctx, item, text, categories, mappings)
	if err != nil {
		return nil, err
	}
	if candidate != nil && candidate.Confidence > ruleGate {
		return p.finalize(ctx, item, candidate)
	}

	// Stage 3: semantic similarity over confirmed embeddings.
	semantic, err := p.similarityStage(ctx, item, text, categories)
	if err != nil {
		return nil, err
	}
	if semantic != nil && semantic.Confidence > similarityGate {
		return p.finalize(ctx, item, semantic)
	}

	// Stage 4: generative fallback. Never errors.
	result := p.classifier.Classify(ctx, item, categories, mappings)

	generative := &model.CategorizationRecord{
		Category:     result.Category,
		Confidence:   result.Confidence,
		Method:       model.MethodGenerative,
		Reasoning:    result.Reasoning,
		Alternatives: result.Alternatives,
	}
	if result.Fallback {
		generative.Method = model.MethodFallback
	}

	// A below-gate rule match still beats a weaker generative answer.
	best := generative
	if candidate != nil && candidate.Confidence >= best.Confidence {
		best = candidate
	}

	return p.finalize(ctx, item, best)
}

// ruleStage returns the best rule-derived record, or nil when nothing
// matches. Identifier-keyed rules and learned merchant mappings outrank the
// generic rule table.
func (p *Pipeline) ruleStage(ctx context.Context, item model.Item, text string, categories []model.Category, mappings []model.MerchantMapping) (*model.CategorizationRecord, error) {
	if item.ExternalID != "" {
		category, err := p.storage.GetExternalIDRule(ctx, item.ExternalID)
		switch {
		case err == nil && category != "":
			return &model.CategorizationRecord{
				Category:   category,
				Confidence: externalIDConfidence,
				Method:     model.MethodRule,
				Reasoning:  fmt.Sprintf("known catalog identifier %s", item.ExternalID),
			}, nil
		case err != nil && !errors.Is(err, common.ErrNotFound):
			return nil, fmt.Errorf("failed to look up identifier rule: %w", err)
		}
	}

	if item.Merchant != "" {
		merchant := strings.ToLower(strings.TrimSpace(item.Merchant))
		for _, m := range mappings {
			if strings.ToLower(m.MerchantPattern) == merchant && categoryExists(categories, m.Category) {
				return &model.CategorizationRecord{
					Category:   m.Category,
					Confidence: mappingConfidence,
					Method:     model.MethodRule,
					Reasoning:  fmt.Sprintf("learned merchant mapping for %q", item.Merchant),
				}, nil
			}
		}
	}

	rules, err := p.storage.GetCategoryRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	// Rules referencing a deleted category are skipped, not fatal.
	valid := rules[:0]
	for _, r := range rules {
		if categoryExists(categories, r.Category) {
			valid = append(valid, r)
		} else {
			p.logger.Warn("Rule references unknown category, skipping",
				"rule", r.Name,
				"category", r.Category)
		}
	}

	matched := p.rules.Match(text, valid)
	if matched == nil {
		return nil, nil
	}

	return &model.CategorizationRecord{
		Category:   matched.Category,
		Confidence: matched.EffectiveConfidence(),
		Method:     model.MethodRule,
		Reasoning:  fmt.Sprintf("matched rule %q", matched.Name),
	}, nil
}

// similarityStage votes over the confirmed embedding neighborhood. Returns
// nil when embeddings are unavailable or no neighbor clears the floor.
func (p *Pipeline) similarityStage(ctx context.Context, item model.Item, text string, categories []model.Category) (*model.CategorizationRecord, error) {
	if !p.embedder.Available() {
		return nil, nil
	}

	vector := p.embedder.Embed(ctx, text)
	if vector == nil {
		return nil, nil
	}

	confirmed, err := p.embeddings.Confirmed(ctx, item.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load confirmed embeddings: %w", err)
	}
	if len(confirmed) == 0 {
		return nil, nil
	}

	type neighbor struct {
		category string
		score    float64
	}

	neighbors := make([]neighbor, 0, len(confirmed))
	for _, emb := range confirmed {
		if emb.ItemID == item.ID || !categoryExists(categories, emb.Category) {
			continue
		}
		score := similarity.Cosine(vector, emb.Vector)
		if score > candidateSimilarityFloor {
			neighbors = append(neighbors, neighbor{category: emb.Category, score: score})
		}
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].score > neighbors[j].score
	})

	best := neighbors[0].score
	if best <= bestSimilarityFloor {
		return nil, nil
	}

	if len(neighbors) > maxVoteCandidates {
		neighbors = neighbors[:maxVoteCandidates]
	}

	// Weight-vote categories by summed similarity.
	votes := make(map[string]float64)
	for _, n := range neighbors {
		votes[n.category] += n.score
	}

	winner := ""
	winningVote := 0.0
	for category, vote := range votes {
		if vote > winningVote || (vote == winningVote && category < winner) {
			winner = category
			winningVote = vote
		}
	}

	confidence := best
	if confidence > similarityConfidenceCap {
		confidence = similarityConfidenceCap
	}

	type runnerUp struct {
		category string
		vote     float64
	}
	var runnersUp []runnerUp
	for category, vote := range votes {
		if category != winner {
			runnersUp = append(runnersUp, runnerUp{category: category, vote: vote})
		}
	}
	sort.Slice(runnersUp, func(i, j int) bool {
		if runnersUp[i].vote != runnersUp[j].vote {
			return runnersUp[i].vote > runnersUp[j].vote
		}
		return runnersUp[i].category < runnersUp[j].category
	})

	var alternatives []model.Alternative
	for _, r := range runnersUp {
		if len(alternatives) == 3 {
			break
		}
		conf := r.vote / winningVote
		if conf > alternativeConfidenceCap {
			conf = alternativeConfidenceCap
		}
		alternatives = append(alternatives, model.Alternative{Category: r.category, Confidence: conf})
	}

	return &model.CategorizationRecord{
		Category:     winner,
		Confidence:   confidence,
		Method:       model.MethodSimilarity,
		Reasoning:    fmt.Sprintf("%d similar confirmed items, best similarity %.2f", len(neighbors), best),
		Alternatives: alternatives,
	}, nil
}

// finalize stamps and persists the decision, then updates the merchant
// mapping table for confident results.
func (p *Pipeline) finalize(ctx context.Context, item model.Item, record *model.CategorizationRecord) (*model.CategorizationRecord, error) {
	record.ItemID = item.ID
	record.ItemType = item.Type
	record.CategorizedAt = time.Now()

	if err := p.storage.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save categorization record: %w", err)
	}

	if record.Confidence >= mappingFloor && record.Method != model.MethodExactMatch && item.Merchant != "" {
		pattern := strings.ToLower(strings.TrimSpace(item.Merchant))
		if err := p.storage.UpsertMerchantMapping(ctx, pattern, record.Category); err != nil {
			p.logger.Warn("Failed to update merchant mapping",
				"merchant", pattern,
				"error", err)
		}
	}

	p.logger.Info("Item categorized",
		"item_id", item.ID,
		"item_type", item.Type,
		"category", record.Category,
		"confidence", record.Confidence,
		"method", record.Method)

	return record, nil
}

// ensureConfirmedEmbedding backfills a confirmed embedding for an
// exact-match hit so the semantic stage can learn from it. Best effort.
func (p *Pipeline) ensureConfirmedEmbedding(ctx context.Context, item model.Item, category string) {
	if p.embedder == nil || !p.embedder.Available() {
		return
	}

	existing, err := p.storage.GetEmbedding(ctx, item.ID, item.Type)
	if err == nil && existing != nil {
		return
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		p.logger.Warn("Failed to check for existing embedding", "item_id", item.ID, "error", err)
		return
	}

	text := item.SearchText()
	vector := p.embedder.Embed(ctx, text)
	if vector == nil {
		return
	}

	if err := p.storage.SaveEmbedding(ctx, &model.Embedding{
		ItemID:     item.ID,
		ItemType:   item.Type,
		SourceText: text,
		Vector:     vector,
		Category:   category,
		Confirmed:  true,
		CreatedAt:  time.Now(),
	}); err != nil {
		p.logger.Warn("Failed to backfill embedding", "item_id", item.ID, "error", err)
	}
}

// Status summarizes pipeline health for the caller.
func (p *Pipeline) Status(ctx context.Context) (service.PipelineStatus, error) {
	pending, err := p.storage.GetPendingCount(ctx)
	if err != nil {
		return service.PipelineStatus{}, fmt.Errorf("failed to count pending feedback: %w", err)
	}
	total, err := p.storage.CountRecords(ctx)
	if err != nil {
		return service.PipelineStatus{}, fmt.Errorf("failed to count records: %w", err)
	}

	status := service.PipelineStatus{
		BackendAvailable:    p.backend != nil && p.backend.IsAvailable(ctx),
		EmbeddingsAvailable: p.embedder != nil && p.embedder.Available(),
		PendingFeedback:     pending,
		TotalCategorized:    total,
	}
	if p.retrain != nil {
		status.RetrainingThreshold = p.retrain.Threshold(total)
		status.RetrainingActive = p.retrain.Active()
	}
	return status, nil
}

func categoryExists(categories []model.Category, name string) bool {
	return model.FindCategory(categories, name) != nil
}
