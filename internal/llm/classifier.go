// Package llm implements the generative fallback classifier: the last
// pipeline stage, which asks a language model to pick a category and
// degrades to keyword heuristics when the model is unreachable.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

// FallbackConfidence is assigned when classification degrades to the
// default category.
const FallbackConfidence = 0.3

// maxFewShotMappings bounds how many merchant mappings are embedded in the
// prompt as few-shot context.
const maxFewShotMappings = 10

// Result is the classifier's answer. It is always populated; failures
// degrade to the catalog's fallback category rather than erroring.
type Result struct {
	Category     string
	Reasoning    string
	Alternatives []model.Alternative
	Confidence   float64
	// Fallback marks the fixed-confidence default used when no usable
	// answer could be produced.
	Fallback bool
}

// Config holds classifier configuration.
type Config struct {
	Temperature float64
	MaxTokens   int
	RateLimit   int
}

// Classifier prompts the generative backend with the category catalog and
// item context.
type Classifier struct {
	client      service.GenerativeClient
	rateLimiter *rateLimiter
	logger      *slog.Logger
	retryOpts   service.RetryOptions
	temperature float64
	maxTokens   int
}

// NewClassifier creates a classifier over the given backend.
func NewClassifier(client service.GenerativeClient, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}

	return &Classifier{
		client:      client,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		logger:      logger,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Classify picks a category for the item. It never returns an error:
// backend failures, malformed responses, and unknown category names all
// degrade — first to keyword heuristics, then to the catalog's fallback
// category at FallbackConfidence.
func (c *Classifier) Classify(ctx context.Context, item model.Item, categories []model.Category, mappings []model.MerchantMapping) Result {
	if len(categories) == 0 {
		return Result{Category: model.FallbackCategoryName, Confidence: FallbackConfidence, Reasoning: "no categories configured", Fallback: true}
	}

	if !c.client.IsAvailable(ctx) {
		c.logger.Debug("generative backend unavailable, using keyword heuristics",
			"item_id", item.ID)
		return c.classifyByKeywords(item, categories)
	}

	if err := c.rateLimiter.wait(ctx); err != nil {
		return c.fallback(categories, "rate limiter interrupted")
	}

	prompt := c.buildPrompt(item, categories, mappings)

	var raw string
	err := common.WithRetry(ctx, func() error {
		response, generateErr := c.client.Generate(ctx, prompt, service.GenerateOptions{
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if generateErr != nil {
			return &common.RetryableError{Err: generateErr, Retryable: true}
		}
		raw = response
		return nil
	}, c.retryOpts)
	if err != nil {
		c.logger.Warn("generative classification failed, using keyword heuristics",
			"item_id", item.ID,
			"error", err)
		return c.classifyByKeywords(item, categories)
	}

	result, err := c.parseResponse(raw, categories)
	if err != nil {
		c.logger.Warn("unusable generative response",
			"item_id", item.ID,
			"error", err)
		return c.fallback(categories, "unparsable model response")
	}

	c.logger.Info("item classified by generative model",
		"item_id", item.ID,
		"merchant", item.DisplayName(),
		"category", result.Category,
		"confidence", result.Confidence)

	return result
}

// buildPrompt embeds the full category catalog and structured item context.
func (c *Classifier) buildPrompt(item model.Item, categories []model.Category, mappings []model.MerchantMapping) string {
	var catalog strings.Builder
	for _, cat := range categories {
		catalog.WriteString("- ")
		catalog.WriteString(cat.Name)
		if cat.Description != "" {
			catalog.WriteString(": ")
			catalog.WriteString(cat.Description)
		}
		if len(cat.Keywords) > 0 {
			catalog.WriteString(fmt.Sprintf(" (keywords: %s)", strings.Join(cat.Keywords, ", ")))
		}
		if len(cat.Examples) > 0 {
			catalog.WriteString(fmt.Sprintf(" (examples: %s)", strings.Join(cat.Examples, "; ")))
		}
		catalog.WriteString("\n")
	}

	details := fmt.Sprintf("Merchant: %s\nDescription: %s", item.DisplayName(), item.Name)
	if item.Description != "" {
		details += fmt.Sprintf("\nDetails: %s", item.Description)
	}
	if item.Amount != 0 {
		details += fmt.Sprintf("\nAmount: $%.2f", item.Amount)
	}
	if !item.Date.IsZero() {
		details += fmt.Sprintf("\nDate: %s", item.Date.Format("2006-01-02"))
	}
	if item.Type != "" {
		details += fmt.Sprintf("\nItem Type: %s", item.Type)
	}

	fewShot := c.buildFewShot(mappings)

	return fmt.Sprintf(`Classify this item into the most appropriate spending category based solely on what the item IS, not assumptions about its purpose.

Available Categories:
%s
%sItem Details:
%s

Respond with ONLY a JSON object in this exact form:
{"category": "<existing category name>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>", "alternatives": [{"category": "<name>", "confidence": <0.0-1.0>}]}

The category MUST be one of the available categories, spelled exactly as listed. Include at most 3 alternatives.`,
		catalog.String(),
		fewShot,
		details)
}

// buildFewShot renders known merchant→category associations, highest use
// count first.
func (c *Classifier) buildFewShot(mappings []model.MerchantMapping) string {
	if len(mappings) == 0 {
		return ""
	}

	sorted := make([]model.MerchantMapping, len(mappings))
	copy(sorted, mappings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UseCount > sorted[j].UseCount
	})
	if len(sorted) > maxFewShotMappings {
		sorted = sorted[:maxFewShotMappings]
	}

	var b strings.Builder
	b.WriteString("Known merchant categorizations:\n")
	for _, m := range sorted {
		b.WriteString(fmt.Sprintf("- %q -> %s\n", m.MerchantPattern, m.Category))
	}
	b.WriteString("\n")
	return b.String()
}

// parseResponse extracts and validates the model's JSON answer.
func (c *Classifier) parseResponse(raw string, categories []model.Category) (Result, error) {
	jsonText, err := extractFirstJSON(raw)
	if err != nil {
		return Result{}, err
	}

	var resp struct {
		Category     string  `json:"category"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
		Alternatives []struct {
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(jsonText), &resp); err != nil {
		return Result{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	matched := model.FindCategory(categories, resp.Category)
	if matched == nil {
		return Result{}, fmt.Errorf("model named unknown category %q", resp.Category)
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	var alternatives []model.Alternative
	for _, alt := range resp.Alternatives {
		if len(alternatives) == 3 {
			break
		}
		altCat := model.FindCategory(categories, alt.Category)
		if altCat == nil || altCat.Key() == matched.Key() {
			continue
		}
		conf := alt.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		alternatives = append(alternatives, model.Alternative{Category: altCat.Name, Confidence: conf})
	}

	return Result{
		Category:     matched.Name,
		Confidence:   confidence,
		Reasoning:    resp.Reasoning,
		Alternatives: alternatives,
	}, nil
}

// classifyByKeywords scores categories by keyword hits in the item text.
func (c *Classifier) classifyByKeywords(item model.Item, categories []model.Category) Result {
	text := item.SearchText()

	type scored struct {
		category string
		hits     int
	}

	var candidates []scored
	for _, cat := range categories {
		hits := 0
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				hits++
			}
		}
		if strings.Contains(text, cat.Key()) {
			hits++
		}
		if hits > 0 {
			candidates = append(candidates, scored{category: cat.Name, hits: hits})
		}
	}

	if len(candidates) == 0 {
		return c.fallback(categories, "backend unreachable, no keyword match")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].hits > candidates[j].hits
	})

	best := candidates[0]
	confidence := 0.4 + 0.05*float64(best.hits-1)
	if confidence > 0.6 {
		confidence = 0.6
	}

	var alternatives []model.Alternative
	for _, cand := range candidates[1:] {
		if len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, model.Alternative{
			Category:   cand.category,
			Confidence: confidence * float64(cand.hits) / float64(best.hits),
		})
	}

	return Result{
		Category:     best.category,
		Confidence:   confidence,
		Reasoning:    fmt.Sprintf("keyword heuristic matched %q", best.category),
		Alternatives: alternatives,
	}
}

// fallback returns the catalog's uncategorized bucket at the fixed
// fallback confidence.
func (c *Classifier) fallback(categories []model.Category, reason string) Result {
	name := model.FallbackCategoryName
	if cat := model.FallbackCategory(categories); cat != nil {
		name = cat.Name
	}
	return Result{
		Category:   name,
		Confidence: FallbackConfidence,
		Reasoning:  reason,
		Fallback:   true,
	}
}
