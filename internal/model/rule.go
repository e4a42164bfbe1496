package model

import "time"

// MatchKind determines how a rule's pattern is tested against item text.
type MatchKind string

// Match kind constants.
const (
	MatchExact      MatchKind = "exact"
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "startswith"
	MatchEndsWith   MatchKind = "endswith"
	MatchRegex      MatchKind = "regex"
)

// RuleOrigin records who created a rule.
type RuleOrigin string

// Rule origin constants.
const (
	OriginUser RuleOrigin = "user"
	OriginAuto RuleOrigin = "auto-generated"
)

// DefaultRuleConfidence is used when a rule carries no confidence override.
const DefaultRuleConfidence = 0.90

// Rule maps a text pattern to a category.
type Rule struct {
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Name       string     `json:"name"`
	Pattern    string     `json:"pattern"`
	MatchKind  MatchKind  `json:"match_kind"`
	Category   string     `json:"category"`
	Origin     RuleOrigin `json:"origin"`
	ID         int        `json:"id"`
	Confidence float64    `json:"confidence"`
	Enabled    bool       `json:"enabled"`
}

// EffectiveConfidence returns the rule's confidence override, or the
// default when none is set.
func (r Rule) EffectiveConfidence() float64 {
	if r.Confidence > 0 {
		return r.Confidence
	}
	return DefaultRuleConfidence
}

// MerchantMapping is an upserted merchant→category association learned from
// confident categorizations. Used for fast-path matching and few-shot
// prompt context.
type MerchantMapping struct {
	LastUpdated     time.Time
	MerchantPattern string
	Category        string
	UseCount        int
}
