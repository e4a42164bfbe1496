package model

import "time"

// Method identifies which pipeline stage produced a decision.
type Method string

// Categorization method constants.
const (
	MethodExactMatch Method = "exact_match"
	MethodRule       Method = "rule"
	MethodSimilarity Method = "similarity"
	MethodGenerative Method = "generative"
	MethodFallback   Method = "fallback"
)

// Alternative is a runner-up category with its relative confidence.
type Alternative struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// CategorizationRecord is the persisted decision for one item. There is at
// most one record per (ItemID, ItemType); new decisions overwrite prior
// unconfirmed ones.
type CategorizationRecord struct {
	CategorizedAt time.Time
	ItemID        string
	ItemType      ItemType
	Category      string
	Method        Method
	Reasoning     string
	Alternatives  []Alternative
	Confidence    float64
	UserConfirmed bool
}

// Embedding is a stored vector representation of an item's descriptive
// text. Confirmed embeddings are eligible for similarity voting.
type Embedding struct {
	CreatedAt  time.Time
	ItemID     string
	ItemType   ItemType
	SourceText string
	Category   string
	Vector     []float64
	Confirmed  bool
}
