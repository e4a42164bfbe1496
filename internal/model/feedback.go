package model

import "time"

// FeedbackEvent is an append-only log entry for a user correction. Only the
// Processed flag ever mutates after creation.
type FeedbackEvent struct {
	CreatedAt            time.Time
	ItemID               string
	ItemType             ItemType
	ItemText             string
	SuggestedCategory    string
	ActualCategory       string
	SuggestionMethod     Method
	ID                   int64
	SuggestionConfidence float64
	Processed            bool
}

// CorrectionPattern is an aggregate of repeated corrections sharing the
// same normalized item text and target category.
type CorrectionPattern struct {
	Pattern  string
	ItemType ItemType
	Category string
	Count    int
}

// RetrainTrigger records why a retraining run started.
type RetrainTrigger string

// Retrain trigger constants.
const (
	TriggerThreshold RetrainTrigger = "threshold"
	TriggerScheduled RetrainTrigger = "scheduled"
	TriggerManual    RetrainTrigger = "manual"
)

// TrainingHistoryEntry is a write-once audit record for a retraining run.
type TrainingHistoryEntry struct {
	StartedAt         time.Time
	Trigger           RetrainTrigger
	Notes             string
	ID                int64
	FeedbackCount     int
	RulesGenerated    int
	EmbeddingsUpdated int
	Duration          time.Duration
}
