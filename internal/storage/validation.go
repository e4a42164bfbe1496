// Package storage provides the SQLite persistence layer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jstall/pennywise/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidRecord    = errors.New("invalid categorization record")
	ErrInvalidEmbedding = errors.New("invalid embedding")
	ErrInvalidFeedback  = errors.New("invalid feedback event")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRecord(record *model.CategorizationRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if record.ItemID == "" {
		return fmt.Errorf("%w: missing item ID", ErrInvalidRecord)
	}
	if record.ItemType == "" {
		return fmt.Errorf("%w: missing item type", ErrInvalidRecord)
	}
	if record.Category == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRecord)
	}
	if record.Confidence < 0 || record.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f out of range", ErrInvalidRecord, record.Confidence)
	}
	return nil
}

func validateEmbedding(embedding *model.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding", ErrNilParameter)
	}
	if embedding.ItemID == "" {
		return fmt.Errorf("%w: missing item ID", ErrInvalidEmbedding)
	}
	if embedding.ItemType == "" {
		return fmt.Errorf("%w: missing item type", ErrInvalidEmbedding)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	return nil
}

func validateFeedbackEvent(event *model.FeedbackEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if event.ItemID == "" {
		return fmt.Errorf("%w: missing item ID", ErrInvalidFeedback)
	}
	if event.ItemType == "" {
		return fmt.Errorf("%w: missing item type", ErrInvalidFeedback)
	}
	if event.ActualCategory == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidFeedback)
	}
	return nil
}
