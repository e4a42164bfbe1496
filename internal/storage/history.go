package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jstall/pennywise/internal/model"
)

// SaveTrainingHistory appends a retraining audit entry and sets its ID.
func (s *SQLiteStorage) SaveTrainingHistory(ctx context.Context, entry *model.TrainingHistoryEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}

	startedAt := entry.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO training_history
			(trigger_kind, feedback_count, rules_generated, embeddings_updated, duration_ms, notes, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(entry.Trigger), entry.FeedbackCount, entry.RulesGenerated,
		entry.EmbeddingsUpdated, entry.Duration.Milliseconds(), entry.Notes, startedAt)
	if err != nil {
		return fmt.Errorf("failed to save training history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get training history id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetTrainingHistory returns the most recent entries, newest first.
func (s *SQLiteStorage) GetTrainingHistory(ctx context.Context, limit int) ([]model.TrainingHistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, feedback_count, rules_generated, embeddings_updated,
		       duration_ms, COALESCE(notes, ''), started_at
		FROM training_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.TrainingHistoryEntry
	for rows.Next() {
		var e model.TrainingHistoryEntry
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.Trigger, &e.FeedbackCount, &e.RulesGenerated,
			&e.EmbeddingsUpdated, &durationMS, &e.Notes, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan training history: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
