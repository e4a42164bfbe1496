package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jstall/pennywise/internal/model"
)

// SaveFeedbackEvent appends a correction to the feedback log and sets the
// event's ID.
func (s *SQLiteStorage) SaveFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedbackEvent(event); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events
			(item_id, item_type, item_text, suggested_category, actual_category, suggestion_method, suggestion_confidence, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, event.ItemID, string(event.ItemType), event.ItemText, event.SuggestedCategory,
		event.ActualCategory, string(event.SuggestionMethod), event.SuggestionConfidence)
	if err != nil {
		return fmt.Errorf("failed to save feedback event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get feedback event id: %w", err)
	}
	event.ID = id
	return nil
}

// GetUnprocessedFeedback returns up to limit unprocessed events, oldest
// first.
func (s *SQLiteStorage) GetUnprocessedFeedback(ctx context.Context, limit int) ([]model.FeedbackEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, item_type, COALESCE(item_text, ''),
		       COALESCE(suggested_category, ''), actual_category,
		       COALESCE(suggestion_method, ''), suggestion_confidence, processed, created_at
		FROM feedback_events
		WHERE processed = 0
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FeedbackEvent
	for rows.Next() {
		var e model.FeedbackEvent
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ItemType, &e.ItemText,
			&e.SuggestedCategory, &e.ActualCategory, &e.SuggestionMethod,
			&e.SuggestionConfidence, &e.Processed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// MarkProcessed flags the given events processed.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, ids []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE feedback_events SET processed = 1 WHERE id IN (%s)`, placeholders),
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark feedback processed: %w", err)
	}
	return nil
}

// GetPendingCount returns the number of unprocessed events.
func (s *SQLiteStorage) GetPendingCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feedback_events WHERE processed = 0
	`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending feedback: %w", err)
	}
	return count, nil
}

// GetRepeatedCorrections aggregates corrections by normalized item text
// and target category, returning groups with at least minCount entries.
func (s *SQLiteStorage) GetRepeatedCorrections(ctx context.Context, minCount int) ([]model.CorrectionPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if minCount <= 0 {
		minCount = 2
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT LOWER(TRIM(item_text)) AS pattern, item_type, actual_category, COUNT(*) AS n
		FROM feedback_events
		WHERE item_text IS NOT NULL AND TRIM(item_text) != ''
		GROUP BY pattern, item_type, actual_category
		HAVING n >= ?
		ORDER BY n DESC
	`, minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeated corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.CorrectionPattern
	for rows.Next() {
		var p model.CorrectionPattern
		if err := rows.Scan(&p.Pattern, &p.ItemType, &p.Category, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan correction pattern: %w", err)
		}
		patterns = append(patterns, p)
	}

	return patterns, rows.Err()
}
