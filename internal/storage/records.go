package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
)

// GetRecord returns the stored decision for an item.
func (s *SQLiteStorage) GetRecord(ctx context.Context, itemID string, itemType model.ItemType) (*model.CategorizationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return nil, err
	}

	var record model.CategorizationRecord
	var alternatives string
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, item_type, category, confidence, method,
		       COALESCE(reasoning, ''), COALESCE(alternatives, '[]'), user_confirmed, categorized_at
		FROM categorization_records
		WHERE item_id = ? AND item_type = ?
	`, itemID, string(itemType)).Scan(
		&record.ItemID,
		&record.ItemType,
		&record.Category,
		&record.Confidence,
		&record.Method,
		&record.Reasoning,
		&alternatives,
		&record.UserConfirmed,
		&record.CategorizedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s/%s: %w", itemID, itemType, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if err := json.Unmarshal([]byte(alternatives), &record.Alternatives); err != nil {
		return nil, fmt.Errorf("failed to decode alternatives: %w", err)
	}
	return &record, nil
}

// SaveRecord overwrites the stored decision for an item.
func (s *SQLiteStorage) SaveRecord(ctx context.Context, record *model.CategorizationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	alternatives, err := json.Marshal(record.Alternatives)
	if err != nil {
		return fmt.Errorf("failed to marshal alternatives: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO categorization_records
			(item_id, item_type, category, confidence, method, reasoning, alternatives, user_confirmed, categorized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, item_type) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			method = excluded.method,
			reasoning = excluded.reasoning,
			alternatives = excluded.alternatives,
			user_confirmed = excluded.user_confirmed,
			categorized_at = excluded.categorized_at
	`, record.ItemID, string(record.ItemType), record.Category, record.Confidence,
		string(record.Method), record.Reasoning, string(alternatives), record.UserConfirmed, record.CategorizedAt)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// CountRecords returns the total number of categorized items.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categorization_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
