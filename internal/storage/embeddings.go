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

// GetConfirmedEmbeddings returns up to limit confirmed embeddings of the
// given item type, newest first. Vectors are stored as JSON arrays; the
// linear scan over them is bounded by the limit.
func (s *SQLiteStorage) GetConfirmedEmbeddings(ctx context.Context, itemType model.ItemType, limit int) ([]model.Embedding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_type, source_text, vector, category, confirmed, created_at
		FROM embeddings
		WHERE confirmed = 1 AND item_type = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(itemType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var embeddings []model.Embedding
	for rows.Next() {
		embedding, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, *embedding)
	}

	return embeddings, rows.Err()
}

// GetEmbedding returns the stored embedding for an item.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, itemID string, itemType model.ItemType) (*model.Embedding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return nil, err
	}

	var embedding model.Embedding
	var vector string
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, item_type, source_text, vector, category, confirmed, created_at
		FROM embeddings
		WHERE item_id = ? AND item_type = ?
	`, itemID, string(itemType)).Scan(
		&embedding.ItemID,
		&embedding.ItemType,
		&embedding.SourceText,
		&vector,
		&embedding.Category,
		&embedding.Confirmed,
		&embedding.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s/%s: %w", itemID, itemType, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	if err := json.Unmarshal([]byte(vector), &embedding.Vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return &embedding, nil
}

// SaveEmbedding inserts or overwrites an item's embedding.
func (s *SQLiteStorage) SaveEmbedding(ctx context.Context, embedding *model.Embedding) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEmbedding(embedding); err != nil {
		return err
	}

	vector, err := json.Marshal(embedding.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (item_id, item_type, source_text, vector, category, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(item_id, item_type) DO UPDATE SET
			source_text = excluded.source_text,
			vector = excluded.vector,
			category = excluded.category,
			confirmed = excluded.confirmed,
			created_at = excluded.created_at
	`, embedding.ItemID, string(embedding.ItemType), embedding.SourceText,
		string(vector), embedding.Category, embedding.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

func scanEmbedding(rows *sql.Rows) (*model.Embedding, error) {
	var embedding model.Embedding
	var vector string
	if err := rows.Scan(
		&embedding.ItemID,
		&embedding.ItemType,
		&embedding.SourceText,
		&vector,
		&embedding.Category,
		&embedding.Confirmed,
		&embedding.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(vector), &embedding.Vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return &embedding, nil
}
