package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
)

// UpsertMerchantMapping inserts or updates a merchant→category mapping,
// bumping its use count. Patterns are stored lowercase.
func (s *SQLiteStorage) UpsertMerchantMapping(ctx context.Context, pattern, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_mappings (merchant_pattern, category, use_count, last_updated)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(merchant_pattern) DO UPDATE SET
			category = excluded.category,
			use_count = use_count + 1,
			last_updated = CURRENT_TIMESTAMP
	`, strings.ToLower(strings.TrimSpace(pattern)), category)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant mapping: %w", err)
	}
	return nil
}

// GetMerchantMappings returns all mappings, most used first.
func (s *SQLiteStorage) GetMerchantMappings(ctx context.Context) ([]model.MerchantMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT merchant_pattern, category, use_count, last_updated
		FROM merchant_mappings
		ORDER BY use_count DESC, merchant_pattern
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.MerchantMapping
	for rows.Next() {
		var m model.MerchantMapping
		if err := rows.Scan(&m.MerchantPattern, &m.Category, &m.UseCount, &m.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan merchant mapping: %w", err)
		}
		mappings = append(mappings, m)
	}

	return mappings, rows.Err()
}

// GetExternalIDRule resolves a stable catalog identifier to a category.
func (s *SQLiteStorage) GetExternalIDRule(ctx context.Context, externalID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return "", err
	}

	var category string
	err := s.db.QueryRowContext(ctx, `
		SELECT category FROM external_id_rules WHERE external_id = ?
	`, externalID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("identifier rule %s: %w", externalID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get identifier rule: %w", err)
	}
	return category, nil
}

// SaveExternalIDRule maps a catalog identifier to a category.
func (s *SQLiteStorage) SaveExternalIDRule(ctx context.Context, externalID, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_id_rules (external_id, category)
		VALUES (?, ?)
		ON CONFLICT(external_id) DO UPDATE SET category = excluded.category
	`, externalID, category)
	if err != nil {
		return fmt.Errorf("failed to save identifier rule: %w", err)
	}
	return nil
}
