package storage

import (
	"context"
	"fmt"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/model"
)

// GetCategoryRules returns the rule table, optionally limited to enabled
// rules, ordered by pattern length descending to match evaluation order.
func (s *SQLiteStorage) GetCategoryRules(ctx context.Context, enabledOnly bool) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, pattern, match_kind, category, origin, confidence, enabled, created_at, updated_at
		FROM category_rules
	`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY LENGTH(pattern) DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Pattern, &r.MatchKind, &r.Category,
			&r.Origin, &r.Confidence, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}

	return rules, rows.Err()
}

// CreateAutoRule inserts a rule unless an equivalent (pattern, category,
// match kind) rule already exists.
func (s *SQLiteStorage) CreateAutoRule(ctx context.Context, name, pattern, category string, matchKind model.MatchKind, confidence float64, origin model.RuleOrigin) error {
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
		INSERT OR IGNORE INTO category_rules (name, pattern, match_kind, category, origin, confidence, enabled)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, name, pattern, string(matchKind), category, string(origin), confidence)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// SetRuleEnabled toggles a rule.
func (s *SQLiteStorage) SetRuleEnabled(ctx context.Context, id int, enabled bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE category_rules SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}
