package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jstall/pennywise/internal/model"
)

// ListCategories returns all active categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(parent_name, ''), COALESCE(description, ''),
		       COALESCE(keywords, '[]'), COALESCE(examples, '[]'), is_active, created_at
		FROM categories
		WHERE is_active = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		var keywords, examples string
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.ParentName, &cat.Description,
			&keywords, &examples, &cat.IsActive, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &cat.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords for %q: %w", cat.Name, err)
		}
		if err := json.Unmarshal([]byte(examples), &cat.Examples); err != nil {
			return nil, fmt.Errorf("failed to decode examples for %q: %w", cat.Name, err)
		}
		categories = append(categories, cat)
	}

	return categories, rows.Err()
}

// CreateCategory inserts a category. Names are unique case-sensitively at
// the schema level; callers should normalize.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, cat *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if cat == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(cat.Name, "name"); err != nil {
		return err
	}

	keywords, err := json.Marshal(cat.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	examples, err := json.Marshal(cat.Examples)
	if err != nil {
		return fmt.Errorf("failed to marshal examples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO categories (name, parent_name, description, keywords, examples, is_active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, cat.Name, cat.ParentName, cat.Description, string(keywords), string(examples))
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// defaultCategories is the catalog seeded into a fresh database.
func defaultCategories() []model.Category {
	return []model.Category{
		{Name: "Groceries", Description: "Food and household staples", Keywords: []string{"grocery", "supermarket", "market", "food"}, Examples: []string{"Safeway", "Whole Foods", "Trader Joe's"}},
		{Name: "Dining Out", Description: "Restaurants, bars, and coffee shops", Keywords: []string{"restaurant", "cafe", "coffee", "bar", "pizza"}, Examples: []string{"Chipotle", "Starbucks"}},
		{Name: "Shopping", Description: "General merchandise and online retail", Keywords: []string{"amazon", "retail", "store", "clothing"}, Examples: []string{"Amazon", "Target"}},
		{Name: "Transportation", Description: "Fuel, transit, ride share, and parking", Keywords: []string{"gas", "fuel", "transit", "parking", "uber", "lyft"}, Examples: []string{"Shell", "Uber"}},
		{Name: "Entertainment", Description: "Streaming, games, and events", Keywords: []string{"streaming", "movie", "game", "concert"}, Examples: []string{"Netflix", "Steam"}},
		{Name: "Utilities", Description: "Power, water, internet, and phone", Keywords: []string{"electric", "water", "internet", "phone", "utility"}, Examples: []string{"Comcast", "PG&E"}},
		{Name: "Health", Description: "Medical, pharmacy, and fitness", Keywords: []string{"pharmacy", "doctor", "gym", "medical"}, Examples: []string{"CVS", "Walgreens"}},
		{Name: "Travel", Description: "Flights, lodging, and vacations", Keywords: []string{"airline", "hotel", "flight", "airbnb"}, Examples: []string{"United", "Marriott"}},
		{Name: "Income", Description: "Salary and other deposits", Keywords: []string{"payroll", "salary", "deposit", "refund"}},
		{Name: "Uncategorized", Description: "Default bucket for unknown items"},
	}
}
