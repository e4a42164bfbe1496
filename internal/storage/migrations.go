package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jstall/pennywise/internal/rule"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects after Migrate.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					parent_name TEXT,
					description TEXT,
					keywords TEXT,
					examples TEXT,
					is_active INTEGER DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS category_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					pattern TEXT NOT NULL,
					match_kind TEXT NOT NULL,
					category TEXT NOT NULL,
					origin TEXT NOT NULL DEFAULT 'user',
					confidence REAL DEFAULT 0,
					enabled INTEGER DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(pattern, category, match_kind)
				)`,
				`CREATE INDEX idx_category_rules_enabled ON category_rules(enabled)`,

				`CREATE TABLE IF NOT EXISTS merchant_mappings (
					merchant_pattern TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					use_count INTEGER DEFAULT 0,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS external_id_rules (
					external_id TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS categorization_records (
					item_id TEXT NOT NULL,
					item_type TEXT NOT NULL,
					category TEXT NOT NULL,
					confidence REAL DEFAULT 0,
					method TEXT NOT NULL,
					reasoning TEXT,
					alternatives TEXT,
					user_confirmed INTEGER DEFAULT 0,
					categorized_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (item_id, item_type)
				)`,
				`CREATE INDEX idx_records_category ON categorization_records(category)`,

				`CREATE TABLE IF NOT EXISTS embeddings (
					item_id TEXT NOT NULL,
					item_type TEXT NOT NULL,
					source_text TEXT NOT NULL,
					vector TEXT NOT NULL,
					category TEXT NOT NULL,
					confirmed INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (item_id, item_type)
				)`,
				`CREATE INDEX idx_embeddings_confirmed ON embeddings(confirmed, item_type)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add feedback log and training history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS feedback_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					item_id TEXT NOT NULL,
					item_type TEXT NOT NULL,
					item_text TEXT,
					suggested_category TEXT,
					actual_category TEXT NOT NULL,
					suggestion_method TEXT,
					suggestion_confidence REAL DEFAULT 0,
					processed INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_feedback_processed ON feedback_events(processed)`,

				`CREATE TABLE IF NOT EXISTS training_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					trigger_kind TEXT NOT NULL,
					feedback_count INTEGER DEFAULT 0,
					rules_generated INTEGER DEFAULT 0,
					embeddings_updated INTEGER DEFAULT 0,
					duration_ms INTEGER DEFAULT 0,
					notes TEXT,
					started_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed default categories and rules",
		Up: func(tx *sql.Tx) error {
			for _, cat := range defaultCategories() {
				keywords, err := json.Marshal(cat.Keywords)
				if err != nil {
					return fmt.Errorf("failed to marshal keywords: %w", err)
				}
				examples, err := json.Marshal(cat.Examples)
				if err != nil {
					return fmt.Errorf("failed to marshal examples: %w", err)
				}
				if _, err := tx.Exec(`
					INSERT OR IGNORE INTO categories (name, parent_name, description, keywords, examples, is_active)
					VALUES (?, ?, ?, ?, ?, 1)
				`, cat.Name, cat.ParentName, cat.Description, string(keywords), string(examples)); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", cat.Name, err)
				}
			}

			for _, r := range rule.DefaultRules() {
				if _, err := tx.Exec(`
					INSERT OR IGNORE INTO category_rules (name, pattern, match_kind, category, origin, confidence, enabled)
					VALUES (?, ?, ?, ?, ?, ?, 1)
				`, r.Name, r.Pattern, string(r.MatchKind), r.Category, string(r.Origin), r.Confidence); err != nil {
					return fmt.Errorf("failed to seed rule %q: %w", r.Name, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}
