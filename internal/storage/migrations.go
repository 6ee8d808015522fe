package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
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
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					name TEXT NOT NULL,
					description TEXT,
					reference TEXT,
					amount REAL NOT NULL,
					currency TEXT NOT NULL DEFAULT 'EUR',
					partner_id TEXT,
					file_ids TEXT NOT NULL DEFAULT '[]',
					is_complete INTEGER NOT NULL DEFAULT 0,
					no_receipt_needed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user_complete ON transactions(user_id, is_complete)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,

				`CREATE TABLE IF NOT EXISTS files (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					storage_ref TEXT NOT NULL,
					source TEXT NOT NULL,
					sender_domain TEXT,
					partner_id TEXT,
					subject TEXT,
					amount_hints TEXT NOT NULL DEFAULT '[]',
					iban_hints TEXT NOT NULL DEFAULT '[]',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_files_user_source ON files(user_id, source)`,
				`CREATE INDEX idx_files_user_partner ON files(user_id, partner_id)`,

				`CREATE TABLE IF NOT EXISTS partners (
					id TEXT NOT NULL,
					user_id TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					vat_id TEXT,
					website TEXT,
					aliases TEXT NOT NULL DEFAULT '[]',
					ibans TEXT NOT NULL DEFAULT '[]',
					email_domains TEXT NOT NULL DEFAULT '[]',
					PRIMARY KEY (id, user_id)
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
		Version:     2,
		Description: "Add precision search queue",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS queue_items (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					scope TEXT NOT NULL,
					transaction_id TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					triggered_by TEXT NOT NULL,
					triggered_by_author TEXT NOT NULL,
					triggered_by_user_id TEXT,
					strategies TEXT NOT NULL,
					current_strategy_index INTEGER NOT NULL DEFAULT 0,
					transactions_to_process INTEGER NOT NULL DEFAULT 0,
					transactions_processed INTEGER NOT NULL DEFAULT 0,
					transactions_with_matches INTEGER NOT NULL DEFAULT 0,
					total_files_connected INTEGER NOT NULL DEFAULT 0,
					errors TEXT NOT NULL DEFAULT '[]',
					retry_count INTEGER NOT NULL DEFAULT 0,
					max_retries INTEGER NOT NULL DEFAULT 3,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					completed_at DATETIME
				)`,
				// One live job per user: the idempotency guard checks first,
				// this index makes the rule hold under races too.
				`CREATE UNIQUE INDEX idx_queue_items_active_user
					ON queue_items(user_id) WHERE status IN ('pending', 'processing')`,
				`CREATE INDEX idx_queue_items_status ON queue_items(status)`,
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
		Description: "Add claim lease and match provenance",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE queue_items ADD COLUMN claimed_at DATETIME`,
				`ALTER TABLE queue_items ADD COLUMN retried_at DATETIME`,
				`ALTER TABLE transactions ADD COLUMN matched_by TEXT`,
				`ALTER TABLE transactions ADD COLUMN match_strategy TEXT`,
				`ALTER TABLE transactions ADD COLUMN match_confidence REAL`,
				`ALTER TABLE transactions ADD COLUMN matched_at DATETIME`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
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

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
