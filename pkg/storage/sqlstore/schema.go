package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects driver specific behaviour
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// schema is valid for both PostgreSQL and SQLite (3.24+). Placeholders in
// every statement of this package appear in ascending order, which SQLite
// requires for $N parameters.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS graph_revision (
		id INTEGER PRIMARY KEY,
		revision BIGINT NOT NULL
	)`,
	`INSERT INTO graph_revision (id, revision) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS modules (
		module_key TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		installed_version TEXT NOT NULL,
		is_core BOOLEAN NOT NULL DEFAULT FALSE,
		minimum_version TEXT NOT NULL DEFAULT '',
		config TEXT,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS module_dependencies (
		module_key TEXT NOT NULL,
		dep_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		required_range TEXT NOT NULL,
		is_dev BOOLEAN NOT NULL DEFAULT FALSE,
		is_required BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_version TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (module_key, dep_key)
	)`,
	`CREATE TABLE IF NOT EXISTS module_versions (
		module_key TEXT NOT NULL,
		version TEXT NOT NULL,
		tag TEXT NOT NULL,
		changelog TEXT NOT NULL DEFAULT '[]',
		features TEXT NOT NULL DEFAULT '[]',
		dependencies TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (module_key, version)
	)`,
	`CREATE TABLE IF NOT EXISTS rollback_points (
		id TEXT PRIMARY KEY,
		module_key TEXT NOT NULL,
		version TEXT NOT NULL,
		blob_key TEXT NOT NULL,
		checksum TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rollback_points_module ON rollback_points (module_key)`,
	`CREATE INDEX IF NOT EXISTS idx_rollback_points_status ON rollback_points (status, created_at)`,
}

// Migrate creates the tables the store needs if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}
	return nil
}
