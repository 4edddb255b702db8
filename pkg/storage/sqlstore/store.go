package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/storage"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

var tracer = otel.Tracer("github.com/platinummonkey/modgraph/pkg/storage/sqlstore")

// Store implements storage.Backend on database/sql. The graph revision lives
// in a single graph_revision row; Commit bumps it with a compare-and-set
// inside the same transaction as the mutation, so a stale commit writes
// nothing.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open database. The schema must already exist (see Migrate).
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Open connects using the storage config, applies the schema and returns a store
func Open(cfg storage.Config) (*Store, error) {
	var (
		dialect Dialect
		dsn     string
	)
	switch cfg.Type {
	case "postgres":
		dialect, dsn = DialectPostgres, cfg.PostgresURL
	case "sqlite":
		dialect, dsn = DialectSQLite, cfg.SQLitePath
	default:
		return nil, fmt.Errorf("unsupported sql storage type %q", cfg.Type)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}

	if dialect == DialectPostgres {
		db.SetMaxOpenConns(cfg.PostgresMaxConns)
		db.SetMaxIdleConns(cfg.PostgresMinConns)
		db.SetConnMaxLifetime(1 * time.Hour)
		db.SetConnMaxIdleTime(10 * time.Minute)
	} else {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	timeout := cfg.PostgresTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, dialect), nil
}

// DB exposes the underlying pool, e.g. for the SQL audit logger
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) readTxOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return &sql.TxOptions{ReadOnly: true}
}

// Snapshot implements modules.ModuleReader
func (s *Store) Snapshot(ctx context.Context) (*modules.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.Snapshot")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, s.readTxOptions())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var revision uint64
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM graph_revision WHERE id = 1`).Scan(&revision); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read revision: %w", err)
	}

	mods, err := loadModules(ctx, tx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("graph.revision", int64(revision)), attribute.Int("graph.modules", len(mods)))
	return &modules.Snapshot{Revision: revision, Modules: mods}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func loadModules(ctx context.Context, q querier) ([]modules.Module, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT module_key, installed_version, is_core, minimum_version, config, updated_at
		FROM modules
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}

	mods := make([]modules.Module, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			m      modules.Module
			config sql.NullString
		)
		if err := rows.Scan(&m.Key, &m.InstalledVersion, &m.IsCore, &m.MinimumVersion, &config, &m.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		if config.Valid && config.String != "" {
			m.Config = json.RawMessage(config.String)
		}
		index[m.Key] = len(mods)
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate modules: %w", err)
	}
	rows.Close()

	depRows, err := q.QueryContext(ctx, `
		SELECT module_key, dep_key, required_range, is_dev, is_required, resolved_version
		FROM module_dependencies
		ORDER BY module_key, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var (
			owner string
			d     modules.Dependency
		)
		if err := depRows.Scan(&owner, &d.Key, &d.Range, &d.IsDev, &d.IsRequired, &d.ResolvedVersion); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if i, ok := index[owner]; ok {
			mods[i].Dependencies = append(mods[i].Dependencies, d)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dependencies: %w", err)
	}
	return mods, nil
}

// Commit implements modules.ModuleWriter
func (s *Store) Commit(ctx context.Context, expected uint64, mutations ...modules.Mutation) (uint64, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.Commit", trace.WithAttributes(
		attribute.Int64("graph.expected_revision", int64(expected)),
		attribute.Int("graph.mutations", len(mutations)),
	))
	defer span.End()

	rev, err := s.commit(ctx, expected, mutations)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return rev, err
	}
	span.SetStatus(codes.Ok, "committed")
	return rev, nil
}

func (s *Store) commit(ctx context.Context, expected uint64, mutations []modules.Mutation) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return expected, fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE graph_revision SET revision = revision + 1 WHERE id = 1 AND revision = $1`, expected)
	if err != nil {
		return expected, fmt.Errorf("failed to bump revision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return expected, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var actual uint64
		if err := tx.QueryRowContext(ctx, `SELECT revision FROM graph_revision WHERE id = 1`).Scan(&actual); err != nil {
			return expected, fmt.Errorf("failed to read revision: %w", err)
		}
		return actual, &modules.StaleSnapshotError{Expected: expected, Actual: actual}
	}

	current, err := loadModules(ctx, tx)
	if err != nil {
		return expected, err
	}
	next, err := modules.ApplyMutations(current, s.now(), mutations...)
	if err != nil {
		return expected, err
	}

	touched := make(map[string]bool)
	for _, m := range mutations {
		touched[m.ModuleKey] = true
	}
	for position, m := range next {
		if !touched[m.Key] {
			continue
		}
		if err := writeModule(ctx, tx, position, m); err != nil {
			return expected, err
		}
	}

	if err := tx.Commit(); err != nil {
		return expected, fmt.Errorf("failed to commit: %w", err)
	}
	return expected + 1, nil
}

func writeModule(ctx context.Context, tx *sql.Tx, position int, m modules.Module) error {
	var config sql.NullString
	if len(m.Config) > 0 {
		config = sql.NullString{String: string(m.Config), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO modules (module_key, position, installed_version, is_core, minimum_version, config, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (module_key) DO UPDATE SET
			installed_version = EXCLUDED.installed_version,
			is_core = EXCLUDED.is_core,
			minimum_version = EXCLUDED.minimum_version,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`, m.Key, position, m.InstalledVersion, m.IsCore, m.MinimumVersion, config, m.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write module %s: %w", m.Key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM module_dependencies WHERE module_key = $1`, m.Key); err != nil {
		return fmt.Errorf("failed to clear dependencies of %s: %w", m.Key, err)
	}
	for i, d := range m.Dependencies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO module_dependencies (module_key, dep_key, position, required_range, is_dev, is_required, resolved_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.Key, d.Key, i, d.Range, d.IsDev, d.IsRequired, d.ResolvedVersion)
		if err != nil {
			return fmt.Errorf("failed to write dependency %s -> %s: %w", m.Key, d.Key, err)
		}
	}
	return nil
}

// ListVersions implements modules.ModuleReader
func (s *Store) ListVersions(ctx context.Context, moduleKey string) ([]modules.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_key, version, tag, changelog, features, dependencies, created_at
		FROM module_versions
		WHERE module_key = $1
		ORDER BY created_at, version
	`, moduleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	records := make([]modules.VersionRecord, 0)
	for rows.Next() {
		var (
			r                              modules.VersionRecord
			tag, changelog, features, deps string
		)
		if err := rows.Scan(&r.ModuleKey, &r.Version, &tag, &changelog, &features, &deps, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		r.Tag = modules.Tag(tag)
		if err := json.Unmarshal([]byte(changelog), &r.Changelog); err != nil {
			return nil, fmt.Errorf("failed to decode changelog of %s@%s: %w", r.ModuleKey, r.Version, err)
		}
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features of %s@%s: %w", r.ModuleKey, r.Version, err)
		}
		if err := json.Unmarshal([]byte(deps), &r.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to decode dependencies of %s@%s: %w", r.ModuleKey, r.Version, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	return versioning.MarkLatest(records), nil
}

// AppendVersion implements modules.ModuleWriter
func (s *Store) AppendVersion(ctx context.Context, record modules.VersionRecord) error {
	changelog, err := json.Marshal(nonNil(record.Changelog))
	if err != nil {
		return fmt.Errorf("failed to encode changelog: %w", err)
	}
	features, err := json.Marshal(record.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	deps, err := json.Marshal(record.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO module_versions (module_key, version, tag, changelog, features, dependencies, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ModuleKey, record.Version, string(record.Tag), string(changelog), string(features), string(deps), record.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s@%s", modules.ErrVersionExists, record.ModuleKey, record.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to append version: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isUniqueViolation recognizes primary key collisions from either driver
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// HealthCheck implements storage.Backend
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

// Close implements storage.Backend
func (s *Store) Close() error {
	return s.db.Close()
}
