package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration is one versioned schema change. Built-in migrations carry a list
// of statements; migrations loaded from a directory carry the file body in
// SQL and run it as a single statement batch.
type Migration struct {
	Version    int
	Name       string
	SQL        string
	Statements []string
	AppliedAt  time.Time
}

func (m Migration) statements() []string {
	if len(m.Statements) > 0 {
		return m.Statements
	}
	return []string{m.SQL}
}

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the built-in report schema plus any extra SQL files from
// dir against the metadata database.
type Migrator struct {
	db      *DB
	dir     string
	builtin []Migration
}

// NewMigrator creates a Migrator. dir may be empty.
func NewMigrator(d *DB, builtin []Migration, migrationsDir string) *Migrator {
	return &Migrator{
		db:      d,
		dir:     migrationsDir,
		builtin: builtin,
	}
}

// EnsureMigrationsTable creates the namespace (postgres only) and the
// _migrations tracking table if they do not already exist.
func (m *Migrator) EnsureMigrationsTable(ctx context.Context) error {
	d := m.db.Dialect
	if d.SupportsSchemas && m.db.Namespace != "" {
		if err := ValidateNamespace(m.db.Namespace); err != nil {
			return err
		}
		if _, err := m.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+m.db.Namespace); err != nil {
			return fmt.Errorf("create namespace %s: %w", m.db.Namespace, err)
		}
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS _migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at %s DEFAULT %s
)`, d.DatetimeTzType, d.Now)

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}
	return nil
}

// LoadMigrations returns the built-in migrations followed by the .sql files
// in the migrations directory, sorted by version. File versions come from the
// filename prefix ("101_labs_index.sql" -> 101); files without a numeric
// prefix are skipped. A file reusing a built-in version is an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	migrations := append([]Migration(nil), m.builtin...)
	seen := make(map[int]string, len(migrations))
	for _, mig := range migrations {
		seen[mig.Version] = mig.Name
	}

	if m.dir != "" {
		entries, err := os.ReadDir(m.dir)
		if err != nil {
			return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			name := entry.Name()
			if !strings.HasSuffix(name, ".sql") {
				continue
			}

			parts := strings.SplitN(name, "_", 2)
			if len(parts) < 2 {
				continue
			}

			version, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			if prev, ok := seen[version]; ok {
				return nil, fmt.Errorf("migration %s reuses version %d of %s", name, version, prev)
			}
			seen[version] = name

			content, err := os.ReadFile(filepath.Join(m.dir, name))
			if err != nil {
				return nil, fmt.Errorf("read migration file %s: %w", name, err)
			}

			migrations = append(migrations, Migration{
				Version: version,
				Name:    name,
				SQL:     string(content),
			})
		}
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// AppliedVersions returns the versions already recorded in _migrations with
// the time each was applied.
func (m *Migrator) AppliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version, applied_at FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at NullTime
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = at.Time
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}

	return applied, nil
}

// Up applies all pending migrations in version order. Each migration runs in
// its own transaction. Returns the count of applied migrations.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.UpTo(ctx, 0)
}

// UpTo applies pending migrations up to (and including) targetVersion. If
// targetVersion is 0, all pending migrations are applied.
func (m *Migrator) UpTo(ctx context.Context, targetVersion int) (int, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if targetVersion > 0 && mig.Version > targetVersion {
			break
		}
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		if err := m.applyMigration(ctx, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}

	return count, nil
}

func (m *Migrator) applyMigration(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range mig.statements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute SQL: %w", err)
		}
	}

	record := fmt.Sprintf("INSERT INTO _migrations (version, name) VALUES (%s, %s)",
		m.db.Dialect.Placeholder(1), m.db.Dialect.Placeholder(2))
	if _, err := tx.ExecContext(ctx, record, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// Status returns every known migration with whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		status := MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
		}
		if at, ok := applied[mig.Version]; ok {
			status.Applied = true
			appliedAt := at
			status.AppliedAt = &appliedAt
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}
