package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Options configures Open.
type Options struct {
	Dialect   Dialect
	URL       string
	Namespace string // postgres schema placed first on the search_path
	MaxConns  int32
	MinConns  int32
}

// DB is the metadata database handle shared by the query layer. Postgres
// connections come from a pgx pool exposed through database/sql so that the
// repositories are written once for every dialect.
type DB struct {
	*sql.DB
	Dialect   Dialect
	Namespace string

	pool *pgxpool.Pool
}

// Open connects to the metadata database described by opts and pings it.
func Open(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Dialect.Name {
	case Postgres.Name:
		pool, err := NewPool(ctx, opts.URL, opts.Namespace, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return &DB{
			DB:        stdlib.OpenDBFromPool(pool),
			Dialect:   Postgres,
			Namespace: opts.Namespace,
			pool:      pool,
		}, nil
	case SQLite.Name:
		return OpenSQLite(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, opts.Dialect.Name)
	}
}

// NewPool creates a pgx pool whose connections resolve unqualified table
// names in namespace first.
func NewPool(ctx context.Context, databaseURL, namespace string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if namespace != "" {
		if err := ValidateNamespace(namespace); err != nil {
			return nil, err
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = namespace + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens a sqlite database file. An in-memory DSN is pinned to a
// single connection, since every sqlite connection to ":memory:" is a
// separate database.
func OpenSQLite(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	sqlDB, err := sql.Open(SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if isMemoryDSN(dsn) {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{DB: sqlDB, Dialect: SQLite}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// Close closes the handle and, for postgres, the pool behind it.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}
