// Package store implements the durable relational backend of the VIN
// ledger over database/sql. It supports Postgres (lib/pq) in production
// and SQLite (modernc.org/sqlite) for tests and single-node deployments;
// queries use $1-style ordinal placeholders, which both drivers accept.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store wraps the database handle together with its dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Dialect captures the small set of behaviors that differ between the
// supported backends.
type Dialect interface {
	Name() string
	// LockChain serializes concurrent chain appenders within tx.
	LockChain(ctx context.Context, tx *sql.Tx) error
	// JSONType is the column type used for JSON payloads.
	JSONType() string
	// SerialPK is the column definition for autoincrement primary keys.
	SerialPK() string
}

type postgresDialect struct{}

func (postgresDialect) Name() string     { return "postgres" }
func (postgresDialect) JSONType() string { return "JSONB" }
func (postgresDialect) SerialPK() string { return "BIGSERIAL PRIMARY KEY" }

// LockChain takes a transaction-scoped advisory lock so that all chain
// appenders serialize, including the empty-chain case that a row-level
// FOR UPDATE cannot cover.
func (postgresDialect) LockChain(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(7213360633)")
	return err
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string     { return "sqlite" }
func (sqliteDialect) JSONType() string { return "TEXT" }
func (sqliteDialect) SerialPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

// LockChain is a no-op: the store opens SQLite with a single connection,
// so transactions already execute one at a time.
func (sqliteDialect) LockChain(ctx context.Context, tx *sql.Tx) error { return nil }

// Open connects to the database named by driver ("postgres" or
// "sqlite") and dsn, and runs the idempotent migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var dialect Dialect
	switch driver {
	case "postgres":
		dialect = postgresDialect{}
	case "sqlite":
		dialect = sqliteDialect{}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		// SQLite allows one writer; a single pooled connection keeps
		// database/sql from returning SQLITE_BUSY under concurrency.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing handle, without migrating. Used by tests
// that drive sqlmock, and by callers that manage migrations themselves.
func NewWithDB(db *sql.DB, driver string) *Store {
	var dialect Dialect = postgresDialect{}
	if driver == "sqlite" {
		dialect = sqliteDialect{}
	}
	return &Store{db: db, dialect: dialect}
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the active dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// BeginTx starts a transaction.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }
