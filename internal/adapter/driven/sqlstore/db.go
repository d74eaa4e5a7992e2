// Package sqlstore implements the persistence ports on SQLite (default) or
// Postgres. Queries are written once with ? placeholders and rebound for the
// active dialect.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the "pgx" database/sql driver.
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL engine behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB provides reader and writer connection pools. For SQLite the writer is
// limited to a single connection so concurrent upserts are serialized and
// never hit "database is locked"; the reader pool allows up to 4 concurrent
// readers. For Postgres both fields share one pool and the unique index
// serializes conflicting writes.
type DB struct {
	Writer  *sqlx.DB
	Reader  *sqlx.DB
	dialect Dialect
}

// Open opens the store for the given driver ("sqlite" or "postgres").
// For SQLite dsn is a file path; for Postgres it is a connection URL.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch Dialect(driver) {
	case DialectSQLite, "":
		return NewSQLiteDB(ctx, dsn)
	case DialectPostgres:
		return NewPostgresDB(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewSQLiteDB creates a dual-connection SQLite database with WAL mode, busy
// timeout, synchronous NORMAL and a 64MB cache.
func NewSQLiteDB(ctx context.Context, dbPath string) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-64000)",
		dbPath,
	)
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, dsn string) (*DB, error) {
	writer, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader, dialect: DialectSQLite}, nil
}

// NewPostgresDB connects to Postgres through the pgx stdlib driver.
func NewPostgresDB(ctx context.Context, dsn string) (*DB, error) {
	pool, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pool.SetMaxOpenConns(10)
	pool.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{Writer: pool, Reader: pool, dialect: DialectPostgres}, nil
}

// Dialect returns the SQL engine behind the DB.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks that both pools can reach the database.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if db.Reader != db.Writer {
		if err := db.Reader.PingContext(ctx); err != nil {
			return fmt.Errorf("ping reader: %w", err)
		}
	}
	return nil
}

// Close closes both pools. Returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error

	if db.Reader != db.Writer {
		if err := db.Reader.Close(); err != nil {
			firstErr = fmt.Errorf("close reader: %w", err)
		}
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}

// rebind converts ? placeholders to the dialect's bind style.
func (db *DB) rebind(query string) string {
	return db.Writer.Rebind(query)
}
