// Package store is the shared persistence base: a relational schema over
// SQLite, one embedded schema string, a single-writer connection pool and a
// transaction helper. The per-table queries live in the domain packages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL handle so every domain store (account, ledger, order,
// trade, risk, distribution, broker log, grade) can share one pool and one
// transaction helper.
type DB struct {
	SQL *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path. An empty
// path means in-memory, useful for tests.
func Open(path string) (*DB, error) {
	dsn := path
	if path == "" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite prefers a single writer.
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{SQL: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// WithTx runs fn inside one serializable database transaction spanning all
// of its reads and writes. The pool holds a single connection, so
// transactions never overlap within the process and a balance
// recomputation cannot race another writer between its read and its write.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.SQL.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: record not found")
