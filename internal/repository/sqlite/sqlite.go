// Package sqlite implements the repository interfaces using SQLite as the
// storage backend (modernc.org/sqlite, the pure-Go driver, so builds stay
// CGo-free).
//
// Users, groups and snipes are document-shaped records: inventories, rosters
// and vote maps live inside the parent. We keep each record a single row and
// store the nested fields as JSON TEXT columns. Every read-modify-write goes
// through a BEGIN IMMEDIATE transaction (withTx below), which takes the
// write lock up front so the read inside the transaction cannot go stale
// before the write lands — the optimistic-retry analogue for an embedded
// store. SQLITE_BUSY is the transient conflict signal; we retry a bounded
// number of times with a small backoff before giving up.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

const (
	// maxTxRetries bounds how often a busy transaction is retried before the
	// failure surfaces to the caller.
	maxTxRetries = 5
	retryBackoff = 25 * time.Millisecond
)

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/snipetag.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (great for tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — important for
	// a server where dodge checks race resolve sweeps.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}
	// Let the driver wait on the file lock instead of failing instantly.
	if _, err := conn.Exec("PRAGMA busy_timeout=3000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			points          INTEGER NOT NULL DEFAULT 0,
			active_logo_id  TEXT NOT NULL DEFAULT 'default',
			inventory       TEXT NOT NULL DEFAULT '[]',
			active_powerups TEXT NOT NULL DEFAULT '[]',
			group_ids       TEXT NOT NULL DEFAULT '[]',
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS groups (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			created_by        TEXT NOT NULL,
			invite_code       TEXT NOT NULL UNIQUE,
			members           TEXT NOT NULL DEFAULT '[]',
			active_accusation TEXT,
			created_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_groups_invite_code ON groups(invite_code);
	`)
	if err != nil {
		return fmt.Errorf("creating groups table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snipes (
			id         TEXT PRIMARY KEY,
			sniper_id  TEXT NOT NULL,
			target_id  TEXT NOT NULL,
			group_id   TEXT NOT NULL,
			photo_ref  TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'pending',
			points     INTEGER NOT NULL DEFAULT 0,
			powerups   TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snipes_target_status ON snipes(target_id, status);
		CREATE INDEX IF NOT EXISTS idx_snipes_status_created ON snipes(status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating snipes table: %w", err)
	}

	return nil
}

// retryable reports whether an error is a transient lock conflict worth
// retrying. modernc's driver wraps SQLITE_BUSY/SQLITE_LOCKED into its error
// string; matching on the text keeps us off driver internals.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// withTx runs fn inside a BEGIN IMMEDIATE transaction, retrying transient
// lock conflicts up to maxTxRetries times. Non-retryable errors from fn roll
// back and propagate unchanged.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := db.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("sqlite: transaction kept conflicting after %d attempts: %w", maxTxRetries, lastErr)
}

func (db *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// database/sql has no IMMEDIATE flag; issuing a write-intent statement
	// first acquires the reserved lock, which is what IMMEDIATE would do.
	if _, err := tx.ExecContext(ctx, "UPDATE users SET id = id WHERE 0"); err != nil {
		tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// marshalJSON / unmarshalJSON keep the document-column plumbing in one place.

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding document column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("sqlite: decoding document column: %w", err)
	}
	return nil
}
