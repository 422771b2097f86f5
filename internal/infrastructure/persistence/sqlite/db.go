// Package sqlite implements progression.Repository on SQLite through sqlx.
// It is the default driver for local development and single-node installs.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// DB wraps a sqlx handle opened on the sqlite3 driver.
type DB struct {
	*sqlx.DB
}

// Open connects to path (":memory:" for a private in-memory database) and
// creates the schema. SQLite has a single writer, so the pool is pinned to
// one connection and transactions serialise naturally.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = "progression.db"
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" && !strings.HasPrefix(path, "file::memory:") {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to connect: %w", err)
	}
	db.SetMaxOpenConns(1)

	wrapped := &DB{DB: db}
	if err := wrapped.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return wrapped, nil
}

func (db *DB) createTables(ctx context.Context) error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS progression_users (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		avatar_ref TEXT NOT NULL DEFAULT '',
		experience INTEGER NOT NULL DEFAULT 0 CHECK (experience >= 0),
		statistics TEXT NOT NULL DEFAULT '{}',
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_activity_date TEXT,
		badges TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`

	ledgerTable := `
	CREATE TABLE IF NOT EXISTS action_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		points_awarded INTEGER NOT NULL CHECK (points_awarded >= 0),
		description TEXT NOT NULL DEFAULT '',
		related_post_id TEXT,
		related_comment_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		idempotency_key TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES progression_users(id) ON DELETE CASCADE
	);`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_progression_users_leaderboard ON progression_users(experience DESC, seq ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_action_ledger_user_created ON action_ledger(user_id, created_at DESC);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_action_ledger_idempotency ON action_ledger(user_id, idempotency_key) WHERE idempotency_key IS NOT NULL;`,
	}

	for _, query := range append([]string{usersTable, ledgerTable}, indexes...) {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("sqlite: failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database handle.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
