// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no CGo).
//
// Every mutation is a single statement or a short transaction, so concurrent
// requests serialise inside SQLite instead of racing on a shared file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/birthday-reminder/internal/repository"
)

// compile-time check that *DB provides the full store surface
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/birthdays.db" → file-based database
//   - ":memory:"          → in-memory database, used by tests
//
// Pragmas are passed in the DSN so they apply to every pooled connection,
// not just the first one.
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own database, so the pool must
	// be pinned to a single connection to keep one shared schema.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Transactions take the write lock up front (_txlock=immediate). A deferred
// transaction that reads and then writes cannot upgrade its lock under WAL
// and fails with SQLITE_BUSY without waiting out busy_timeout.
func dsn(dbPath string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}
	if dbPath != ":memory:" {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return "file:" + dbPath + "?" + strings.Join(pragmas, "&")
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			birth_month   INTEGER NOT NULL CHECK (birth_month BETWEEN 1 AND 12),
			birth_day     INTEGER NOT NULL CHECK (birth_day BETWEEN 1 AND 31),
			reminder_days INTEGER NOT NULL DEFAULT 1,
			email         TEXT NOT NULL DEFAULT '',
			display_name  TEXT NOT NULL DEFAULT '',
			city          TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_birthday ON accounts(birth_month, birth_day);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// id preserves insertion order, which is the order subscriptions are listed in.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			subscriber TEXT NOT NULL REFERENCES accounts(username),
			target     TEXT NOT NULL REFERENCES accounts(username),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (subscriber, target)
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_target ON subscriptions(target);
	`)
	if err != nil {
		return fmt.Errorf("creating subscriptions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sent_notifications (
			kind      TEXT NOT NULL,
			subject   TEXT NOT NULL,
			recipient TEXT NOT NULL,
			date      TEXT NOT NULL,
			channel   TEXT NOT NULL,
			sent_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (kind, subject, recipient, date, channel)
		);
		CREATE INDEX IF NOT EXISTS idx_sent_notifications_date ON sent_notifications(date);
	`)
	if err != nil {
		return fmt.Errorf("creating sent_notifications table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a PRIMARY KEY or UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
