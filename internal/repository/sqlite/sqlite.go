// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single
// file. No separate database server to install, configure, or manage.
// Use ":memory:" for an in-memory database in tests.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C
// compiler installed and cross-compilation becomes painful. modernc.org/sqlite
// is a pure Go translation of the SQLite C code — works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The underscore import is a "side-effect only" import. The sqlite
	// package's init() registers itself with database/sql as a driver named
	// "sqlite", which is what makes sql.Open("sqlite", ...) work.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. The repository implementations are
// views over it — Users(), Sessions(), and Tasks() — sharing the one pool,
// which keeps the FK cascades (user → sessions, user → tasks) in a single
// database file.
type DB struct {
	conn *sql.DB
}

// Users returns the UserRepository implementation.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Sessions returns the SessionRepository implementation.
func (db *DB) Sessions() *SessionDB { return &SessionDB{conn: db.conn} }

// Tasks returns the TaskRepository implementation.
func (db *DB) Tasks() *TaskDB { return &TaskDB{conn: db.conn} }

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/taskmanager.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection, always. SQLite allows a single writer anyway, and the
	// pragmas below are per-connection — a second pooled connection would
	// come up without them (and with ":memory:", with its own empty
	// database entirely).
	conn.SetMaxOpenConns(1)

	// Ping verifies the connection actually works. Without this, a bad path
	// or permissions issue would only surface on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads WHILE a write is happening — critical
	// for a web server where multiple requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We need them ON: deleting a
	// user must cascade to their sessions and tasks.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
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

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is idempotent, so
// this is safe to run on every start.
//
// SCHEMA NOTES:
//   - users.email is UNIQUE — the INSERT itself enforces the one-account-per-
//     email invariant, no separate existence check needed.
//   - sessions holds one row per live token. ON DELETE CASCADE means deleting
//     a user atomically revokes every session they had.
//   - tasks.user_id also cascades, so account deletion takes the user's tasks
//     with it in the same statement.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			age           INTEGER NOT NULL DEFAULT 0,
			avatar        BLOB,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token      TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			completed   INTEGER NOT NULL DEFAULT 0,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tasks table: %w", err)
	}

	return nil
}
