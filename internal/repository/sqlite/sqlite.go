// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. A forum of this
// size runs comfortably on one server, and tests use ":memory:".
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so no CGo,
// no C compiler needed, cross-compilation just works.
//
// WRITE DISCIPLINE:
// SQLite allows many readers but only ONE writer at a time. Every write in this
// package goes through withTx, which takes a process-wide mutex before BEGIN.
// That gives us two things:
//   - No SQLITE_BUSY errors from two transactions racing to upgrade to a write lock
//   - The vote upsert and the score recompute for a target are never interleaved
//     with another voter's upsert on the same target (no lost updates)
//
// Reads do not take the mutex and run concurrently (WAL mode).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/sakif/xswarm-forum/internal/apperror"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/forum.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests; lost on close)
//
// PRAGMAS IN THE DSN:
// database/sql keeps a POOL of connections, and a PRAGMA run with conn.Exec only
// configures whichever connection happened to run it. Passing pragmas in the DSN
// (`_pragma=foreign_keys(1)`) makes the driver apply them to EVERY connection it
// opens. foreign_keys matters here: the ON DELETE CASCADE clauses depend on it.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so every query sees the same data.
	if isMemory(dbPath) {
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

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// dsn appends the connection pragmas to dbPath.
// WAL is skipped for in-memory databases, which do not support it.
func dsn(dbPath string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}
	if !isMemory(dbPath) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(pragmas, "&")
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a write transaction, holding the write mutex for the
// whole transaction. fn's error rolls back; nil commits.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		// Rollback error is secondary; the caller needs fn's error.
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// requireActiveAuthor reads userID's row inside tx and fails with
// apperror.ErrTerminated if the account is banned. TerminateUser takes the
// same write mutex, so once this passes no termination can land before the
// caller's INSERT commits.
func requireActiveAuthor(ctx context.Context, tx *sql.Tx, userID string) error {
	var (
		username   string
		terminated bool
	)
	err := tx.QueryRowContext(ctx,
		`SELECT username, terminated FROM users WHERE id = ?`, userID,
	).Scan(&username, &terminated)
	if err == sql.ErrNoRows {
		return apperror.NotFound("user", userID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking author %s: %w", userID, err)
	}
	if terminated {
		return apperror.Terminated(username)
	}
	return nil
}

// uniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint, and on which "table.column" it fired. modernc.org/sqlite
// surfaces these as "constraint failed: UNIQUE constraint failed: users.username (2067)".
func uniqueViolation(err error) (column string, ok bool) {
	if err == nil {
		return "", false
	}
	const marker = "UNIQUE constraint failed: "
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	column = msg[i+len(marker):]
	if j := strings.IndexAny(column, " ,"); j >= 0 {
		column = column[:j]
	}
	return column, true
}

// migrate creates the schema.
//
// CREATE TABLE IF NOT EXISTS is safe to run on every start.
//
// SCHEMA NOTES:
//   - post_votes / comment_votes use (user_id, target) as PRIMARY KEY; this is the
//     one-vote-per-user-per-target rule, enforced by the database itself.
//   - value has a CHECK constraint: only -1 and +1 are storable.
//   - comments.parent_id references comments(id) ON DELETE CASCADE, so deleting a
//     comment removes its whole reply subtree even if a caller forgets to.
//   - users rows are never deleted (terminated accounts are kept), so user_id
//     foreign keys have no cascade.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			pfp           TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			is_moderator  INTEGER NOT NULL DEFAULT 0,
			terminated    INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			title      TEXT NOT NULL,
			body       TEXT NOT NULL DEFAULT '',
			community  TEXT NOT NULL DEFAULT '',
			score      INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
		CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id);
		CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id         TEXT PRIMARY KEY,
			post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id),
			parent_id  TEXT REFERENCES comments(id) ON DELETE CASCADE,
			body       TEXT NOT NULL,
			score      INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_comments_post_parent ON comments(post_id, parent_id);
		CREATE INDEX IF NOT EXISTS idx_comments_parent_id ON comments(parent_id);
		CREATE INDEX IF NOT EXISTS idx_comments_user_id ON comments(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS post_votes (
			user_id    TEXT NOT NULL REFERENCES users(id),
			post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			value      INTEGER NOT NULL CHECK (value IN (-1, 1)),
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, post_id)
		);
		CREATE INDEX IF NOT EXISTS idx_post_votes_post_id ON post_votes(post_id);

		CREATE TABLE IF NOT EXISTS comment_votes (
			user_id    TEXT NOT NULL REFERENCES users(id),
			comment_id TEXT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
			value      INTEGER NOT NULL CHECK (value IN (-1, 1)),
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, comment_id)
		);
		CREATE INDEX IF NOT EXISTS idx_comment_votes_comment_id ON comment_votes(comment_id);
	`)
	if err != nil {
		return fmt.Errorf("creating vote tables: %w", err)
	}

	return nil
}
