// Package storage provides SQLite conversation storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/coursebot/model"
)

// SqliteStore implements ConversationStore using SQLite.
// Each Append is one IMMEDIATE transaction; appends to the same session
// are additionally serialized in-process.
type SqliteStore struct {
	db    *sql.DB
	locks sessionLocks
	opts  Options
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string, opts ...Option) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteStore(db, opts)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory(opts ...Option) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:?_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteStore(db, opts)
}

func newSqliteStore(db *sql.DB, opts []Option) (*SqliteStore, error) {
	s := &SqliteStore{db: db, opts: resolveOptions(opts)}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, message_index);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// History implements ConversationStore.
func (s *SqliteStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT message_index, role, content FROM messages
			WHERE session_id = ?
			ORDER BY message_index DESC
			LIMIT ?
		) ORDER BY message_index ASC`,
		sessionID, s.opts.Window*2)
	if err != nil {
		return nil, historyError(sessionID, fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()

	turns := []model.Turn{} // Start with empty slice, not nil
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, historyError(sessionID, fmt.Errorf("failed to scan message: %w", err))
		}
		turns = append(turns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, historyError(sessionID, fmt.Errorf("error iterating messages: %w", err))
	}

	return turns, nil
}

// Append implements ConversationStore.
func (s *SqliteStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := s.append(ctx, sessionID, userText, assistantText); err != nil {
		return appendError(sessionID, err)
	}
	return nil
}

func (s *SqliteStore) append(ctx context.Context, sessionID, userText, assistantText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id) VALUES (?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = datetime('now')`,
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(message_index) + 1, 0) FROM messages WHERE session_id = ?",
		sessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read message index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, message_index, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, turn := range exchangeTurns(userText, assistantText) {
		if _, err := stmt.ExecContext(ctx, sessionID, next+i, turn.Role, turn.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	// Keep only the newest Retain exchanges.
	cutoff := next + 2 - s.opts.Retain*2
	if cutoff > 0 {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM messages WHERE session_id = ? AND message_index < ?",
			sessionID, cutoff)
		if err != nil {
			return fmt.Errorf("failed to trim messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete deletes a session and its history.
func (s *SqliteStore) Delete(ctx context.Context, sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM sessions ORDER BY updated_at DESC, session_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Verify SqliteStore implements ConversationStore
var _ ConversationStore = (*SqliteStore)(nil)
