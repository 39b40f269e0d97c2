// Package archive keeps a write-only transcript of completed turns in SQLite.
// It is an audit trail: nothing reads it back into live session state.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Archive records completed turns. Writes are best-effort; callers log and
// move on when Record fails.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the transcript database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	createTurnsTable := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_text TEXT NOT NULL,
		assistant_text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createTurnsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create turns table: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record appends one completed turn.
func (a *Archive) Record(ctx context.Context, sessionID, userText, assistantText string) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO turns (session_id, user_text, assistant_text, created_at) VALUES (?, ?, ?, ?)",
		sessionID, userText, assistantText, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// Count returns the number of archived turns for a session.
func (a *Archive) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
