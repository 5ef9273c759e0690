// Package sqlite persists conversation transcripts in a SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.SessionStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_email TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	messages   TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_email ON sessions(user_email);
`

// Store is a SQLite-backed session store. The transcript is one JSON
// column per session: sessions are append-only and always read whole,
// so a messages table would only add joins.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the session database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateSession creates a new session record.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	messages := session.Messages
	if messages == nil {
		messages = []domain.SessionMessage{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	now := time.Now().UTC()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_email, title, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserEmail, session.Title, string(encoded), createdAt, updatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendMessage appends one message to a session transcript.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg domain.SessionMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var encoded string
	err = tx.QueryRowContext(ctx,
		`SELECT messages FROM sessions WHERE session_id = ?`, sessionID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	var messages []domain.SessionMessage
	if err := json.Unmarshal([]byte(encoded), &messages); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	messages = append(messages, msg)
	updated, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET messages = ?, updated_at = ? WHERE session_id = ?`,
		string(updated), time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return tx.Commit()
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var (
		session domain.Session
		encoded string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_email, title, messages, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&session.ID, &session.UserEmail, &session.Title, &encoded,
			&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &session.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &session, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
