package driven

import (
	"context"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// SessionStore persists conversation transcripts.
//
// Only create and append are exposed: the chat core never lists or
// deletes sessions, that surface belongs to the application layer.
type SessionStore interface {
	// CreateSession creates a new session record.
	CreateSession(ctx context.Context, session domain.Session) error

	// AppendMessage appends one message to a session transcript and
	// bumps its updated timestamp. Returns domain.ErrNotFound for an
	// unknown session.
	AppendMessage(ctx context.Context, sessionID string, msg domain.SessionMessage) error

	// GetSession loads a session by id.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Close releases the underlying store.
	Close() error
}
