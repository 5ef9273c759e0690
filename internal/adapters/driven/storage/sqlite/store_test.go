package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, store.CreateSession(ctx, domain.Session{
		ID:        id,
		UserEmail: "etudiant@univ.example.org",
		Title:     "Inscriptions",
	}))

	got, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "etudiant@univ.example.org", got.UserEmail)
	assert.Equal(t, "Inscriptions", got.Title)
	assert.Empty(t, got.Messages)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestAppendMessageOrdersTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, store.CreateSession(ctx, domain.Session{ID: id}))

	require.NoError(t, store.AppendMessage(ctx, id, domain.SessionMessage{
		Role: "user", Content: "Quels sont les frais ?",
	}))
	require.NoError(t, store.AppendMessage(ctx, id, domain.SessionMessage{
		Role: "assistant", Content: "Les frais sont de 50000 FCFA.",
	}))

	got, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestAppendMessageUnknownSession(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendMessage(context.Background(), "missing", domain.SessionMessage{
		Role: "user", Content: "bonjour", Timestamp: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSessionUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateSessionDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, store.CreateSession(ctx, domain.Session{ID: id}))
	assert.Error(t, store.CreateSession(ctx, domain.Session{ID: id}))
}
