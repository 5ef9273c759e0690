package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miabe-ai/campusgpt/internal/adapters/driven/storage/sqlite"
	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// scriptedBot emits a fixed sequence of fragments.
type scriptedBot struct {
	fragments []string

	gotQuestion string
	gotHistory  []domain.ChatMessage
}

func (b *scriptedBot) Answer(ctx context.Context, question string, history []domain.ChatMessage, emit func(string) error) error {
	b.gotQuestion = question
	b.gotHistory = history
	for _, f := range b.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(&scriptedBot{}, nil, "Université de Lomé")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestChatStreamsPlainText(t *testing.T) {
	bot := &scriptedBot{fragments: []string{"Les frais ", "sont de ", "50000 FCFA."}}
	srv := NewServer(bot, nil, "Université de Lomé")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"question":"Quels sont les frais ?","history":[{"role":"user","content":"bonjour"}]}`
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	var sb strings.Builder
	buf := make([]byte, 1024)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Equal(t, "Les frais sont de 50000 FCFA.", sb.String())
	assert.Equal(t, "Quels sont les frais ?", bot.gotQuestion)
	require.Len(t, bot.gotHistory, 1)
	assert.Equal(t, "bonjour", bot.gotHistory[0].Content)
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := NewServer(&scriptedBot{}, nil, "Université de Lomé")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"question":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatPersistsExchange(t *testing.T) {
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	bot := &scriptedBot{fragments: []string{"Bonjour !"}}
	srv := NewServer(bot, store, "Université de Lomé")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sessionID := NewSessionID()
	body := `{"question":"bonjour","session_id":"` + sessionID + `"}`
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	session, err := store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "bonjour", session.Messages[0].Content)
	assert.Equal(t, "Bonjour !", session.Messages[1].Content)
}
