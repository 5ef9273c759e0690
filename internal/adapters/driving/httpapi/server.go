// Package httpapi exposes the chatbot over HTTP: a status endpoint and
// a streaming chat endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/core/services"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

// persistTimeout bounds the transcript write after the response is
// already on the wire.
const persistTimeout = 5 * time.Second

// Answerer is the conversation pipeline surface the server drives.
// Satisfied by services.Chatbot.
type Answerer interface {
	Answer(ctx context.Context, question string, history []domain.ChatMessage, emit func(string) error) error
}

var _ Answerer = (*services.Chatbot)(nil)

// Server handles the HTTP surface of the assistant.
type Server struct {
	bot         Answerer
	sessions    driven.SessionStore
	contextName string
}

// NewServer builds a Server. sessions may be nil, in which case
// transcripts are not persisted.
func NewServer(bot Answerer, sessions driven.SessionStore, contextName string) *Server {
	return &Server{bot: bot, sessions: sessions, contextName: contextName}
}

// Router assembles the HTTP routes and middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleStatus)
	r.Post("/chat", s.handleChat)
	return r
}

// requestLogger logs one line per request through the project logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

type statusResponse struct {
	Status  string `json:"status"`
	Context string `json:"context"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Status:  "ok",
		Context: s.contextName,
	})
}

// chatRequest is the chat endpoint payload. SessionID and UserEmail
// are optional and only used when a session store is configured.
type chatRequest struct {
	Question  string               `json:"question"`
	History   []domain.ChatMessage `json:"history"`
	SessionID string               `json:"session_id,omitempty"`
	UserEmail string               `json:"user_email,omitempty"`
}

// handleChat streams the assistant's reply as plain text, flushing
// after every fragment so the client renders tokens as they arrive.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	var answer []byte
	emit := func(fragment string) error {
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		answer = append(answer, fragment...)
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := s.bot.Answer(r.Context(), req.Question, req.History, emit); err != nil {
		// the stream is already committed; nothing to send but a log line
		logger.Warn("chat stream aborted: %v", err)
		return
	}

	s.persistExchange(req, string(answer))
}

// persistExchange appends the question and answer to the session
// transcript after the response has been fully streamed. Persistence
// failures are logged, never surfaced: the user already has the
// answer.
func (s *Server) persistExchange(req chatRequest, answer string) {
	if s.sessions == nil || req.SessionID == "" || answer == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := s.appendWithCreate(ctx, req, domain.SessionMessage{Role: "user", Content: req.Question, Timestamp: now}); err != nil {
		logger.Warn("persist question: %v", err)
		return
	}
	err := s.sessions.AppendMessage(ctx, req.SessionID, domain.SessionMessage{
		Role: "assistant", Content: answer, Timestamp: now,
	})
	if err != nil {
		logger.Warn("persist answer: %v", err)
	}
}

// appendWithCreate appends to the session, creating it on first use.
func (s *Server) appendWithCreate(ctx context.Context, req chatRequest, msg domain.SessionMessage) error {
	err := s.sessions.AppendMessage(ctx, req.SessionID, msg)
	if err == nil {
		return nil
	}
	title := req.Question
	if len(title) > 60 {
		title = title[:60]
	}
	createErr := s.sessions.CreateSession(ctx, domain.Session{
		ID:        req.SessionID,
		UserEmail: req.UserEmail,
		Title:     title,
	})
	if createErr != nil {
		return err
	}
	return s.sessions.AppendMessage(ctx, req.SessionID, msg)
}

// NewSessionID mints a session identifier for clients that want
// transcript persistence.
func NewSessionID() string {
	return uuid.NewString()
}
