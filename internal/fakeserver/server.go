// ABOUTME: In-process chat server that speaks the event-stream protocol for tests and demos
// ABOUTME: Echoes messages token by token, simulates a tool call, and fails on request

package fakeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Options tunes the simulated server.
type Options struct {
	ChatPath    string        // default "/api/chat/stream"
	SessionPath string        // default "/api/chat/sessions"
	TokenDelay  time.Duration // pause between tokens
	Heartbeats  int           // heartbeat frames sent before the reply
	FrameIDs    bool          // number frames with server-wide id: lines
}

// Server simulates the chat backend.
type Server struct {
	opts    Options
	logger  *slog.Logger
	frameID atomic.Int64 // ids are unique across responses

	mu       sync.Mutex
	sessions map[string]int // session id -> turns served
	deleted  []string
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID *string        `json:"session_id"`
	Context   map[string]any `json:"context"`
}

// New creates a server. Pass nil logger for default.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChatPath == "" {
		opts.ChatPath = "/api/chat/stream"
	}
	if opts.SessionPath == "" {
		opts.SessionPath = "/api/chat/sessions"
	}
	return &Server{
		opts:     opts,
		logger:   logger.With("component", "fakeserver"),
		sessions: make(map[string]int),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.ChatPath, s.handleChat)
	mux.HandleFunc(strings.TrimSuffix(s.opts.SessionPath, "/")+"/", s.handleSession)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// HasSession reports whether the server holds a session.
func (s *Server) HasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Deleted returns the ids of sessions removed through DELETE.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sessionID := s.openSession(req.SessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sw := &sseWriter{w: w, flusher: flusher}
	if s.opts.FrameIDs {
		sw.nextID = s.frameID.Add
	}
	if err := s.streamTurn(r.Context(), sw, sessionID, req.Message); err != nil {
		s.logger.Debug("turn stream ended early", "session_id", sessionID, "error", err)
	}
}

// streamTurn writes one full turn. The keywords "fail" and "search" in the
// message select the error and tool paths.
func (s *Server) streamTurn(ctx context.Context, sw *sseWriter, sessionID, message string) error {
	now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

	steps := []struct {
		event string
		data  any
	}{
		{"session_start", map[string]string{"session_id": sessionID}},
		{"message_received", map[string]string{"message": message, "timestamp": now()}},
		{"processing_start", map[string]string{}},
		{"thinking", map[string]string{"description": "Reading your message"}},
	}
	for _, st := range steps {
		if err := sw.event(st.event, st.data); err != nil {
			return err
		}
	}

	for range s.opts.Heartbeats {
		if err := s.pause(ctx); err != nil {
			return err
		}
		if err := sw.event("heartbeat", map[string]string{}); err != nil {
			return err
		}
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "fail") {
		return sw.event("error", map[string]string{"error": "simulated failure"})
	}

	if strings.Contains(lower, "search") {
		if err := sw.event("tool_call", map[string]any{
			"tool_name":  "search",
			"parameters": map[string]any{"query": message},
		}); err != nil {
			return err
		}
		if err := sw.event("thinking", map[string]string{"step": "Reading search results"}); err != nil {
			return err
		}
		if err := sw.event("tool_result", map[string]any{
			"tool_name": "search",
			"result":    map[string]any{"n": 3},
		}); err != nil {
			return err
		}
	}

	for _, tok := range Tokens(EchoReply(message)) {
		if err := s.pause(ctx); err != nil {
			return err
		}
		if err := sw.event("token", map[string]string{"token": tok}); err != nil {
			return err
		}
	}

	return sw.event("message_complete", map[string]string{"timestamp": now()})
}

func (s *Server) pause(ctx context.Context) error {
	if s.opts.TokenDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.TokenDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// openSession adopts the requested session or starts a new one.
func (s *Server) openSession(requested *string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ""
	if requested != nil {
		id = *requested
	}
	if id == "" {
		id = uuid.New().String()
		s.logger.Info("session started", "session_id", id)
	}
	s.sessions[id]++
	return id
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(s.opts.SessionPath, "/")+"/")
	if id == "" || strings.Contains(id, "/") {
		sendJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.deleted = append(s.deleted, id)
	}
	s.mu.Unlock()

	if !ok {
		sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// EchoReply is the assistant text produced for a message.
func EchoReply(message string) string {
	return "Echo: " + message
}

// Tokens splits text into word-sized tokens that concatenate back to it.
func Tokens(text string) []string {
	return strings.SplitAfter(text, " ")
}

func parseChatRequest(r io.Reader) (*chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	return &req, nil
}

// sseWriter writes flushed frames, numbered when nextID is set.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
	nextID  func(delta int64) int64
}

func (sw *sseWriter) event(name string, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s data: %w", name, err)
	}

	if sw.nextID != nil {
		if _, err := fmt.Fprintf(sw.w, "id: %d\n", sw.nextID(1)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, dataJSON); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
