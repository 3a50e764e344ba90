// ABOUTME: Tests for the chat client against httptest servers
// ABOUTME: Covers turns, failures, cancellation, idle timeout, dedupe, archive, and subscriptions

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/fakeserver"
	"github.com/2389/coven-chat/internal/store"
)

func frame(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}

// streamHandler answers every chat request with a fixed body.
func streamHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}
}

// recordingHandler forwards each decoded request body before delegating.
func recordingHandler(reqs chan<- chatRequest, headers chan<- http.Header, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		reqs <- req
		if headers != nil {
			headers <- r.Header.Clone()
		}
		next(w, r)
	}
}

// blockingHandler writes prefix, then holds the stream open until the
// client goes away or release is closed.
func blockingHandler(prefix string, release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, prefix)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler, mutate func(*config.Config), opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Server.URL = srv.URL
	cfg.Archive.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var hiThere = frame("session_start", `{"session_id":"s1"}`) +
	frame("message_received", `{"message":"Hi","timestamp":"2026-01-02T03:04:05Z"}`) +
	frame("processing_start", `{}`) +
	frame("token", `{"token":"Hi"}`) +
	frame("token", `{"token":" there"}`) +
	frame("message_complete", `{"timestamp":"2026-01-02T03:04:06Z"}`)

func TestSend_CompletesTurn(t *testing.T) {
	reqs := make(chan chatRequest, 1)
	headers := make(chan http.Header, 1)
	c := newTestClient(t, recordingHandler(reqs, headers, streamHandler(hiThere)), nil)

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	s := c.State()
	assert.Equal(t, conversation.PhaseIdle, s.Phase)
	assert.False(t, s.IsProcessing)
	assert.True(t, s.Connected)
	assert.Equal(t, "s1", s.SessionID)
	assert.Empty(t, s.CurrentResponse)
	assert.Empty(t, s.Error)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, conversation.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "Hi", s.Messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Hi there", s.Messages[1].Content)

	req := <-reqs
	assert.Equal(t, "Hi", req.Message)
	assert.Nil(t, req.SessionID)
	assert.NotNil(t, req.Context)

	h := <-headers
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", h.Get("Accept"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
}

func TestSend_ReusesSessionAndPassesContext(t *testing.T) {
	reqs := make(chan chatRequest, 2)
	c := newTestClient(t, recordingHandler(reqs, nil, streamHandler(hiThere)), nil)

	require.NoError(t, c.Send(t.Context(), "Hi", nil))
	require.NoError(t, c.Send(t.Context(), "Again", map[string]any{"agent": "helper"}))

	<-reqs
	second := <-reqs
	require.NotNil(t, second.SessionID)
	assert.Equal(t, "s1", *second.SessionID)
	assert.Equal(t, "helper", second.Context["agent"])
	assert.Len(t, c.State().Messages, 4)
}

func TestSend_ToolCallRecordedOnAssistantMessage(t *testing.T) {
	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("tool_call", `{"tool_name":"search","parameters":{"q":"x"}}`) +
		frame("tool_result", `{"tool_name":"search","result":{"n":3}}`) +
		frame("token", `{"token":"Found 3"}`) +
		frame("message_complete", `{}`)
	c := newTestClient(t, streamHandler(body), nil)

	require.NoError(t, c.Send(t.Context(), "find x", nil))

	msgs := c.State().Messages
	require.Len(t, msgs, 1)
	md := msgs[0].Metadata
	require.NotNil(t, md)
	require.Len(t, md.ToolInvocations, 1)
	tool := md.ToolInvocations[0]
	assert.Equal(t, "search", tool.Name)
	assert.Equal(t, "x", tool.Parameters["q"])
	assert.True(t, tool.Resolved)
	assert.Equal(t, map[string]any{"n": float64(3)}, tool.Result)
}

func TestSend_HTTPErrorFailsTurn(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}), nil)

	err := c.Send(t.Context(), "Hi", nil)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
	assert.Equal(t, "boom", terr.Detail)

	s := c.State()
	assert.False(t, s.IsProcessing)
	assert.Equal(t, conversation.PhaseIdle, s.Phase)
	assert.Contains(t, s.Error, "boom")
	assert.Empty(t, s.Messages)
}

func TestSend_ErrorEventFailsTurn(t *testing.T) {
	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("message_received", `{"message":"Hi"}`) +
		frame("token", `{"token":"partial"}`) +
		frame("error", `{"error":"model overloaded"}`) +
		frame("token", `{"token":"ignored"}`)
	c := newTestClient(t, streamHandler(body), nil)

	err := c.Send(t.Context(), "Hi", nil)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, "model overloaded", turnErr.Message)
	assert.Equal(t, "s1", turnErr.SessionID)

	s := c.State()
	assert.Equal(t, "model overloaded", s.Error)
	assert.Empty(t, s.CurrentResponse)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, conversation.RoleUser, s.Messages[0].Role)
}

func TestSend_StreamEndWithoutTerminalEvent(t *testing.T) {
	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("token", `{"token":"half"}`) +
		"event: token\ndata: {\"token\":\"unterminated\"}"
	c := newTestClient(t, streamHandler(body), nil)

	err := c.Send(t.Context(), "Hi", nil)

	require.ErrorIs(t, err, ErrStreamEnded)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "reading stream", terr.Op)

	s := c.State()
	assert.False(t, s.IsProcessing)
	assert.Contains(t, s.Error, "stream ended")
	assert.Empty(t, s.Messages)
}

func TestSend_MalformedFramesDoNotAbort(t *testing.T) {
	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("usage", `{"tokens":12}`) +
		frame("token", `{"token":bad`) +
		frame("heartbeat", `{}`) +
		frame("token", `{"token":"ok"}`) +
		frame("message_complete", `{}`)
	c := newTestClient(t, streamHandler(body), nil)

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	msgs := c.State().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].Content)
}

func TestSend_ByteAtATimeWithSmallReadBuffer(t *testing.T) {
	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("token", `{"token":"héllo "}`) +
		frame("token", `{"token":"wörld 👋"}`) +
		"event: message_complete\r\ndata: {}\r\n\r\n"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := range len(body) {
			_, _ = w.Write([]byte{body[i]})
			flusher.Flush()
		}
	})
	c := newTestClient(t, handler, func(cfg *config.Config) {
		cfg.Stream.ReadBuffer = 3
	})

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	msgs := c.State().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "héllo wörld 👋", msgs[0].Content)
}

func TestSend_RejectsEmptyMessage(t *testing.T) {
	c := newTestClient(t, streamHandler(hiThere), nil)

	assert.ErrorIs(t, c.Send(t.Context(), "   ", nil), ErrEmptyMessage)
	assert.Equal(t, conversation.PhaseIdle, c.State().Phase)
}

func TestSend_RefusedWhileTurnInProgress(t *testing.T) {
	release := make(chan struct{})
	prefix := frame("session_start", `{"session_id":"s1"}`) + frame("token", `{"token":"partial"}`)
	c := newTestClient(t, blockingHandler(prefix, release), nil)
	t.Cleanup(func() { close(release) })

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first", nil) }()

	require.Eventually(t, func() bool {
		return c.State().CurrentResponse == "partial"
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, c.Send(t.Context(), "second", nil), ErrTurnInProgress)

	require.True(t, c.Cancel())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}
}

func TestCancel_DiscardsPartialResponse(t *testing.T) {
	release := make(chan struct{})
	prefix := frame("session_start", `{"session_id":"s1"}`) + frame("token", `{"token":"partial"}`)
	c := newTestClient(t, blockingHandler(prefix, release), nil)
	t.Cleanup(func() { close(release) })

	assert.False(t, c.Cancel(), "nothing to cancel while idle")

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "Hi", nil) }()

	require.Eventually(t, func() bool {
		return c.State().CurrentResponse == "partial"
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, c.Cancel())
	assert.False(t, c.Cancel(), "second cancel is a no-op")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	s := c.State()
	assert.Equal(t, conversation.PhaseIdle, s.Phase)
	assert.Empty(t, s.CurrentResponse)
	assert.Empty(t, s.Error)
	assert.Empty(t, s.Messages)
	assert.Equal(t, "s1", s.SessionID)
}

// stallingArchive blocks every save until release is closed.
type stallingArchive struct {
	store.Archive
	saving  chan struct{}
	release chan struct{}
}

func (a *stallingArchive) SaveMessage(ctx context.Context, msg *store.Message) error {
	select {
	case a.saving <- struct{}{}:
	default:
	}
	<-a.release
	return nil
}

func TestCancel_ObserversEndOnIdleWhileArchiveStalls(t *testing.T) {
	streamRelease := make(chan struct{})
	prefix := frame("session_start", `{"session_id":"s1"}`) +
		frame("message_received", `{"message":"Hi"}`) +
		frame("token", `{"token":"partial"}`)
	archive := &stallingArchive{saving: make(chan struct{}, 1), release: make(chan struct{})}
	c := newTestClient(t, blockingHandler(prefix, streamRelease), nil, WithArchive(archive))
	t.Cleanup(func() { close(streamRelease) })

	states, subID := c.Subscribe(t.Context())
	defer c.Unsubscribe(subID)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "Hi", nil) }()

	select {
	case <-archive.saving:
	case <-time.After(2 * time.Second):
		t.Fatal("archive was never written")
	}

	require.True(t, c.Cancel())
	close(archive.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	var last conversation.State
	for drained := false; !drained; {
		select {
		case s := <-states:
			last = s
		default:
			drained = true
		}
	}

	assert.Equal(t, c.State().Phase, last.Phase)
	assert.Equal(t, conversation.PhaseIdle, last.Phase)
	assert.False(t, last.IsProcessing)
	assert.Empty(t, last.CurrentResponse)
}

func TestSend_CallerContextCanceled(t *testing.T) {
	release := make(chan struct{})
	prefix := frame("session_start", `{"session_id":"s1"}`)
	c := newTestClient(t, blockingHandler(prefix, release), nil)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, "Hi", nil) }()

	require.Eventually(t, func() bool {
		return c.State().Phase == conversation.PhaseProcessing
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after context cancel")
	}

	s := c.State()
	assert.False(t, s.IsProcessing)
	assert.Empty(t, s.Error)
}

func TestSend_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	prefix := frame("session_start", `{"session_id":"s1"}`)
	c := newTestClient(t, blockingHandler(prefix, release), func(cfg *config.Config) {
		cfg.Stream.IdleTimeout = 100 * time.Millisecond
	})
	t.Cleanup(func() { close(release) })

	err := c.Send(t.Context(), "Hi", nil)

	require.ErrorIs(t, err, ErrIdleTimeout)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)

	s := c.State()
	assert.False(t, s.IsProcessing)
	assert.Contains(t, s.Error, "idle timeout")
}

func TestSend_HeartbeatsKeepIdleWatchdogAway(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, frame("session_start", `{"session_id":"s1"}`))
		flusher.Flush()
		for range 4 {
			time.Sleep(40 * time.Millisecond)
			_, _ = io.WriteString(w, frame("heartbeat", `{}`))
			flusher.Flush()
		}
		_, _ = io.WriteString(w, frame("token", `{"token":"done"}`)+frame("message_complete", `{}`))
	})
	c := newTestClient(t, handler, func(cfg *config.Config) {
		cfg.Stream.IdleTimeout = 150 * time.Millisecond
	})

	require.NoError(t, c.Send(t.Context(), "Hi", nil))
	assert.Equal(t, "done", c.State().Messages[0].Content)
}

func TestSend_DedupeDropsReplayedFrames(t *testing.T) {
	body := "id: 1\n" + frame("session_start", `{"session_id":"s1"}`) +
		"id: 2\n" + frame("token", `{"token":"a"}`) +
		"id: 2\n" + frame("token", `{"token":"a"}`) +
		"id: 3\n" + frame("token", `{"token":"b"}`) +
		frame("token", `{"token":"c"}`) +
		"id: 4\n" + frame("message_complete", `{}`)

	t.Run("enabled", func(t *testing.T) {
		c := newTestClient(t, streamHandler(body), func(cfg *config.Config) {
			cfg.Stream.DedupeIDs = true
			cfg.Stream.DedupeTTL = time.Minute
		})
		require.NoError(t, c.Send(t.Context(), "Hi", nil))
		assert.Equal(t, "abc", c.State().Messages[0].Content)
	})

	t.Run("disabled", func(t *testing.T) {
		c := newTestClient(t, streamHandler(body), nil)
		require.NoError(t, c.Send(t.Context(), "Hi", nil))
		assert.Equal(t, "aabc", c.State().Messages[0].Content)
	})
}

func TestDisconnectAndReconnect(t *testing.T) {
	c := newTestClient(t, streamHandler(hiThere), nil)

	c.Disconnect()
	assert.False(t, c.State().Connected)
	assert.ErrorIs(t, c.Send(t.Context(), "Hi", nil), ErrDisconnected)

	require.NoError(t, c.Reconnect())
	assert.True(t, c.State().Connected)
	assert.NoError(t, c.Send(t.Context(), "Hi", nil))
}

func TestDisconnect_CancelsInFlightTurn(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, blockingHandler(frame("session_start", `{"session_id":"s1"}`), release), nil)
	t.Cleanup(func() { close(release) })

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "Hi", nil) }()

	require.Eventually(t, func() bool {
		return c.State().Phase == conversation.PhaseProcessing
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after disconnect")
	}
	assert.False(t, c.State().IsProcessing)
}

func TestClearHistory_DeletesServerSession(t *testing.T) {
	fake := fakeserver.New(fakeserver.Options{}, nil)
	c := newTestClient(t, fake.Handler(), nil)

	require.NoError(t, c.Send(t.Context(), "hello", nil))
	first := c.State().SessionID
	require.NotEmpty(t, first)

	require.NoError(t, c.ClearHistory(t.Context()))

	s := c.State()
	assert.Empty(t, s.Messages)
	assert.Empty(t, s.SessionID)
	assert.Equal(t, []string{first}, fake.Deleted())

	require.NoError(t, c.Send(t.Context(), "hello again", nil))
	assert.NotEqual(t, first, c.State().SessionID)
}

func TestClearHistory_WithoutSessionSkipsServer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}), nil)

	assert.NoError(t, c.ClearHistory(t.Context()))
}

func TestClearHistory_FailedDeleteStillClearsLocally(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/stream", streamHandler(hiThere))
	mux.HandleFunc("/api/chat/sessions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})
	c := newTestClient(t, mux, nil)

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	err := c.ClearHistory(t.Context())

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadGateway, terr.StatusCode)
	assert.Equal(t, "upstream down", terr.Detail)

	s := c.State()
	assert.Empty(t, s.Messages)
	assert.Empty(t, s.SessionID)
}

func TestSubscribe_ReceivesFinalState(t *testing.T) {
	c := newTestClient(t, streamHandler(hiThere), nil)

	states, subID := c.Subscribe(t.Context())
	defer c.Unsubscribe(subID)

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s.Phase == conversation.PhaseIdle && len(s.Messages) == 2 {
				assert.Equal(t, "Hi there", s.Messages[1].Content)
				return
			}
		case <-deadline:
			t.Fatal("never observed the completed state")
		}
	}
}

func TestArchive_SavesAndResumes(t *testing.T) {
	archive, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	body := frame("session_start", `{"session_id":"s1"}`) +
		frame("message_received", `{"message":"Hi"}`) +
		frame("tool_call", `{"tool_name":"search","parameters":{"q":"x"}}`) +
		frame("tool_result", `{"tool_name":"search","result":{"n":3}}`) +
		frame("token", `{"token":"Hi there"}`) +
		frame("message_complete", `{}`)
	c := newTestClient(t, streamHandler(body), nil, WithArchive(archive))

	require.NoError(t, c.Send(t.Context(), "Hi", nil))

	rows, err := archive.ListMessages(t.Context(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "user", rows[0].Role)
	assert.Equal(t, "assistant", rows[1].Role)
	assert.Contains(t, rows[1].MetadataJSON, `"search"`)

	resumed := newTestClient(t, streamHandler(hiThere), nil, WithArchive(archive))
	require.NoError(t, resumed.ResumeFromArchive(t.Context(), "s1"))

	s := resumed.State()
	assert.Equal(t, "s1", s.SessionID)
	require.Len(t, s.Messages, 2)
	require.NotNil(t, s.Messages[1].Metadata)
	require.Len(t, s.Messages[1].Metadata.ToolInvocations, 1)
	assert.Equal(t, "search", s.Messages[1].Metadata.ToolInvocations[0].Name)
}

func TestArchive_ResumeUnknownSession(t *testing.T) {
	archive, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	c := newTestClient(t, streamHandler(hiThere), nil, WithArchive(archive))

	assert.ErrorIs(t, c.ResumeFromArchive(t.Context(), "missing"), store.ErrNotFound)
}

func TestClose(t *testing.T) {
	c := newTestClient(t, streamHandler(hiThere), nil)

	states, _ := c.Subscribe(t.Context())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send(t.Context(), "Hi", nil), ErrClosed)
	assert.ErrorIs(t, c.ClearHistory(t.Context()), ErrClosed)
	assert.ErrorIs(t, c.Reconnect(), ErrClosed)

	select {
	case _, ok := <-states:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestEndToEnd_FakeServer(t *testing.T) {
	fake := fakeserver.New(fakeserver.Options{Heartbeats: 1, FrameIDs: true}, nil)
	c := newTestClient(t, fake.Handler(), func(cfg *config.Config) {
		cfg.Stream.DedupeIDs = true
		cfg.Stream.DedupeTTL = time.Minute
		cfg.Stream.ReadBuffer = 7
	})

	require.NoError(t, c.Send(t.Context(), "search cats", nil))

	s := c.State()
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "search cats", s.Messages[0].Content)
	assistant := s.Messages[1]
	assert.Equal(t, fakeserver.EchoReply("search cats"), assistant.Content)
	require.NotNil(t, assistant.Metadata)
	require.Len(t, assistant.Metadata.ToolInvocations, 1)
	assert.True(t, assistant.Metadata.ToolInvocations[0].Resolved)
	assert.True(t, fake.HasSession(s.SessionID))

	err := c.Send(t.Context(), "now fail", nil)
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, "simulated failure", c.State().Error)

	require.NoError(t, c.Send(t.Context(), "fine", nil))
	msgs := c.State().Messages
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1].Content, "Echo: "))
}
