// ABOUTME: Public chat client: send turns, cancel, clear history, and observe state
// ABOUTME: Owns the conversation state machine and serializes all access to it

package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/stream"
)

// dedupeWindowSize bounds the frame id window.
const dedupeWindowSize = 4096

// Client is a long-lived handle to one conversation. Create one per
// conversation and share it; all methods are safe for concurrent use, but
// only one turn runs at a time.
type Client struct {
	cfg         *config.Config
	httpClient  *http.Client
	logger      *slog.Logger
	mapper      *stream.Mapper
	broadcaster *conversation.StateBroadcaster
	seen        *dedupe.Window // nil unless stream.dedupe_ids

	archive     store.Archive
	archiveSet  bool
	ownsArchive bool

	mu         sync.Mutex
	machine    *conversation.Machine
	connected  bool
	closed     bool
	turnSeq    uint64
	cancelTurn context.CancelCauseFunc // nil when no turn is in flight
}

// New creates a connected, idle client.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		connected: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	logger := c.logger
	c.logger = logger.With("component", "client")

	if c.httpClient == nil {
		c.httpClient = newHTTPClient(cfg.Stream)
	}

	if !c.archiveSet && cfg.Archive.Enabled {
		archive, err := store.NewSQLiteStore(cfg.Archive.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		c.archive = archive
		c.ownsArchive = true
	}

	if cfg.Stream.DedupeIDs {
		c.seen = dedupe.NewWindow(cfg.Stream.DedupeTTL, dedupeWindowSize)
	}

	c.mapper = stream.NewMapper(logger)
	c.machine = conversation.NewMachine(logger)
	c.broadcaster = conversation.NewStateBroadcaster(logger)

	return c, nil
}

// newHTTPClient builds a client without an overall timeout; a turn may
// stream for as long as the server keeps it open.
func newHTTPClient(cfg config.StreamConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ConnectTimeout > 0 {
		dialer := &net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		transport.DialContext = dialer.DialContext
		transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	}
	return &http.Client{Transport: transport}
}

// Send posts one user message and blocks until the turn ends. It returns
// nil when the server completes the turn, a *TurnError when the server
// reports an error, a *TransportError when the request or stream fails,
// and ErrCanceled when the turn is canceled.
//
// turnContext is sent verbatim as the request's context object and may be
// nil.
func (c *Client) Send(ctx context.Context, message string, turnContext map[string]any) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return ErrDisconnected
	case c.machine.Phase().InProgress():
		c.mu.Unlock()
		return ErrTurnInProgress
	}

	c.turnSeq++
	seq := c.turnSeq
	turnCtx, cancel := context.WithCancelCause(ctx)
	c.cancelTurn = cancel
	c.machine.Begin()
	sessionID := c.machine.SessionID()
	c.publishLocked()
	c.mu.Unlock()

	defer cancel(nil)

	c.logger.Debug("turn started", "turn", seq, "session_id", sessionID)

	req, err := c.newChatRequest(turnCtx, message, sessionID, turnContext)
	if err != nil {
		return c.failTurn(turnCtx, seq, &TransportError{Op: "building request", Err: err})
	}

	return c.runTurn(turnCtx, seq, req)
}

// Cancel aborts the in-flight turn, if any. The partial response is
// discarded and Send returns ErrCanceled. It reports whether a turn was
// canceled.
func (c *Client) Cancel() bool {
	c.mu.Lock()
	cancel, ok := c.abortLocked()
	if ok {
		c.publishLocked()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	cancel(ErrCanceled)
	c.logger.Debug("turn canceled")
	return true
}

// abortLocked detaches the in-flight turn. The caller must invoke the
// returned cancel func after releasing the lock.
func (c *Client) abortLocked() (context.CancelCauseFunc, bool) {
	if c.cancelTurn == nil {
		return nil, false
	}
	cancel := c.cancelTurn
	c.cancelTurn = nil
	c.turnSeq++ // a late read loop sees a stale sequence and stops
	c.machine.Abort()
	return cancel, true
}

// ClearHistory cancels any in-flight turn, empties the transcript, and
// forgets the session so the next send starts a new one. When a session
// was held, the server is asked to delete it; a failed delete is returned
// but local state stays cleared.
func (c *Client) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	cancel, canceled := c.abortLocked()
	sessionID := c.machine.SessionID()
	c.machine.ClearHistory()
	c.publishLocked()
	c.mu.Unlock()

	if canceled {
		cancel(ErrCanceled)
	}
	if c.seen != nil {
		c.seen.Reset()
	}

	if sessionID == "" {
		return nil
	}
	return c.deleteSession(ctx, sessionID)
}

// Reconnect marks the client ready to send again after Disconnect. It does
// not resume an interrupted stream.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.connected = true
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// Disconnect cancels any in-flight turn and refuses sends until Reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, canceled := c.abortLocked()
	c.connected = false
	c.publishLocked()
	c.mu.Unlock()

	if canceled {
		cancel(ErrCanceled)
	}
}

// State returns a snapshot of the current state.
func (c *Client) State() conversation.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers an observer of state snapshots. A snapshot is
// published after every change; slow observers may miss intermediate ones
// but always receive the latest, in the order changes were made. The
// channel closes on Unsubscribe, Close,
// or when ctx ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan conversation.State, string) {
	return c.broadcaster.Subscribe(ctx)
}

// Unsubscribe removes an observer.
func (c *Client) Unsubscribe(subID string) {
	c.broadcaster.Unsubscribe(subID)
}

// Resume replaces the transcript with a previously archived conversation
// and adopts its session id, so the next send continues it.
func (c *Client) Resume(sessionID string, messages []conversation.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	session := conversation.Session{ID: sessionID, StartedAt: time.Now()}
	if len(messages) > 0 {
		session.StartedAt = messages[0].Timestamp
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := c.machine.Resume(session, messages); err != nil {
		c.mu.Unlock()
		return err
	}
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("resumed session", "session_id", sessionID, "messages", len(messages))
	return nil
}

// Archive returns the transcript archive, or nil when archiving is off.
func (c *Client) Archive() store.Archive {
	return c.archive
}

// Close cancels any in-flight turn, closes every subscription, and
// releases the archive if the client opened it. It is safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	cancel, canceled := c.abortLocked()
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	if canceled {
		cancel(ErrCanceled)
	}
	c.broadcaster.Close()
	if c.seen != nil {
		c.seen.Close()
	}
	c.httpClient.CloseIdleConnections()

	if c.ownsArchive && c.archive != nil {
		if err := c.archive.Close(); err != nil {
			return fmt.Errorf("closing archive: %w", err)
		}
	}
	return nil
}

// publishLocked fans out the current snapshot. Publish never blocks, and
// holding the lock keeps delivery order identical to mutation order.
func (c *Client) publishLocked() {
	c.broadcaster.Publish(c.snapshotLocked())
}

func (c *Client) snapshotLocked() conversation.State {
	s := c.machine.Snapshot()
	s.Connected = c.connected
	return s
}
