// ABOUTME: Stream session controller: one HTTP request per turn
// ABOUTME: Reads the response body, decodes frames, maps events, and applies them in order

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/sse"
	"github.com/2389/coven-chat/internal/stream"
)

// errorBodyLimit caps how much of a non-2xx body is read for detail.
const errorBodyLimit = 4096

// chatRequest is the JSON body posted for each turn.
type chatRequest struct {
	Message   string         `json:"message"`
	SessionID *string        `json:"session_id"`
	Context   map[string]any `json:"context"`
}

func (c *Client) newChatRequest(ctx context.Context, message, sessionID string, turnContext map[string]any) (*http.Request, error) {
	body := chatRequest{
		Message: message,
		Context: turnContext,
	}
	if sessionID != "" {
		body.SessionID = &sessionID
	}
	if body.Context == nil {
		body.Context = map[string]any{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// idleWatchdog cancels the turn when no bytes arrive for d.
type idleWatchdog struct {
	timer *time.Timer
	d     time.Duration
}

func startWatchdog(d time.Duration, cancel context.CancelCauseFunc) *idleWatchdog {
	if d <= 0 {
		return nil
	}
	return &idleWatchdog{
		timer: time.AfterFunc(d, func() { cancel(ErrIdleTimeout) }),
		d:     d,
	}
}

func (w *idleWatchdog) kick() {
	if w != nil {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatchdog) stop() {
	if w != nil {
		w.timer.Stop()
	}
}

// runTurn performs the request and drives the pipeline until the turn is
// terminal. Chunks are processed to completion, in order, before the next
// read.
func (c *Client) runTurn(ctx context.Context, seq uint64, req *http.Request) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	req = req.WithContext(ctx)

	watchdog := startWatchdog(c.cfg.Stream.IdleTimeout, cancel)
	defer watchdog.stop()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failTurn(ctx, seq, &TransportError{Op: "sending request", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.failTurn(ctx, seq, &TransportError{
			Op:         "opening stream",
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		})
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Warn("unexpected content type for event stream", "content_type", ct)
	}

	watchdog.kick()

	decoder := sse.NewDecoder(c.logger)
	buf := make([]byte, c.cfg.Stream.ReadBuffer)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			watchdog.kick()
			if done, err := c.applyFrames(ctx, seq, decoder.Feed(buf[:n])); done {
				return err
			}
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			if done, err := c.applyFrames(ctx, seq, decoder.Flush()); done {
				return err
			}
			return c.failTurn(ctx, seq, &TransportError{Op: "reading stream", Err: ErrStreamEnded})
		}
		return c.failTurn(ctx, seq, &TransportError{Op: "reading stream", Err: readErr})
	}
}

// applyFrames maps and applies frames under the lock, then archives new
// transcript entries and publishes a snapshot. done is true once the turn
// is terminal or has been detached by Cancel.
func (c *Client) applyFrames(ctx context.Context, seq uint64, frames []sse.Frame) (done bool, err error) {
	if len(frames) == 0 {
		return false, nil
	}

	c.mu.Lock()
	if seq != c.turnSeq {
		c.mu.Unlock()
		return true, ErrCanceled
	}

	var appended []conversation.Message
	var terminal conversation.Step
	var failure string

	for i, f := range frames {
		if c.seen != nil && f.ID != "" && c.seen.Seen(f.ID) {
			c.logger.Debug("dropping replayed frame", "id", f.ID, "event", f.Event)
			continue
		}

		ev := c.mapper.Map(f)
		step := c.machine.Apply(ev)
		if step.Appended != nil {
			appended = append(appended, *step.Appended)
		}
		if step.Terminal() {
			terminal = step
			if fe, ok := ev.(stream.Failure); ok {
				failure = fe.Message
			}
			if rest := len(frames) - i - 1; rest > 0 {
				c.logger.Debug("ignoring frames after terminal event", "count", rest)
			}
			break
		}
	}

	sessionID := c.machine.SessionID()
	if terminal.Terminal() {
		c.cancelTurn = nil
	}
	c.publishLocked()
	c.mu.Unlock()

	c.archiveMessages(ctx, sessionID, appended)

	switch terminal.Outcome {
	case conversation.OutcomeCompleted:
		c.logger.Debug("turn completed", "turn", seq, "session_id", sessionID)
		return true, nil
	case conversation.OutcomeFailed:
		c.logger.Warn("turn failed", "turn", seq, "session_id", sessionID, "error", failure)
		return true, &TurnError{SessionID: sessionID, Message: failure}
	}
	return false, nil
}

// failTurn ends the turn after a transport problem. A local error event is
// applied so transport and protocol failures leave identical state.
func (c *Client) failTurn(ctx context.Context, seq uint64, terr *TransportError) error {
	cause := context.Cause(ctx)

	switch {
	case errors.Is(cause, ErrIdleTimeout):
		terr = &TransportError{Op: "reading stream", Err: ErrIdleTimeout}
	case errors.Is(cause, ErrCanceled):
		return ErrCanceled
	case ctx.Err() != nil:
		// Caller's context ended: treat as a cancellation, not a failure.
		var (
			cancel context.CancelCauseFunc
			ok     bool
		)
		c.mu.Lock()
		if seq == c.turnSeq {
			if cancel, ok = c.abortLocked(); ok {
				c.publishLocked()
			}
		}
		c.mu.Unlock()
		if ok {
			cancel(ErrCanceled)
		}
		return fmt.Errorf("%w: %w", ErrCanceled, cause)
	}

	c.mu.Lock()
	if seq != c.turnSeq {
		c.mu.Unlock()
		return ErrCanceled
	}
	c.machine.Apply(stream.Failure{Message: terr.Error()})
	c.cancelTurn = nil
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Warn("turn failed", "turn", seq, "error", terr)
	return terr
}

// errorDetail extracts a short message from a non-2xx response body.
func errorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	if err != nil || len(data) == 0 {
		return ""
	}
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		for _, key := range []string{"error", "message", "detail"} {
			if v := parsed.Get(key); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	return strings.TrimSpace(string(data))
}

// deleteSession asks the server to drop a session.
func (c *Client) deleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.SessionURL(sessionID), nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "deleting session", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("session already gone on server", "session_id", sessionID)
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{
			Op:         "deleting session",
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		}
	}

	c.logger.Debug("deleted server session", "session_id", sessionID)
	return nil
}
