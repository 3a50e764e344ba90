// ABOUTME: Errors returned by the chat client
// ABOUTME: Sentinels for refused operations and typed errors for failed turns

package client

import (
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/conversation"
)

var (
	// ErrTurnInProgress is returned by Send while another turn is active.
	ErrTurnInProgress = conversation.ErrTurnInProgress

	// ErrDisconnected is returned by Send after Disconnect until Reconnect.
	ErrDisconnected = errors.New("client is disconnected")

	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrCanceled is returned by Send when the turn was canceled.
	ErrCanceled = errors.New("turn canceled")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("client is closed")

	// ErrStreamEnded means the response body ended without a terminal event.
	ErrStreamEnded = errors.New("stream ended before message_complete")

	// ErrIdleTimeout means no bytes arrived within stream.idle_timeout.
	ErrIdleTimeout = errors.New("no data received within idle timeout")
)

// TurnError is returned when the server ends a turn with an error event.
type TurnError struct {
	SessionID string
	Message   string
}

func (e *TurnError) Error() string {
	return "server error: " + e.Message
}

// TransportError is returned when the request fails, the server answers
// with a non-2xx status, or the stream breaks before a terminal event.
type TransportError struct {
	Op         string // what was being done, e.g. "sending request"
	StatusCode int    // 0 when no response was received
	Detail     string // error text from a non-2xx response body
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return msg
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
