// ABOUTME: Archive interface and data types for local transcript persistence
// ABOUTME: Defines archived messages, session summaries, and the Archive interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Message is one finished transcript entry as archived on disk.
type Message struct {
	ID           string
	SessionID    string
	Role         string
	Content      string
	MetadataJSON string // empty when the message has no metadata
	CreatedAt    time.Time
}

// SessionSummary describes one archived session.
type SessionSummary struct {
	ID           string
	MessageCount int
	FirstAt      time.Time
	LastAt       time.Time
	Preview      string // first user message, if any
}

// Archive is the persistence surface used by the chat client and CLI.
type Archive interface {
	SaveMessage(ctx context.Context, msg *Message) error
	// ListMessages returns a session's messages oldest first. limit <= 0
	// returns all of them; otherwise the most recent limit messages.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
	ListSessions(ctx context.Context, limit int) ([]*SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}
