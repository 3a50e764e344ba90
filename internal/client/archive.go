// ABOUTME: Bridges finished transcript messages to the local archive
// ABOUTME: Converts between conversation messages and archived rows, and resumes sessions from disk

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
)

func toArchive(sessionID string, msg conversation.Message) (*store.Message, error) {
	out := &store.Message{
		ID:        msg.ID,
		SessionID: sessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
	}
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata: %w", err)
		}
		out.MetadataJSON = string(data)
	}
	return out, nil
}

// FromArchive converts archived rows back into transcript messages.
func FromArchive(rows []*store.Message) ([]conversation.Message, error) {
	out := make([]conversation.Message, 0, len(rows))
	for _, row := range rows {
		msg := conversation.Message{
			ID:        row.ID,
			Role:      conversation.Role(row.Role),
			Content:   row.Content,
			Timestamp: row.CreatedAt,
		}
		if row.MetadataJSON != "" {
			var md conversation.MessageMetadata
			if err := json.Unmarshal([]byte(row.MetadataJSON), &md); err != nil {
				return nil, fmt.Errorf("decoding metadata for message %s: %w", row.ID, err)
			}
			msg.Metadata = &md
		}
		out = append(out, msg)
	}
	return out, nil
}

// archiveMessages saves new transcript entries. Failures are logged and
// never affect the turn.
func (c *Client) archiveMessages(ctx context.Context, sessionID string, msgs []conversation.Message) {
	if c.archive == nil || len(msgs) == 0 {
		return
	}
	if sessionID == "" {
		c.logger.Debug("not archiving messages without a session", "count", len(msgs))
		return
	}

	// Archive writes outlive a canceled turn.
	ctx = context.WithoutCancel(ctx)
	for _, msg := range msgs {
		row, err := toArchive(sessionID, msg)
		if err != nil {
			c.logger.Warn("failed to encode message for archive", "id", msg.ID, "error", err)
			continue
		}
		if err := c.archive.SaveMessage(ctx, row); err != nil {
			c.logger.Warn("failed to archive message", "id", msg.ID, "session_id", sessionID, "error", err)
		}
	}
}

// ResumeFromArchive loads an archived session and resumes it.
func (c *Client) ResumeFromArchive(ctx context.Context, sessionID string) error {
	if c.archive == nil {
		return fmt.Errorf("archive is disabled")
	}
	rows, err := c.archive.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("loading session %s: %w", sessionID, store.ErrNotFound)
	}
	msgs, err := FromArchive(rows)
	if err != nil {
		return err
	}
	return c.Resume(sessionID, msgs)
}
