// ABOUTME: Conversation data types: transcript messages, tool invocations, turns, and state snapshots
// ABOUTME: Snapshots are deep copies safe to hand to other goroutines

package conversation

import (
	"maps"
	"time"
)

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the observable progress of the current turn.
type Phase string

const (
	// PhaseIdle means no turn is in progress and a send is accepted.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingSession means a send is outstanding but the server has
	// not started the turn yet ("connecting").
	PhaseAwaitingSession Phase = "awaiting_session"
	// PhaseProcessing means the server is generating ("generating").
	PhaseProcessing Phase = "processing"
)

// InProgress reports whether the phase belongs to an outstanding turn.
func (p Phase) InProgress() bool {
	return p == PhaseAwaitingSession || p == PhaseProcessing
}

// ToolInvocation is one tool call made during a turn.
type ToolInvocation struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     any            `json:"result,omitempty"`
	Resolved   bool           `json:"resolved"` // false until the matching tool_result arrives
}

// MessageMetadata is attached to assistant messages.
type MessageMetadata struct {
	SessionID       string           `json:"session_id,omitempty"`
	ThinkingStep    string           `json:"thinking_step,omitempty"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// Message is a finished transcript entry.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Session identifies the logical conversation on the server.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Turn is the mutable unit of work while a request is outstanding.
type Turn struct {
	SessionID    string
	Text         string
	ThinkingStep string
	Tools        []ToolInvocation
}

// State is an immutable snapshot of everything an observer needs.
type State struct {
	Connected       bool
	Phase           Phase
	IsProcessing    bool
	Messages        []Message
	CurrentResponse string
	SessionID       string
	ThinkingStep    string
	ToolCalls       []ToolInvocation
	Error           string
}

func cloneTools(tools []ToolInvocation) []ToolInvocation {
	if tools == nil {
		return nil
	}
	out := make([]ToolInvocation, len(tools))
	for i, t := range tools {
		out[i] = t
		out[i].Parameters = maps.Clone(t.Parameters)
	}
	return out
}

func cloneMessage(m Message) Message {
	if m.Metadata != nil {
		md := *m.Metadata
		md.ToolInvocations = cloneTools(md.ToolInvocations)
		m.Metadata = &md
	}
	return m
}
