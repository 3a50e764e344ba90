// ABOUTME: Typed stream events decoded from event-stream frames
// ABOUTME: Sealed interface with one struct per server event kind plus Unrecognized

package stream

import "time"

// Kind is the wire name of an event.
type Kind string

const (
	KindSessionStart    Kind = "session_start"
	KindMessageReceived Kind = "message_received"
	KindProcessingStart Kind = "processing_start"
	KindThinking        Kind = "thinking"
	KindToolCall        Kind = "tool_call"
	KindToolResult      Kind = "tool_result"
	KindToken           Kind = "token"
	KindMessageComplete Kind = "message_complete"
	KindError           Kind = "error"
	KindHeartbeat       Kind = "heartbeat"
)

// Event is a decoded stream event. The unexported marker keeps the set of
// variants closed to this package.
type Event interface {
	Kind() Kind
	event()
}

// SessionStart announces the server-side session for the turn.
type SessionStart struct {
	SessionID string
}

// MessageReceived echoes the user message the server accepted.
type MessageReceived struct {
	Message   string
	Timestamp time.Time
}

// ProcessingStart marks the start of generation.
type ProcessingStart struct{}

// Thinking carries the latest narration of internal reasoning.
type Thinking struct {
	Description string
}

// ToolCall is a tool invocation by the assistant.
type ToolCall struct {
	ToolName   string
	Parameters map[string]any
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ToolName string
	Result   any
}

// Token is one fragment of assistant text.
type Token struct {
	Text string
}

// MessageComplete terminates a successful turn.
type MessageComplete struct {
	Timestamp time.Time
}

// Failure terminates a turn with an error. It is produced both for the
// server's error event and for transport failures.
type Failure struct {
	Message string
}

// Heartbeat keeps idle connections alive and carries nothing.
type Heartbeat struct{}

// Unrecognized is an event that could not be mapped: an unknown name or a
// malformed payload.
type Unrecognized struct {
	Name   string
	Data   string
	Reason string
}

func (SessionStart) Kind() Kind    { return KindSessionStart }
func (MessageReceived) Kind() Kind { return KindMessageReceived }
func (ProcessingStart) Kind() Kind { return KindProcessingStart }
func (Thinking) Kind() Kind        { return KindThinking }
func (ToolCall) Kind() Kind        { return KindToolCall }
func (ToolResult) Kind() Kind      { return KindToolResult }
func (Token) Kind() Kind           { return KindToken }
func (MessageComplete) Kind() Kind { return KindMessageComplete }
func (Failure) Kind() Kind         { return KindError }
func (Heartbeat) Kind() Kind       { return KindHeartbeat }
func (u Unrecognized) Kind() Kind  { return Kind(u.Name) }

func (SessionStart) event()    {}
func (MessageReceived) event() {}
func (ProcessingStart) event() {}
func (Thinking) event()        {}
func (ToolCall) event()        {}
func (ToolResult) event()      {}
func (Token) event()           {}
func (MessageComplete) event() {}
func (Failure) event()         {}
func (Heartbeat) event()       {}
func (Unrecognized) event()    {}

// Interface compliance checks.
var (
	_ Event = SessionStart{}
	_ Event = MessageReceived{}
	_ Event = ProcessingStart{}
	_ Event = Thinking{}
	_ Event = ToolCall{}
	_ Event = ToolResult{}
	_ Event = Token{}
	_ Event = MessageComplete{}
	_ Event = Failure{}
	_ Event = Heartbeat{}
	_ Event = Unrecognized{}
)
