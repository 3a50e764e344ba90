// ABOUTME: Conversation state machine driven by typed stream events
// ABOUTME: Tracks the in-progress turn and folds finished turns into the transcript

package conversation

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/stream"
)

// ErrTurnInProgress is returned when an operation needs an idle machine.
var ErrTurnInProgress = errors.New("turn in progress")

// Outcome tells the caller whether an event ended the turn.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

// Step is the result of applying one event.
type Step struct {
	Outcome  Outcome
	Appended *Message // transcript entry added by this event, if any
}

// Terminal reports whether the turn ended.
func (s Step) Terminal() bool {
	return s.Outcome != OutcomeNone
}

// Machine holds the session, the in-progress turn, and the transcript.
// It is not safe for concurrent use; the owner serializes access.
type Machine struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	phase      Phase
	session    *Session
	transcript Transcript
	lastErr    string

	// in-progress turn
	turnSession string
	text        strings.Builder
	thinking    string
	tools       []ToolInvocation
}

// NewMachine creates an idle machine with an empty transcript. Pass nil
// logger for default.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger: logger.With("component", "conversation"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		phase:  PhaseIdle,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// SessionID returns the held session id, or "" when there is none.
func (m *Machine) SessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

// Session returns the held session.
func (m *Machine) Session() (Session, bool) {
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Begin starts a new turn at send time.
func (m *Machine) Begin() {
	m.lastErr = ""
	m.resetTurn()
	m.turnSession = m.SessionID()
	m.phase = PhaseAwaitingSession
}

// Apply folds one event into the state.
func (m *Machine) Apply(ev stream.Event) Step {
	switch e := ev.(type) {
	case stream.SessionStart:
		if m.session == nil {
			m.session = &Session{ID: e.SessionID, StartedAt: m.now()}
		} else if m.session.ID != e.SessionID {
			m.logger.Warn("ignoring session_start for a different session",
				"held_session", m.session.ID,
				"announced_session", e.SessionID)
		}
		m.resetTurn()
		m.turnSession = m.session.ID
		m.phase = PhaseProcessing

	case stream.MessageReceived:
		msg := Message{
			ID:        m.newID(),
			Role:      RoleUser,
			Content:   e.Message,
			Timestamp: e.Timestamp,
		}
		m.transcript.Append(msg)
		return Step{Appended: &msg}

	case stream.ProcessingStart:
		m.phase = PhaseProcessing

	case stream.Thinking:
		m.thinking = e.Description

	case stream.ToolCall:
		m.tools = append(m.tools, ToolInvocation{
			Name:       e.ToolName,
			Parameters: e.Parameters,
		})

	case stream.ToolResult:
		m.resolveTool(e)

	case stream.Token:
		m.text.WriteString(e.Text)

	case stream.MessageComplete:
		msg := Message{
			ID:        m.newID(),
			Role:      RoleAssistant,
			Content:   m.text.String(),
			Timestamp: e.Timestamp,
			Metadata: &MessageMetadata{
				SessionID:       m.turnSession,
				ThinkingStep:    m.thinking,
				ToolInvocations: cloneTools(m.tools),
			},
		}
		m.transcript.Append(msg)
		m.resetTurn()
		m.phase = PhaseIdle
		return Step{Outcome: OutcomeCompleted, Appended: &msg}

	case stream.Failure:
		if m.text.Len() > 0 {
			m.logger.Debug("discarding partial response", "bytes", m.text.Len())
		}
		m.lastErr = e.Message
		m.resetTurn()
		m.phase = PhaseIdle
		return Step{Outcome: OutcomeFailed}

	case stream.Heartbeat:
		// keep-alive only

	case stream.Unrecognized:
		m.logger.Debug("ignoring unrecognized event", "event", e.Name, "reason", e.Reason)
	}

	return Step{}
}

// resolveTool attaches a result to the latest unresolved invocation with
// the same name, or records a new resolved invocation when none matches.
func (m *Machine) resolveTool(e stream.ToolResult) {
	for i := len(m.tools) - 1; i >= 0; i-- {
		if m.tools[i].Name == e.ToolName && !m.tools[i].Resolved {
			m.tools[i].Result = e.Result
			m.tools[i].Resolved = true
			return
		}
	}

	m.logger.Debug("tool_result without open tool_call", "tool", e.ToolName)
	m.tools = append(m.tools, ToolInvocation{
		Name:     e.ToolName,
		Result:   e.Result,
		Resolved: true,
	})
}

// Abort discards the in-progress turn without producing a message.
// It reports whether a turn was in progress.
func (m *Machine) Abort() bool {
	wasActive := m.phase.InProgress()
	m.resetTurn()
	m.phase = PhaseIdle
	return wasActive
}

// ClearHistory empties the transcript and forgets the session, so the next
// send starts a fresh one.
func (m *Machine) ClearHistory() {
	m.transcript.Clear()
	m.session = nil
	m.lastErr = ""
}

// Resume preloads a previously archived conversation.
func (m *Machine) Resume(session Session, messages []Message) error {
	if m.phase.InProgress() {
		return ErrTurnInProgress
	}
	m.session = &session
	m.transcript.Clear()
	for _, msg := range messages {
		m.transcript.Append(cloneMessage(msg))
	}
	return nil
}

// Turn returns a copy of the in-progress turn.
func (m *Machine) Turn() Turn {
	return Turn{
		SessionID:    m.turnSession,
		Text:         m.text.String(),
		ThinkingStep: m.thinking,
		Tools:        cloneTools(m.tools),
	}
}

// Transcript returns a copy of the finished messages.
func (m *Machine) Transcript() []Message {
	return m.transcript.Messages()
}

// LastError returns the error recorded by the latest failed turn.
func (m *Machine) LastError() string {
	return m.lastErr
}

// Snapshot returns a deep copy of the observable state. Connected is owned
// by the caller and left false.
func (m *Machine) Snapshot() State {
	return State{
		Phase:           m.phase,
		IsProcessing:    m.phase.InProgress(),
		Messages:        m.transcript.Messages(),
		CurrentResponse: m.text.String(),
		SessionID:       m.SessionID(),
		ThinkingStep:    m.thinking,
		ToolCalls:       cloneTools(m.tools),
		Error:           m.lastErr,
	}
}

func (m *Machine) resetTurn() {
	m.turnSession = ""
	m.text.Reset()
	m.thinking = ""
	m.tools = nil
}
