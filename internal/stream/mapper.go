// ABOUTME: Maps decoded frames to typed stream events using gjson payload extraction
// ABOUTME: Malformed or unknown frames become Unrecognized events and never abort the stream

package stream

import (
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/sse"
)

// epochMillisThreshold separates unix seconds from unix milliseconds.
const epochMillisThreshold = 1e12

// timestampLayouts are tried in order. Layouts without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Mapper translates frames into events. It holds no per-stream state.
type Mapper struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewMapper creates a mapper. Pass nil logger for default.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		logger: logger.With("component", "mapper"),
		now:    time.Now,
	}
}

// Map returns the event for a frame. It never fails: anything it cannot
// interpret is returned as Unrecognized after logging a warning.
func (m *Mapper) Map(f sse.Frame) Event {
	data := f.Data
	if data == "" {
		data = "{}"
	}

	if !gjson.Valid(data) {
		return m.unrecognized(f, "payload is not valid JSON")
	}
	payload := gjson.Parse(data)
	if !payload.IsObject() {
		return m.unrecognized(f, "payload is not a JSON object")
	}

	switch Kind(f.Event) {
	case KindSessionStart:
		id := payload.Get("session_id")
		if id.String() == "" {
			return m.unrecognized(f, "missing session_id")
		}
		return SessionStart{SessionID: id.String()}

	case KindMessageReceived:
		return MessageReceived{
			Message:   payload.Get("message").String(),
			Timestamp: m.timestamp(payload.Get("timestamp")),
		}

	case KindProcessingStart:
		return ProcessingStart{}

	case KindThinking:
		desc := payload.Get("description")
		if !desc.Exists() {
			desc = payload.Get("step")
		}
		return Thinking{Description: desc.String()}

	case KindToolCall:
		name := payload.Get("tool_name").String()
		if name == "" {
			return m.unrecognized(f, "missing tool_name")
		}
		params, _ := payload.Get("parameters").Value().(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		return ToolCall{ToolName: name, Parameters: params}

	case KindToolResult:
		name := payload.Get("tool_name").String()
		if name == "" {
			return m.unrecognized(f, "missing tool_name")
		}
		return ToolResult{ToolName: name, Result: payload.Get("result").Value()}

	case KindToken:
		tok := payload.Get("token")
		if tok.Type != gjson.String {
			return m.unrecognized(f, "missing token")
		}
		return Token{Text: tok.String()}

	case KindMessageComplete:
		return MessageComplete{Timestamp: m.timestamp(payload.Get("timestamp"))}

	case KindError:
		msg := payload.Get("error").String()
		if msg == "" {
			msg = payload.Get("message").String()
		}
		if msg == "" {
			msg = "unknown stream error"
		}
		return Failure{Message: msg}

	case KindHeartbeat:
		return Heartbeat{}

	default:
		m.logger.Debug("unrecognized event", "event", f.Event, "id", f.ID)
		return Unrecognized{Name: f.Event, Data: f.Data, Reason: "unknown event"}
	}
}

func (m *Mapper) unrecognized(f sse.Frame, reason string) Unrecognized {
	m.logger.Warn("dropping malformed frame",
		"event", f.Event,
		"id", f.ID,
		"reason", reason)
	return Unrecognized{Name: f.Event, Data: f.Data, Reason: reason}
}

// timestamp reads an ISO 8601 string, with or without an offset, or a unix
// epoch number, falling back to the mapper clock.
func (m *Mapper) timestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v.String()); err == nil {
				return t
			}
		}
	case gjson.Number:
		n := v.Float()
		if n >= epochMillisThreshold {
			return time.UnixMilli(int64(n))
		}
		return time.Unix(int64(n), 0)
	}
	return m.now()
}
