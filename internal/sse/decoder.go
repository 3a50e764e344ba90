// ABOUTME: Incremental frame decoder for event-stream bodies delivered in arbitrary chunks
// ABOUTME: Emits only complete blank-line-terminated frames, buffering everything else

package sse

import (
	"log/slog"
	"strings"
)

// DefaultEventName is the event name used when a frame carries no event field.
const DefaultEventName = "message"

// Frame is one complete unit from the wire.
type Frame struct {
	Event string
	Data  string
	ID    string // empty when the frame had no id field
}

// Decoder turns raw byte chunks into frames. It is not safe for
// concurrent use; one decoder serves one response body.
type Decoder struct {
	text   *TextDecoder
	line   strings.Builder // incomplete trailing line
	logger *slog.Logger

	// afterCR is set when the last terminator seen was a bare CR, so a LF
	// opening the next chunk completes a CRLF instead of a blank line.
	afterCR bool

	// pending frame fields
	event    string
	data     []string
	id       string
	hasField bool
}

// NewDecoder creates a decoder. Pass nil logger for default.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		text:   NewTextDecoder(),
		logger: logger.With("component", "sse"),
	}
}

// Feed consumes one chunk and returns every frame it completed, in order.
// It may return no frames.
func (d *Decoder) Feed(chunk []byte) []Frame {
	return d.consume(d.text.Decode(chunk))
}

// Flush is called when the source reaches end of stream. Content that was
// never terminated by a blank line is discarded, never emitted. Calling
// Flush on a cleanly terminated stream returns no frames.
func (d *Decoder) Flush() []Frame {
	frames := d.consume(d.text.Flush())

	if d.line.Len() > 0 || d.hasField {
		d.logger.Warn("discarding unterminated frame at end of stream",
			"buffered_bytes", d.line.Len(),
			"event", d.event)
	}
	d.line.Reset()
	d.afterCR = false
	d.resetPending()

	return frames
}

// Reset drops all buffered state so the decoder can serve a new body.
func (d *Decoder) Reset() {
	d.text = NewTextDecoder()
	d.line.Reset()
	d.afterCR = false
	d.resetPending()
}

func (d *Decoder) consume(text string) []Frame {
	if text == "" {
		return nil
	}

	var frames []Frame
	for text != "" {
		if d.afterCR {
			d.afterCR = false
			if text[0] == '\n' {
				text = text[1:]
				continue
			}
		}

		// Lines end at CRLF, LF, or a bare CR.
		i := strings.IndexAny(text, "\r\n")
		if i < 0 {
			d.line.WriteString(text)
			return frames
		}

		var line string
		if d.line.Len() > 0 {
			d.line.WriteString(text[:i])
			line = d.line.String()
			d.line.Reset()
		} else {
			line = text[:i]
		}
		d.afterCR = text[i] == '\r'
		text = text[i+1:]

		if f, ok := d.processLine(line); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// processLine applies one complete line; it returns a frame when the line
// terminates one.
func (d *Decoder) processLine(line string) (Frame, bool) {
	if line == "" {
		if !d.hasField {
			return Frame{}, false
		}
		f := Frame{
			Event: d.event,
			Data:  strings.Join(d.data, "\n"),
			ID:    d.id,
		}
		if f.Event == "" {
			f.Event = DefaultEventName
		}
		d.resetPending()
		return f, true
	}

	// Comment line
	if strings.HasPrefix(line, ":") {
		return Frame{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		d.event = value
		d.hasField = true
	case "data":
		d.data = append(d.data, value)
		d.hasField = true
	case "id":
		d.id = value
		d.hasField = true
	default:
		d.logger.Debug("ignoring unknown field", "field", field)
	}
	return Frame{}, false
}

func (d *Decoder) resetPending() {
	d.event = ""
	d.data = nil
	d.id = ""
	d.hasField = false
}
