// ABOUTME: Colorized slog handler for interactive terminals
// ABOUTME: Prints "time LVL message key=value" lines with thread-safe writes

package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type palette struct {
	dim, debug, info, warn, err *color.Color
}

func newPalette(noColor bool) *palette {
	p := &palette{
		dim:   color.New(color.FgHiBlack),
		debug: color.New(color.FgMagenta),
		info:  color.New(color.FgCyan),
		warn:  color.New(color.FgYellow),
		err:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.dim, p.debug, p.info, p.warn, p.err} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return p
}

// ColorHandler is a compact human-oriented slog handler. Handlers derived
// with WithAttrs or WithGroup share the writer and its lock.
type ColorHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	colors *palette
	attrs  []slog.Attr
	prefix string // dotted group path for record attrs
}

// NewColorHandler creates a handler writing to w.
func NewColorHandler(w io.Writer, level slog.Leveler, noColor bool) *ColorHandler {
	return &ColorHandler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		colors: newPalette(noColor),
	}
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	if !r.Time.IsZero() {
		buf.WriteString(h.colors.dim.Sprint(r.Time.Format("15:04:05")))
		buf.WriteByte(' ')
	}

	switch {
	case r.Level < slog.LevelInfo:
		buf.WriteString(h.colors.debug.Sprint("DBG "))
	case r.Level < slog.LevelWarn:
		buf.WriteString(h.colors.info.Sprint("INF "))
	case r.Level < slog.LevelError:
		buf.WriteString(h.colors.warn.Sprint("WRN "))
	default:
		buf.WriteString(h.colors.err.Sprint("ERR "))
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, h.prefix, a)
		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *ColorHandler) writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, prefix, ga)
		}
		return
	}

	buf.WriteString(h.colors.dim.Sprint(" " + prefix + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}
