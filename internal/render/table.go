// ABOUTME: Terminal listings of archived sessions and transcript history
// ABOUTME: Supports table, plain, and json output formats

package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
)

const previewWidth = 60

// WriteSessions writes archived session summaries in the requested format.
func WriteSessions(w io.Writer, sessions []*store.SessionSummary, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeSessionsTable(w, sessions)
	case "plain":
		for _, s := range sessions {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.ID, s.LastAt.Format(time.RFC3339), s.MessageCount, escapeNewlines(s.Preview)); err != nil {
				return err
			}
		}
		return nil
	case "json":
		return writeJSON(w, sessions)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSessionsTable(w io.Writer, sessions []*store.SessionSummary) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: previewWidth},
	})
	tw.AppendHeader(table.Row{"Session", "Last Active", "Messages", "First Message"})

	for _, s := range sessions {
		tw.AppendRow(table.Row{
			s.ID,
			s.LastAt.Local().Format(time.DateTime),
			s.MessageCount,
			truncate(escapeNewlines(s.Preview), previewWidth),
		})
	}
	if len(sessions) == 0 {
		tw.AppendRow(table.Row{"(no sessions)", "-", 0, "-"})
	}

	tw.Render()
	return nil
}

// WriteHistory writes transcript messages in the requested format.
func WriteHistory(w io.Writer, msgs []conversation.Message, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeHistoryTable(w, msgs)
	case "plain":
		return WriteTranscript(w, msgs)
	case "json":
		return writeJSON(w, msgs)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeHistoryTable(w io.Writer, msgs []conversation.Message) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 80},
	})
	tw.AppendHeader(table.Row{"Time", "Role", "Content", "Tools"})

	for _, m := range msgs {
		tw.AppendRow(table.Row{
			m.Timestamp.Local().Format(time.TimeOnly),
			string(m.Role),
			m.Content,
			toolNames(m),
		})
	}

	tw.Render()
	return nil
}

// WriteTranscript writes a readable plain-text transcript.
func WriteTranscript(w io.Writer, msgs []conversation.Message) error {
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "[%s] %s:\n%s\n", m.Timestamp.Local().Format(time.DateTime), m.Role, m.Content); err != nil {
			return err
		}
		if tools := toolNames(m); tools != "" {
			if _, err := fmt.Fprintf(w, "  tools: %s\n", tools); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func toolNames(m conversation.Message) string {
	if m.Metadata == nil || len(m.Metadata.ToolInvocations) == 0 {
		return ""
	}
	names := make([]string, len(m.Metadata.ToolInvocations))
	for i, t := range m.Metadata.ToolInvocations {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
