// ABOUTME: Standalone HTML export of a transcript
// ABOUTME: Message bodies are rendered from Markdown with goldmark; raw HTML is omitted

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-chat/internal/conversation"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; color: #222; }
.msg { border-radius: 8px; padding: 0.75rem 1rem; margin: 0.75rem 0; }
.user { background: #eef4ff; }
.assistant { background: #f6f6f6; }
.meta { font-size: 0.8rem; color: #777; }
details { font-size: 0.85rem; margin-top: 0.5rem; }
pre { overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .SessionID}}<p class="meta">Session {{.SessionID}}</p>{{end}}
{{range .Messages}}<div class="msg {{.Role}}">
<div class="meta">{{.Role}} · {{.Time}}</div>
{{.Body}}
{{if .Thinking}}<p class="meta">thinking: {{.Thinking}}</p>{{end}}
{{range .Tools}}<details><summary>tool: {{.Name}}</summary>
<pre>{{.Parameters}}</pre>{{if .Resolved}}
<pre>{{.Result}}</pre>{{end}}
</details>
{{end}}</div>
{{else}}<p class="meta">No messages.</p>
{{end}}</body>
</html>
`))

type htmlTool struct {
	Name       string
	Parameters string
	Result     string
	Resolved   bool
}

type htmlMessage struct {
	Role     conversation.Role
	Time     string
	Body     template.HTML
	Thinking string
	Tools    []htmlTool
}

// TranscriptHTML writes msgs as a self-contained HTML page.
func TranscriptHTML(w io.Writer, title, sessionID string, msgs []conversation.Message) error {
	data := struct {
		Title     string
		SessionID string
		Messages  []htmlMessage
	}{
		Title:     title,
		SessionID: sessionID,
	}

	for _, m := range msgs {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}

		hm := htmlMessage{
			Role: m.Role,
			Time: m.Timestamp.Local().Format(time.DateTime),
			// goldmark omits raw HTML unless WithUnsafe is set.
			Body: template.HTML(body.String()),
		}
		if m.Metadata != nil {
			hm.Thinking = m.Metadata.ThinkingStep
			for _, t := range m.Metadata.ToolInvocations {
				hm.Tools = append(hm.Tools, htmlTool{
					Name:       t.Name,
					Parameters: prettyJSON(t.Parameters),
					Result:     prettyJSON(t.Result),
					Resolved:   t.Resolved,
				})
			}
		}
		data.Messages = append(data.Messages, hm)
	}

	if err := transcriptTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

func prettyJSON(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
