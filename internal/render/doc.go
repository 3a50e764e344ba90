// Package render turns transcripts and archive listings into output for
// people: go-pretty tables and plain text for the terminal, and a
// standalone HTML page (message bodies rendered as Markdown with goldmark)
// for export.
package render
