// ABOUTME: Renders one streamed turn to the terminal from state snapshots
// ABOUTME: Prints token deltas, thinking steps, and tool calls as they arrive

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/conversation"
)

var (
	dim    = color.New(color.Faint)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
)

// turnView tracks what has been printed for the current turn. Snapshots
// can be conflated, so it prints whatever is new since the last one.
type turnView struct {
	out io.Writer

	mu       sync.Mutex
	printed  int // bytes of the response already written
	thinking string
	tools    int
	midLine  bool
}

func newTurnView(out io.Writer) *turnView {
	return &turnView{out: out}
}

func (v *turnView) update(s conversation.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !s.IsProcessing {
		return
	}

	if s.ThinkingStep != "" && s.ThinkingStep != v.thinking {
		v.thinking = s.ThinkingStep
		v.note(dim, "… "+s.ThinkingStep)
	}

	for ; v.tools < len(s.ToolCalls); v.tools++ {
		v.note(yellow, "⚙ "+s.ToolCalls[v.tools].Name)
	}

	if len(s.CurrentResponse) > v.printed {
		v.write(s.CurrentResponse[v.printed:])
	}
}

// finish prints whatever the conflated stream missed and the turn result.
func (v *turnView) finish(s conversation.State, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case err == nil:
		if n := len(s.Messages); n > 0 {
			last := s.Messages[n-1]
			if last.Role == conversation.RoleAssistant && len(last.Content) > v.printed {
				v.write(last.Content[v.printed:])
			}
		}
		v.endLine()
	case errors.Is(err, client.ErrCanceled):
		v.endLine()
		dim.Fprintln(v.out, "[canceled]")
	default:
		v.endLine()
		red.Fprintf(v.out, "[error] %v\n", err)
	}
}

func (v *turnView) write(text string) {
	fmt.Fprint(v.out, text)
	v.printed += len(text)
	v.midLine = !strings.HasSuffix(text, "\n")
}

func (v *turnView) note(c *color.Color, text string) {
	v.endLine()
	c.Fprintln(v.out, text)
}

func (v *turnView) endLine() {
	if v.midLine {
		fmt.Fprintln(v.out)
		v.midLine = false
	}
}
