// ABOUTME: Interactive chat REPL and one-shot send command
// ABOUTME: Ctrl+C cancels a running turn; at the prompt it exits

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/render"
)

func newChatCmd(a *app) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if resume != "" {
				if err := c.ResumeFromArchive(cmd.Context(), resume); err != nil {
					return err
				}
			}
			return a.repl(cmd.Context(), c, os.Stdin)
		},
	}

	cmd.Flags().StringVarP(&resume, "resume", "r", "", "continue an archived session")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var (
		resume      string
		turnContext map[string]string
	)

	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if resume != "" {
				if err := c.ResumeFromArchive(cmd.Context(), resume); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra map[string]any
			if len(turnContext) > 0 {
				extra = make(map[string]any, len(turnContext))
				for k, v := range turnContext {
					extra[k] = v
				}
			}

			if err := a.runTurn(ctx, c, strings.Join(args, " "), extra); err != nil {
				return err
			}
			if id := c.State().SessionID; id != "" {
				a.logger.Info("turn complete", "session_id", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&resume, "resume", "r", "", "continue an archived session")
	cmd.Flags().StringToStringVar(&turnContext, "context", nil, "context entries sent with the message (key=value)")
	return cmd
}

// runTurn sends one message and renders the reply while it streams.
func (a *app) runTurn(ctx context.Context, c *client.Client, message string, turnContext map[string]any) error {
	view := newTurnView(a.out)

	states, subID := c.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range states {
			view.update(s)
		}
	}()

	err := c.Send(ctx, message, turnContext)
	c.Unsubscribe(subID)
	<-done

	view.finish(c.State(), err)
	return err
}

func (a *app) repl(ctx context.Context, c *client.Client, in io.Reader) error {
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	// Interrupt cancels the running turn, or quits when idle.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == os.Interrupt && c.Cancel() {
					continue
				}
				quit()
				return
			}
		}
	}()

	cyan.Fprintf(a.out, "coven-chat connected to %s\n", a.cfg.Server.URL)
	if id := c.State().SessionID; id != "" {
		fmt.Fprintf(a.out, "Resumed session %s (%d messages)\n", id, len(c.State().Messages))
	}
	fmt.Fprintln(a.out, "Type a message and press Enter. /help for commands. Ctrl+C cancels a reply.")
	fmt.Fprintln(a.out)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	for {
		green.Fprint(a.out, "> ")

		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out, "\nGoodbye!")
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out, "\nGoodbye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-lines:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if stop := a.command(ctx, c, input); stop {
				fmt.Fprintln(a.out, "Goodbye!")
				return nil
			}
			fmt.Fprintln(a.out)
			continue
		}

		// Errors are rendered inline; the REPL keeps going.
		_ = a.runTurn(ctx, c, input, nil)
		fmt.Fprintln(a.out)
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (a *app) command(ctx context.Context, c *client.Client, input string) bool {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		return true

	case "/clear":
		if err := c.ClearHistory(ctx); err != nil {
			red.Fprintf(a.out, "[error] %v\n", err)
			fmt.Fprintln(a.out, "Local history cleared.")
			return false
		}
		fmt.Fprintln(a.out, "History cleared. The next message starts a new session.")

	case "/disconnect":
		c.Disconnect()
		fmt.Fprintln(a.out, "Disconnected. /reconnect to send again.")

	case "/reconnect":
		if err := c.Reconnect(); err != nil {
			red.Fprintf(a.out, "[error] %v\n", err)
			return false
		}
		fmt.Fprintln(a.out, "Reconnected.")

	case "/state":
		a.printState(c)

	case "/history":
		if err := render.WriteTranscript(a.out, c.State().Messages); err != nil {
			red.Fprintf(a.out, "[error] %v\n", err)
		}

	case "/help":
		printHelp(a.out)

	default:
		yellow.Fprintf(a.out, "Unknown command %s. /help lists commands.\n", input)
	}
	return false
}

func (a *app) printState(c *client.Client) {
	s := c.State()
	session := s.SessionID
	if session == "" {
		session = "(none)"
	}
	fmt.Fprintf(a.out, "connected: %t\n", s.Connected)
	fmt.Fprintf(a.out, "phase:     %s\n", s.Phase)
	fmt.Fprintf(a.out, "session:   %s\n", session)
	fmt.Fprintf(a.out, "messages:  %d\n", len(s.Messages))
	if s.Error != "" {
		red.Fprintf(a.out, "error:     %s\n", s.Error)
	}
}

func printHelp(w io.Writer) {
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  /history      Show this conversation")
	fmt.Fprintln(w, "  /clear        Clear history and start a new session")
	fmt.Fprintln(w, "  /state        Show connection and session state")
	fmt.Fprintln(w, "  /disconnect   Stop sending until /reconnect")
	fmt.Fprintln(w, "  /reconnect    Allow sending again")
	fmt.Fprintln(w, "  /help         Show this help")
	fmt.Fprintln(w, "  /quit         Exit (also /exit, /q, Ctrl+D)")
}
