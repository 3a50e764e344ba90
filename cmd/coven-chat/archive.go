// ABOUTME: Commands over the local transcript archive
// ABOUTME: history, sessions, sessions rm, and export to HTML

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/render"
	"github.com/2389/coven-chat/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			rows, err := archive.ListMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("session %s: %w", args[0], store.ErrNotFound)
			}
			msgs, err := client.FromArchive(rows)
			if err != nil {
				return err
			}
			return render.WriteHistory(a.out, msgs, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the most recent n messages")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, plain, json")
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List archived sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			sessions, err := archive.ListSessions(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if len(sessions) == 0 && format != "json" {
				fmt.Fprintln(a.out, "No archived sessions.")
				return nil
			}
			return render.WriteSessions(a.out, sessions, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list (0 for all)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, plain, json")

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <session-id>...",
		Short: "Delete archived sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			var errs []error
			for _, id := range args {
				if err := archive.DeleteSession(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("deleting %s: %w", id, err))
					continue
				}
				fmt.Fprintf(a.out, "Deleted %s\n", id)
			}
			return errors.Join(errs...)
		},
	})
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		output string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export an archived conversation as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			rows, err := archive.ListMessages(cmd.Context(), sessionID, 0)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
			}
			msgs, err := client.FromArchive(rows)
			if err != nil {
				return err
			}

			if title == "" {
				title = "Conversation " + sessionID
			}

			if output == "" || output == "-" {
				return render.TranscriptHTML(a.out, title, sessionID, msgs)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := render.TranscriptHTML(f, title, sessionID, msgs); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			a.logger.Info("exported session", "session_id", sessionID, "path", output, "messages", len(msgs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&title, "title", "", "page title")
	return cmd
}
