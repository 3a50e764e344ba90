// ABOUTME: Terminal client for streamed chat conversations
// ABOUTME: Cobra root command that loads config and logging for the chat, send, and archive subcommands

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/logging"
	"github.com/2389/coven-chat/internal/store"
)

// Set by the linker.
var (
	version   = "dev"
	gitCommit = "unknown"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	serverURL  string
	verbose    bool
	noColor    bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	out       io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	err := newRootCmd(a).Execute()
	a.teardown()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "coven-chat",
		Short: "Chat with a streaming assistant from the terminal",
		Long: `coven-chat sends messages to a chat server and renders the streamed reply
as it arrives. Finished conversations are archived locally so they can be
listed, reviewed, exported, and resumed.`,
		Version:           version + " (" + gitCommit + ")",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/coven/chat.yaml)")
	root.PersistentFlags().StringVar(&a.serverURL, "url", "", "chat server URL (overrides server.url)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newChatCmd(a),
		newSendCmd(a),
		newHistoryCmd(a),
		newSessionsCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, path, err := config.Resolve(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Server.URL = a.serverURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--url: %w", err)
		}
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	a.cfg = cfg
	a.logger, a.logCloser = logging.New(cfg.Logging, os.Stderr)

	a.logger.Debug("configuration loaded", "path", path, "server", cfg.Server.URL)
	return nil
}

func (a *app) teardown() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

func (a *app) newClient() (*client.Client, error) {
	c, err := client.New(a.cfg, client.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	return c, nil
}

func (a *app) openArchive() (*store.SQLiteStore, error) {
	if !a.cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive is disabled (archive.enabled: false)")
	}
	s, err := store.NewSQLiteStore(a.cfg.Archive.Path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return s, nil
}
