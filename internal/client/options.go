// ABOUTME: Functional options for constructing a Client
// ABOUTME: Overrides for the HTTP client, logger, and transcript archive

package client

import (
	"log/slog"
	"net/http"

	"github.com/2389/coven-chat/internal/store"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from stream settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithArchive uses an already opened archive instead of opening
// archive.path. The caller keeps ownership and closes it. A nil archive
// disables archiving.
func WithArchive(archive store.Archive) Option {
	return func(c *Client) {
		c.archive = archive
		c.archiveSet = true
	}
}
