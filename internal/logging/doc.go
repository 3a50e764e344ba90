// Package logging builds the process-wide slog.Logger from configuration.
//
// Formats:
//
//   - color: compact colorized lines for terminals ("15:04:05 INF msg k=v")
//   - text: slog.TextHandler
//   - json: slog.JSONHandler
//
// color falls back to uncolored output when the destination is not a
// terminal. When logging.file is set, output goes to a size-rotated file
// (lumberjack) instead of stderr.
package logging
