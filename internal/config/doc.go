// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion. Keys missing from the file keep
// their defaults; the result is validated before use.
//
// # Configuration File
//
// Lookup order:
//
//  1. Path passed with --config
//  2. Path from COVEN_CHAT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/chat.yaml (~/.config/coven/chat.yaml)
//
// A missing file at the default location means built-in defaults. A file
// named explicitly must exist.
//
// COVEN_CHAT_URL, when set, overrides server.url.
//
// # Environment Variable Expansion
//
//	server:
//	  url: "https://${CHAT_HOST}"
//	logging:
//	  level: "${CHAT_LOG_LEVEL:-info}"
//
// Syntax: ${VAR_NAME} or ${VAR_NAME:-fallback}
//
// # Configuration Sections
//
//	server:
//	  url: "http://127.0.0.1:8080"
//	  chat_path: "/api/chat/stream"
//	  session_path: "/api/chat/sessions"
//
//	stream:
//	  connect_timeout: "10s"
//	  idle_timeout: "0s"      # 0 disables the watchdog
//	  read_buffer: 4096       # bytes per body read
//	  dedupe_ids: false       # drop frames whose id was already seen
//	  dedupe_ttl: "5m"
//
//	archive:
//	  enabled: true
//	  path: "~/.local/share/coven/chat.db"
//
//	logging:
//	  level: "info"           # debug, info, warn, error
//	  format: "color"         # color, text, json
//	  file: ""                # empty logs to stderr
//	  max_size_mb: 10
//	  max_backups: 3
//	  max_age_days: 28
//	  compress: false
//
// Duration values use Go's time.ParseDuration syntax.
//
// # Usage
//
//	cfg, path, err := config.Resolve(flagPath)
//	if err != nil {
//	    return err
//	}
package config
