// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no explicit
// config path is given.
const EnvConfigPath = "COVEN_CHAT_CONFIG"

// EnvServerURL overrides server.url after the file is loaded.
const EnvServerURL = "COVEN_CHAT_URL"

// Config represents the complete coven-chat configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Stream  StreamConfig  `yaml:"stream" toml:"stream"`
	Archive ArchiveConfig `yaml:"archive" toml:"archive"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig locates the chat backend
type ServerConfig struct {
	URL         string `yaml:"url" toml:"url"`
	ChatPath    string `yaml:"chat_path" toml:"chat_path"`
	SessionPath string `yaml:"session_path" toml:"session_path"`
}

// StreamConfig holds streaming transport settings
type StreamConfig struct {
	ConnectTimeout time.Duration `yaml:"-" toml:"-"`
	IdleTimeout    time.Duration `yaml:"-" toml:"-"` // 0 disables the watchdog
	DedupeTTL      time.Duration `yaml:"-" toml:"-"`

	ReadBuffer int  `yaml:"read_buffer" toml:"read_buffer"`
	DedupeIDs  bool `yaml:"dedupe_ids" toml:"dedupe_ids"`

	// Raw string values for unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout" toml:"connect_timeout"`
	IdleTimeoutRaw    string `yaml:"idle_timeout" toml:"idle_timeout"`
	DedupeTTLRaw      string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// ArchiveConfig holds the local transcript archive settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"` // color, text, or json
	File       string `yaml:"file" toml:"file"`     // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:         "http://127.0.0.1:8080",
			ChatPath:    "/api/chat/stream",
			SessionPath: "/api/chat/sessions",
		},
		Stream: StreamConfig{
			ConnectTimeout:    10 * time.Second,
			DedupeTTL:         5 * time.Minute,
			ReadBuffer:        4096,
			ConnectTimeoutRaw: "10s",
			IdleTimeoutRaw:    "0s",
			DedupeTTLRaw:      "5m",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    DefaultArchivePath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "color",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve finds and loads the configuration. The lookup order is the
// explicit path, then $COVEN_CHAT_CONFIG, then the default location. Only
// a missing default file falls back to Default(); an explicitly named file
// must exist. The returned path is "" when defaults were used.
func Resolve(explicit string) (*Config, string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}

	path = DefaultPath()
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := cfg.finish(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	return cfg, path, err
}

// finish applies env overrides, parses durations, and validates.
func (c *Config) finish() error {
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		c.Server.URL = v
	}

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/coven/chat.yaml.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "coven-chat.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven", "chat.yaml")
}

// DefaultArchivePath returns $XDG_DATA_HOME/coven/chat.db.
func DefaultArchivePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "coven-chat.db")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "coven", "chat.db")
}

// envVarPattern matches ${VAR} and ${VAR:-fallback}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// An unset variable expands to its fallback, or to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}

// ChatURL returns the absolute URL of the streaming endpoint.
func (c *Config) ChatURL() string {
	return strings.TrimRight(c.Server.URL, "/") + c.Server.ChatPath
}

// SessionURL returns the absolute URL of one server-side session.
func (c *Config) SessionURL(sessionID string) string {
	return strings.TrimRight(c.Server.URL, "/") + c.Server.SessionPath + "/" + url.PathEscape(sessionID)
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url must include a host")
	}

	if !strings.HasPrefix(c.Server.ChatPath, "/") {
		return fmt.Errorf("server.chat_path must start with /")
	}
	if !strings.HasPrefix(c.Server.SessionPath, "/") {
		return fmt.Errorf("server.session_path must start with /")
	}

	if c.Stream.ReadBuffer <= 0 {
		return fmt.Errorf("stream.read_buffer must be positive")
	}
	if c.Stream.ConnectTimeout < 0 || c.Stream.IdleTimeout < 0 || c.Stream.DedupeTTL < 0 {
		return fmt.Errorf("stream durations must not be negative")
	}
	if c.Stream.DedupeIDs && c.Stream.DedupeTTL == 0 {
		return fmt.Errorf("stream.dedupe_ttl is required when stream.dedupe_ids is enabled")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "color", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of color, text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", cfg.Stream.ConnectTimeoutRaw, &cfg.Stream.ConnectTimeout},
		{"idle_timeout", cfg.Stream.IdleTimeoutRaw, &cfg.Stream.IdleTimeout},
		{"dedupe_ttl", cfg.Stream.DedupeTTLRaw, &cfg.Stream.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
