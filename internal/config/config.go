// Package config provides TOML configuration file loading for the host.
// The configuration file lives at ~/.tandemterm/config.toml by default, but
// can be overridden with the --config flag. CLI flags always take precedence
// over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the host configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7070
	Addr string `toml:"addr"`

	// SessionCmd is the command to run in the pseudo-terminal session,
	// typically the AI coding assistant. If empty, defaults to the user's
	// shell ($SHELL or /bin/sh).
	SessionCmd string `toml:"session_cmd"`

	// SessionArgs are additional arguments passed to SessionCmd.
	SessionArgs []string `toml:"session_args"`

	// Store is the path to the SQLite database for session and
	// waiting-state audit rows.
	// Default: ~/.tandemterm/tandemterm.db
	Store string `toml:"store"`

	// PendingLimitBytes caps how much pre-attach output is buffered per
	// session before the oldest chunks are dropped. 0 selects the default
	// of 4 MiB; -1 removes the cap entirely.
	PendingLimitBytes int `toml:"pending_limit_bytes"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the host advertises itself on the local network so
	// viewer apps can discover it without manual IP entry.
	// Default: false (must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// LocalTerminal mirrors PTY output to the host's own terminal and
	// forwards local keystrokes into the session. Disable for headless
	// operation where only remote viewers interact.
	// Default: true
	LocalTerminal *bool `toml:"local_terminal"`
}

// DefaultConfigPath returns the default config file location:
// ~/.tandemterm/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tandemterm", "config.toml"), nil
}

// DefaultStorePath returns the default database location:
// ~/.tandemterm/tandemterm.db.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tandemterm", "tandemterm.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.tandemterm/config.toml). Returns an empty Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if
		// missing. This allows the host to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist. If the
		// user names a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// WriteDefault creates a config file with commented defaults at the given
// path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# tandemterm configuration

# Listen on all interfaces for LAN access from viewer devices
addr = "0.0.0.0:7070"

# Command to run in the session (defaults to your shell)
# session_cmd = "claude"

# Advertise the host on the local network for viewer discovery
mdns_enabled = true
`

	// Owner read/write only.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
