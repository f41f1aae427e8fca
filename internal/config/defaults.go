package config

import "os"

// Default values applied when neither the config file nor CLI flags set a
// field.
const (
	DefaultAddr              = "127.0.0.1:7070"
	DefaultLogLevel          = "info"
	DefaultPendingLimitBytes = 4 * 1024 * 1024
)

// ApplyDefaults fills unset fields with their defaults. Called after Load and
// after CLI flag merging so explicit values always survive.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.SessionCmd == "" {
		if shell := os.Getenv("SHELL"); shell != "" {
			c.SessionCmd = shell
		} else {
			c.SessionCmd = "/bin/sh"
		}
	}
	if c.Store == "" {
		if path, err := DefaultStorePath(); err == nil {
			c.Store = path
		}
	}
	if c.PendingLimitBytes == 0 {
		c.PendingLimitBytes = DefaultPendingLimitBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LocalTerminal == nil {
		on := true
		c.LocalTerminal = &on
	}
}

// LocalTerminalEnabled reports whether the host should mirror the session to
// its own terminal. Defaults to true when unset.
func (c *Config) LocalTerminalEnabled() bool {
	return c.LocalTerminal == nil || *c.LocalTerminal
}
