// Package config handles Coterie configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Sync settings for the push/poll engine
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// State settings for durable client storage
	State StateConfig `yaml:"state" mapstructure:"state"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig locates the chat service.
type ServerConfig struct {
	// URL is the REST base URL.
	URL string `yaml:"url" mapstructure:"url"`

	// WebsocketURL is the push base URL. Derived from URL when empty.
	WebsocketURL string `yaml:"websocket_url" mapstructure:"websocket_url"`
}

// SyncConfig tunes the reconciliation engine.
type SyncConfig struct {
	// ReconnectDelayMs is the base pause before a socket reconnect attempt;
	// consecutive failures back off from here.
	ReconnectDelayMs int `yaml:"reconnect_delay_ms" mapstructure:"reconnect_delay_ms"`

	// RosterPollSeconds is the roster re-poll cadence.
	RosterPollSeconds int `yaml:"roster_poll_seconds" mapstructure:"roster_poll_seconds"`
}

// StateConfig locates durable client storage.
type StateConfig struct {
	// DBPath is the SQLite state database file path.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI owns the terminal, so logs
	// default to a file under the state directory.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	stateDir := defaultStateDir()
	return &Config{
		Server: ServerConfig{
			URL: "http://127.0.0.1:8000",
		},
		Sync: SyncConfig{
			ReconnectDelayMs:  1000,
			RosterPollSeconds: 30,
		},
		State: StateConfig{
			DBPath: filepath.Join(stateDir, "state.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(stateDir, "coterie.log"),
		},
	}
}

// ReconnectDelay returns the socket retry delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Sync.ReconnectDelayMs) * time.Millisecond
}

// RosterPollInterval returns the roster re-poll cadence as a duration.
func (c *Config) RosterPollInterval() time.Duration {
	return time.Duration(c.Sync.RosterPollSeconds) * time.Second
}

// WebsocketURL returns the push base URL, deriving ws:// or wss:// from the
// REST URL when not set explicitly.
func (c *Config) WebsocketURL() string {
	if c.Server.WebsocketURL != "" {
		return strings.TrimRight(c.Server.WebsocketURL, "/")
	}
	url := strings.TrimRight(c.Server.URL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Sync.ReconnectDelayMs <= 0 {
		return fmt.Errorf("sync.reconnect_delay_ms must be positive")
	}
	if c.Sync.RosterPollSeconds <= 0 {
		return fmt.Errorf("sync.roster_poll_seconds must be positive")
	}
	if strings.TrimSpace(c.State.DBPath) == "" {
		return fmt.Errorf("state.db_path is required")
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coterie"
	}
	return filepath.Join(home, ".local", "share", "coterie")
}

// DefaultConfigDir is where the config file is looked up.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coterie"
	}
	return filepath.Join(home, ".config", "coterie")
}
