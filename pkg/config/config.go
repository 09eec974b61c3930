// Package config loads the host-side configuration file. All settings
// are optional; a missing file yields defaults, and CLI flags override
// whatever the file provides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level structure of config.toml.
type Config struct {
	// Shell overrides shell detection from $SHELL. Either a dialect
	// name ("bash") or an absolute path ("/usr/bin/zsh").
	Shell string `toml:"shell"`
	// LogFile is where command entries are appended.
	LogFile string `toml:"log_file"`
	// CaptureLimit caps retained output per command, in bytes.
	CaptureLimit int `toml:"capture_limit"`
	// Verbose enables internal diagnostics on stderr.
	Verbose bool `toml:"verbose"`
}

// DefaultLogFile is used when neither the config file nor the CLI
// provides a log path.
const DefaultLogFile = "shellmark.log"

// DefaultPath returns the standard config file location,
// ~/.config/shellmark/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "shellmark", "config.toml"), nil
}

// Load parses the config file at path. A missing file is not an error:
// it returns the defaults. A malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
}

func (c *Config) validate() error {
	if c.CaptureLimit < 0 {
		return fmt.Errorf("config.Load: capture_limit must not be negative, got %d", c.CaptureLimit)
	}
	return nil
}
