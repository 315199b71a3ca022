// Package config holds the lighthouse configuration, loaded from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Gather modes.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
)

// Config holds all lighthouse configuration.
type Config struct {
	Name string `yaml:"name"`

	// Browser configures the Chrome-backed gatherer.
	Browser BrowserConfig `yaml:"browser"`

	// Gather configures how artifacts are collected.
	Gather GatherConfig `yaml:"gather"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// GatherConfig configures artifact collection.
type GatherConfig struct {
	Mode          string `yaml:"mode"` // browser, http
	HTTPTimeoutMs int    `yaml:"http_timeout_ms"`
	Parallelism   int    `yaml:"parallelism"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "lighthouse",
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1350,
			ViewportHeight:      940,
			NavigationTimeoutMs: 30000,
		},
		Gather: GatherConfig{
			Mode:          ModeBrowser,
			HTTPTimeoutMs: 30000,
			Parallelism:   4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, then applies env overrides. A missing
// file is not an error; the defaults (plus env) are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overrides settings from LIGHTHOUSE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LIGHTHOUSE_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("LIGHTHOUSE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("LIGHTHOUSE_GATHER_MODE"); v != "" {
		c.Gather.Mode = v
	}
	if v := os.Getenv("LIGHTHOUSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Gather.Mode {
	case ModeBrowser, ModeHTTP:
	default:
		return fmt.Errorf("gather.mode must be %q or %q, got %q", ModeBrowser, ModeHTTP, c.Gather.Mode)
	}
	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("browser viewport dimensions must not be negative")
	}
	if c.Gather.Parallelism < 1 {
		return fmt.Errorf("gather.parallelism must be at least 1, got %d", c.Gather.Parallelism)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
