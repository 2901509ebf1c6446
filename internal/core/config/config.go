// Package config handles configuration loading and validation for court.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Export backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the application configuration.
type Config struct {
	Agents  AgentsConfig  `yaml:"agents"`
	History HistoryConfig `yaml:"history"`
	Export  ExportConfig  `yaml:"export"`
	Report  ReportConfig  `yaml:"report"`
	DataDir string        `yaml:"-"` // set by caller, not from config file
}

// AgentsConfig holds per-agent runtime settings.
type AgentsConfig struct {
	// RequestTTL abandons unanswered requests after this long. Zero
	// keeps them pending for the whole run.
	RequestTTL time.Duration `yaml:"request_ttl"`
}

// HistoryConfig bounds the in-memory audit log.
type HistoryConfig struct {
	// MaxEntries caps each agent's history; zero is unlimited.
	MaxEntries int `yaml:"max_entries"`
}

// ExportConfig controls where run histories are written.
type ExportConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`     // defaults under DataDir
	Compress      bool   `yaml:"compress"` // json backend only
	IntervalSteps int    `yaml:"interval_steps"`
}

// ReportConfig holds report defaults.
type ReportConfig struct {
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Export: ExportConfig{
			Backend: BackendJSON,
		},
		Report: ReportConfig{
			Format: FormatText,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Export.Backend == "" {
		c.Export.Backend = defaults.Export.Backend
	}
	if c.Report.Format == "" {
		c.Report.Format = defaults.Report.Format
	}
}

// ExportPath returns where the configured backend writes: a directory
// for json, a database file for sqlite. Empty for the none backend.
func (c *Config) ExportPath() string {
	if c.Export.Path != "" {
		return c.Export.Path
	}
	switch c.Export.Backend {
	case BackendJSON:
		return filepath.Join(c.DataDir, "history")
	case BackendSQLite:
		return filepath.Join(c.DataDir, "history.db")
	default:
		return ""
	}
}

func isValidBackend(b string) bool {
	switch b {
	case BackendJSON, BackendSQLite, BackendNone:
		return true
	default:
		return false
	}
}

func isValidFormat(f string) bool {
	switch f {
	case FormatText, FormatJSON:
		return true
	default:
		return false
	}
}
