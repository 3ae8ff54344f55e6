// Package config provides the engine configuration: where buffers and
// metadata live, which analytical target to connect to, and the server and
// preview settings. Values are layered defaults, file, environment, flags.
package config

import (
	"fmt"
	"strings"

	"github.com/openstats-labs/statcube/pkg/adapter"
)

// TargetConfig holds the analytical database target.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB). Use ":memory:" for an in-memory target.
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Validate checks the target against the adapter registry, which is the
// single source of truth for available types.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ToAdapterConfig converts the target to the adapter connection config.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PreviewConfig bounds the preview page size.
type PreviewConfig struct {
	MinPageSize int `koanf:"min_page_size"`
	MaxPageSize int `koanf:"max_page_size"`
}

// Config is the full engine configuration.
type Config struct {
	// DataDir roots the buffer store holding uploaded fact and lookup files.
	DataDir string `koanf:"data_dir"`

	// StatePath is the SQLite metadata database path.
	StatePath string `koanf:"state_path"`

	// RefDataSchema is the shared classification schema in the target.
	RefDataSchema string `koanf:"refdata_schema"`

	Target  TargetConfig  `koanf:"target"`
	Server  ServerConfig  `koanf:"server"`
	Preview PreviewConfig `koanf:"preview"`

	Verbose bool `koanf:"verbose"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return err
	}
	if c.Preview.MinPageSize < 1 {
		return fmt.Errorf("preview.min_page_size must be at least 1, got %d", c.Preview.MinPageSize)
	}
	if c.Preview.MaxPageSize < c.Preview.MinPageSize {
		return fmt.Errorf("preview.max_page_size (%d) must be at least preview.min_page_size (%d)",
			c.Preview.MaxPageSize, c.Preview.MinPageSize)
	}
	return nil
}
