// Package config loads pipeline configuration from a layered set of
// sources: built-in defaults, the strata.yaml project file, STRATA_
// environment variables and command-line flags, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/strata-labs/strata/internal/store"
)

// TargetConfig selects and configures the table-store backend.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, memory

	// File-based backends (DuckDB).
	Database string `koanf:"database"` // file path, ":memory:" or database name

	// Network backends.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// Validate checks the target against the registered store backends.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !store.IsRegistered(strings.ToLower(t.Type)) {
		return fmt.Errorf("unknown target type %q (available: %s)",
			t.Type, strings.Join(store.ListBackends(), ", "))
	}
	return nil
}

// ToStoreConfig converts the target to the store backend config.
func (t *TargetConfig) ToStoreConfig() store.Config {
	return store.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Database,
		Host:     t.Host,
		Port:     t.Port,
		User:     t.User,
		Password: t.Password,
		Database: t.Database,
	}
}

// Config is the full pipeline configuration.
type Config struct {
	// DataDir is the root folder of the raw source files; the source
	// registry resolves its paths against it.
	DataDir string `koanf:"data_dir"`

	// StatePath is the SQLite run-history database.
	StatePath string `koanf:"state_path"`

	// RunDate labels the run, "2006-01-02". Empty means today.
	RunDate string `koanf:"run_date"`

	Verbose bool `koanf:"verbose"`

	Target *TargetConfig `koanf:"target"`
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Target == nil {
		return fmt.Errorf("target is required")
	}
	return c.Target.Validate()
}
