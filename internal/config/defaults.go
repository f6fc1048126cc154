package config

import "time"

// Default configuration values.
const (
	DefaultDataDir    = "data"
	DefaultStatePath  = "strata_state.db"
	DefaultTargetType = "duckdb"
	DefaultDatabase   = "strata.duckdb"
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.RunDate == "" {
		c.RunDate = time.Now().UTC().Format("2006-01-02")
	}
	if c.Target == nil {
		c.Target = &TargetConfig{}
	}
	c.Target.ApplyDefaults()
}

// ApplyDefaults fills unset target fields based on the backend type.
func (t *TargetConfig) ApplyDefaults() {
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if t.Type == "duckdb" && t.Database == "" {
		t.Database = DefaultDatabase
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
