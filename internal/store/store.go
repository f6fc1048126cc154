// Package store provides the table store: named, schema-typed tabular
// storage with atomic per-table writes. Tables are addressed by qualified
// name ("layer.table", e.g. "bronze.crm_cust_info"); there is no ambient
// current-schema state. Backends register themselves at init time, the way
// database adapters do.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/strata-labs/strata/internal/table"
)

// WriteMode controls how a write interacts with an existing table.
type WriteMode string

// Write modes.
const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
)

// ParseWriteMode validates a mode string from configuration.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case WriteOverwrite, WriteAppend:
		return WriteMode(s), nil
	case "":
		return WriteOverwrite, nil
	default:
		return "", fmt.Errorf("unknown write mode %q", s)
	}
}

// Store is the table store contract. A Write either fully replaces (or
// extends) the named table or leaves the previously committed table
// untouched; no partial write is ever observable through Read.
type Store interface {
	Read(ctx context.Context, qualified string) (*table.Table, error)
	Write(ctx context.Context, qualified string, t *table.Table, mode WriteMode) error
	Close() error
}

// WriteError wraps a failed table write. The prior committed table remains
// readable.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write table %s: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NotFoundError is returned by Read for a table that was never written.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %s not found", e.Table)
}

// SplitQualified splits "layer.table" into its parts.
func SplitQualified(qualified string) (schema, name string, err error) {
	parts := strings.Split(qualified, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid qualified table name %q (want layer.table)", qualified)
	}
	return parts[0], parts[1], nil
}

// Config selects and configures a store backend.
type Config struct {
	// Type is the backend name: "duckdb", "postgres" or "memory".
	Type string

	// Path is the database file path for file-based backends.
	// Empty means in-memory for DuckDB.
	Path string

	// Network backends.
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Factory builds an unconnected store backend.
type Factory func(logger *slog.Logger) Store

var factories = map[string]Factory{}

// Register makes a store backend available by name.
func Register(name string, f Factory) {
	factories[name] = f
}

// IsRegistered reports whether a backend name is known.
func IsRegistered(name string) bool {
	_, ok := factories[name]
	return ok
}

// ListBackends returns the registered backend names, sorted.
func ListBackends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connector is implemented by backends that need a connection step.
type Connector interface {
	Connect(ctx context.Context, cfg Config) error
}

// Open creates and connects the store backend named by cfg.Type.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (available: %s)",
			cfg.Type, strings.Join(ListBackends(), ", "))
	}
	s := f(logger)
	if c, ok := s.(Connector); ok {
		if err := c.Connect(ctx, cfg); err != nil {
			return nil, fmt.Errorf("connect %s store: %w", cfg.Type, err)
		}
	}
	return s, nil
}
