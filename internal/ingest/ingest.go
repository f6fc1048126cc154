// Package ingest implements the raw layer: a config-driven loop that loads
// each declared source file and writes it to the table store with no
// transformation beyond type inference. Lineage columns record when and
// from where every raw row arrived.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/table"
)

// Lineage columns appended to every raw table.
const (
	ColIngestedAt   = "_ingested_at"
	ColSourceSystem = "_source_system"
	ColSourceFile   = "_source_file"
)

// Source describes one file to ingest. Descriptors are defined statically
// in configuration and immutable during a run.
type Source struct {
	// System is the originating system ("crm", "erp"); it routes log
	// messages and fills the lineage columns.
	System string
	// Path is the source file location.
	Path string
	// Table is the unqualified raw table name; the engine writes it under
	// the bronze layer.
	Table string
	// WriteMode is overwrite or append.
	WriteMode store.WriteMode
}

// Qualified returns the qualified raw table name.
func (s Source) Qualified() string { return "bronze." + s.Table }

// SourceLoadError reports a source file that could not be read.
type SourceLoadError struct {
	Path string
	Err  error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("load source %s: %v", e.Path, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

// SourceStatus is the per-source outcome of an ingestion run.
type SourceStatus struct {
	Source Source
	Rows   int
	Err    error
}

// Failed reports whether this source failed to ingest.
func (s SourceStatus) Failed() bool { return s.Err != nil }

// Engine loads declared sources into the raw layer.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

// NewEngine creates an ingestion engine over the given table store.
func NewEngine(st store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: st, logger: logger}
}

// Ingest loads every source in declared order and reports a status per
// source. It does not stop on failure; continuation policy belongs to the
// orchestrator. A failed write never replaces a previously committed table.
func (e *Engine) Ingest(ctx context.Context, sources []Source, ingestedAt time.Time) []SourceStatus {
	statuses := make([]SourceStatus, 0, len(sources))
	for _, src := range sources {
		rows, err := e.IngestOne(ctx, src, ingestedAt)
		statuses = append(statuses, SourceStatus{Source: src, Rows: rows, Err: err})
	}
	return statuses
}

// IngestOne loads a single source file and writes it to the raw layer,
// returning the number of rows ingested.
func (e *Engine) IngestOne(ctx context.Context, src Source, ingestedAt time.Time) (int, error) {
	e.logger.Info("ingest started", "system", src.System, "path", src.Path, "table", src.Qualified())

	t, err := table.LoadCSV(src.Table, src.Path)
	if err != nil {
		e.logger.Error("ingest load failed", "system", src.System, "path", src.Path, "error", err)
		return 0, &SourceLoadError{Path: src.Path, Err: err}
	}

	appendLineage(t, src, ingestedAt)

	if err := e.store.Write(ctx, src.Qualified(), t, src.WriteMode); err != nil {
		e.logger.Error("ingest write failed", "system", src.System, "table", src.Qualified(), "error", err)
		return 0, err
	}

	e.logger.Info("ingest completed", "system", src.System, "table", src.Qualified(), "rows", t.NumRows())
	return t.NumRows(), nil
}

// appendLineage adds the bronze lineage columns with one constant value
// per column for the whole load.
func appendLineage(t *table.Table, src Source, ingestedAt time.Time) {
	ts := ingestedAt.UTC().Format(time.RFC3339)
	file := filepath.Base(src.Path)

	t.Columns = append(t.Columns,
		table.Column{Name: ColIngestedAt, Type: table.TypeString},
		table.Column{Name: ColSourceSystem, Type: table.TypeString},
		table.Column{Name: ColSourceFile, Type: table.TypeString},
	)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], ts, src.System, file)
	}
}
