package modeling

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/table"
)

// BuildFact reads the grain source and the referenced dimensions from the
// store and returns the fact table: one row per grain row, surrogate
// foreign keys resolved by canonical business key. A grain row whose key
// fails to resolve maps to the unknown surrogate instead of being dropped,
// so fact totals always reconcile with the conformed source.
func BuildFact(ctx context.Context, st store.Store, spec FactSpec, logger *slog.Logger) (*table.Table, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	grain, err := st.Read(ctx, spec.Source)
	if err != nil {
		return nil, fmt.Errorf("read grain %s: %w", spec.Source, err)
	}

	type dimLookup struct {
		ref        DimensionRef
		grainIdx   int
		surrogates map[string]int64
	}

	lookups := make([]dimLookup, 0, len(spec.Dimensions))
	for _, ref := range spec.Dimensions {
		dim, err := st.Read(ctx, ref.Dimension)
		if err != nil {
			return nil, fmt.Errorf("read dimension %s: %w", ref.Dimension, err)
		}
		keyIdx := dim.ColumnIndex(ref.DimKey)
		if keyIdx < 0 {
			return nil, fmt.Errorf("fact %s: dimension %s has no column %q",
				spec.Name, ref.Dimension, ref.DimKey)
		}
		// The conformed layer stores every business key as a string; a
		// differently-typed key column here means a stage skipped the
		// canonical cast.
		if dim.Columns[keyIdx].Type != table.TypeString {
			return nil, &TypeCoercionError{
				Table:  ref.Dimension,
				Column: ref.DimKey,
				Type:   dim.Columns[keyIdx].Type,
			}
		}
		surIdx := dim.ColumnIndex(ref.SurrogateColumn)
		if surIdx < 0 {
			return nil, fmt.Errorf("fact %s: dimension %s has no column %q",
				spec.Name, ref.Dimension, ref.SurrogateColumn)
		}
		grainIdx := grain.ColumnIndex(ref.GrainKey)
		if grainIdx < 0 {
			return nil, fmt.Errorf("fact %s: grain has no column %q", spec.Name, ref.GrainKey)
		}

		surrogates := make(map[string]int64, dim.NumRows())
		for _, row := range dim.Rows {
			key := table.Canonical(row[keyIdx])
			if key == "" {
				continue
			}
			if sk, ok := table.AsInt(row[surIdx]); ok {
				if _, exists := surrogates[key]; !exists {
					surrogates[key] = sk
				}
			}
		}
		lookups = append(lookups, dimLookup{ref: ref, grainIdx: grainIdx, surrogates: surrogates})
	}

	columns := make([]table.Column, 0, len(lookups)+len(spec.Columns)+len(spec.Derived))
	for _, l := range lookups {
		columns = append(columns, table.Column{Name: l.ref.As, Type: table.TypeInt})
	}
	pickIdx := make([]int, len(spec.Columns))
	for i, p := range spec.Columns {
		ci := grain.ColumnIndex(p.From)
		if ci < 0 {
			return nil, fmt.Errorf("fact %s: grain has no column %q", spec.Name, p.From)
		}
		pickIdx[i] = ci
		columns = append(columns, table.Column{Name: p.As, Type: grain.Columns[ci].Type})
	}

	out := table.New(spec.Name, columns)
	unresolved := 0
	for _, src := range grain.Rows {
		row := make([]any, len(columns))
		for i, l := range lookups {
			key := table.Canonical(src[l.grainIdx])
			sk, ok := l.surrogates[key]
			if !ok {
				sk = UnknownSurrogate
				unresolved++
			}
			row[i] = sk
		}
		for i, ci := range pickIdx {
			row[len(lookups)+i] = src[ci]
		}
		out.Rows = append(out.Rows, row)
	}

	for _, d := range spec.Derived {
		if err := applyDerivedColumn(out, d.Name, d.Type, d.Fn); err != nil {
			return nil, fmt.Errorf("fact %s: %w", spec.Name, err)
		}
	}

	if unresolved > 0 {
		logger.Warn("fact rows mapped to unknown dimension member",
			"fact", spec.Name, "rows", unresolved)
	}
	logger.Debug("fact built", "fact", spec.Name, "rows", out.NumRows())
	return out, nil
}
