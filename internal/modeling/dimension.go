package modeling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/strata-labs/strata/internal/clean"
	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/table"
)

// BuildDimension reads the spec's sources from the store and returns the
// dimension table: one row per canonical business key, surrogate keys
// assigned densely from 1 over keys sorted ascending, the unknown member
// (surrogate 0) first when declared. The assignment depends only on the key
// set, so a full refresh over identical input reproduces the table exactly.
func BuildDimension(ctx context.Context, st store.Store, spec DimensionSpec, logger *slog.Logger) (*table.Table, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	primary, err := st.Read(ctx, spec.Source)
	if err != nil {
		return nil, fmt.Errorf("read primary %s: %w", spec.Source, err)
	}

	kept, err := dedupRows(primary, spec)
	if err != nil {
		return nil, err
	}
	logger.Debug("dimension primary loaded",
		"dimension", spec.Name, "source_rows", primary.NumRows(), "distinct_keys", len(kept))

	columns := []table.Column{{Name: spec.SurrogateColumn, Type: table.TypeInt}}
	pickIdx := make([]int, len(spec.Columns))
	for i, p := range spec.Columns {
		ci := primary.ColumnIndex(p.From)
		if ci < 0 {
			return nil, fmt.Errorf("dimension %s: primary has no column %q", spec.Name, p.From)
		}
		pickIdx[i] = ci
		columns = append(columns, table.Column{Name: p.As, Type: primary.Columns[ci].Type})
	}

	out := table.New(spec.Name, columns)
	for _, src := range kept {
		row := make([]any, len(columns))
		for i, ci := range pickIdx {
			row[i+1] = src[ci]
		}
		out.Rows = append(out.Rows, row)
	}

	for _, enr := range spec.Enrichments {
		if err := applyEnrichment(ctx, st, out, enr); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", spec.Name, err)
		}
	}

	if spec.Rollup != nil {
		if err := applyRollup(ctx, st, out, spec.BusinessKey, *spec.Rollup); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", spec.Name, err)
		}
	}

	for _, d := range spec.Derived {
		if err := applyDerivedColumn(out, d.Name, d.Type, d.Fn); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", spec.Name, err)
		}
	}

	for _, name := range spec.Drop {
		if err := dropColumn(out, name); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", spec.Name, err)
		}
	}

	if err := assignSurrogates(out, spec); err != nil {
		return nil, err
	}

	logger.Debug("dimension built", "dimension", spec.Name, "rows", out.NumRows())
	return out, nil
}

// dedupRows selects exactly one source row per canonical business key.
// Without a dedup policy, a duplicated key is a data error.
func dedupRows(primary *table.Table, spec DimensionSpec) ([][]any, error) {
	keyIdx := columnForPick(primary, spec.Columns, spec.BusinessKey)
	if keyIdx < 0 {
		return nil, fmt.Errorf("dimension %s: business key %q not projected from %s",
			spec.Name, spec.BusinessKey, spec.Source)
	}

	type candidate struct {
		row   []any
		order int
	}
	best := make(map[string]candidate)
	var keys []string

	var endIdx, orderIdx = -1, -1
	if spec.Dedup != nil {
		endIdx = primary.ColumnIndex(spec.Dedup.EndDateColumn)
		orderIdx = primary.ColumnIndex(spec.Dedup.OrderColumn)
		if endIdx < 0 && orderIdx < 0 {
			return nil, fmt.Errorf("dimension %s: dedup policy references unknown columns", spec.Name)
		}
	}

	for i, row := range primary.Rows {
		key := table.Canonical(row[keyIdx])
		if key == "" {
			continue
		}
		cur, exists := best[key]
		if !exists {
			best[key] = candidate{row: row, order: i}
			keys = append(keys, key)
			continue
		}
		if spec.Dedup == nil {
			return nil, fmt.Errorf("dimension %s: duplicate business key %q without dedup policy",
				spec.Name, key)
		}
		if supersedes(row, cur.row, endIdx, orderIdx) {
			best[key] = candidate{row: row, order: i}
		}
	}

	kept := make([][]any, 0, len(keys))
	for _, k := range keys {
		kept = append(kept, best[k].row)
	}
	return kept, nil
}

// supersedes reports whether row a is "more recently effective" than b:
// a NULL end date marks the active row, then the later order date wins.
func supersedes(a, b []any, endIdx, orderIdx int) bool {
	if endIdx >= 0 {
		aActive := a[endIdx] == nil
		bActive := b[endIdx] == nil
		if aActive != bActive {
			return aActive
		}
	}
	if orderIdx >= 0 {
		ad, aok := table.AsDate(a[orderIdx])
		bd, bok := table.AsDate(b[orderIdx])
		if aok && bok {
			return ad.After(bd)
		}
		return aok && !bok
	}
	return false
}

// columnForPick resolves the source column index behind a projected name.
func columnForPick(t *table.Table, picks []ColumnPick, as string) int {
	for _, p := range picks {
		if p.As == as {
			return t.ColumnIndex(p.From)
		}
	}
	return -1
}

// applyEnrichment left-joins one secondary table onto the dimension rows.
// Misses resolve to each column's fallback value, not NULL-by-accident.
func applyEnrichment(ctx context.Context, st store.Store, out *table.Table, enr Enrichment) error {
	src, err := st.Read(ctx, enr.Source)
	if err != nil {
		return fmt.Errorf("read enrichment %s: %w", enr.Source, err)
	}

	localIdx := out.ColumnIndex(enr.LocalKey)
	if localIdx < 0 {
		return fmt.Errorf("enrichment %s: no local column %q", enr.Source, enr.LocalKey)
	}
	srcKeyIdx := src.ColumnIndex(enr.SourceKey)
	if srcKeyIdx < 0 {
		return fmt.Errorf("enrichment %s: no source column %q", enr.Source, enr.SourceKey)
	}

	srcIdx := make([]int, len(enr.Columns))
	for i, c := range enr.Columns {
		ci := src.ColumnIndex(c.From)
		if ci < 0 {
			return fmt.Errorf("enrichment %s: no source column %q", enr.Source, c.From)
		}
		srcIdx[i] = ci
		out.Columns = append(out.Columns, table.Column{Name: c.As, Type: src.Columns[ci].Type})
	}

	// Hash the enrichment rows by canonical key; first row per key wins.
	lookup := make(map[string][]any, src.NumRows())
	for _, row := range src.Rows {
		key := table.Canonical(row[srcKeyIdx])
		if key == "" {
			continue
		}
		if _, ok := lookup[key]; !ok {
			lookup[key] = row
		}
	}

	for ri := range out.Rows {
		key := table.Canonical(out.Rows[ri][localIdx])
		match := lookup[key]
		for i, c := range enr.Columns {
			var v any
			if match != nil {
				v = match[srcIdx[i]]
			}
			if v == nil && c.Fallback != nil {
				v = c.Fallback
			}
			out.Rows[ri] = append(out.Rows[ri], v)
		}
	}
	return nil
}

// applyRollup groups the grain source by canonical key and left-joins the
// aggregates onto the dimension. A key with no grain rows still exists as a
// dimension row, so missing aggregates default to zero.
func applyRollup(ctx context.Context, st store.Store, out *table.Table, businessKey string, spec RollupSpec) error {
	src, err := st.Read(ctx, spec.Source)
	if err != nil {
		return fmt.Errorf("read rollup source %s: %w", spec.Source, err)
	}

	keyIdx := out.ColumnIndex(businessKey)
	if keyIdx < 0 {
		return fmt.Errorf("rollup: no dimension column %q", businessKey)
	}
	srcKeyIdx := src.ColumnIndex(spec.SourceKey)
	if srcKeyIdx < 0 {
		return fmt.Errorf("rollup: no source column %q", spec.SourceKey)
	}
	distinctIdx := src.ColumnIndex(spec.CountDistinct.From)
	if distinctIdx < 0 {
		return fmt.Errorf("rollup: no source column %q", spec.CountDistinct.From)
	}
	sumIdx := make([]int, len(spec.Sums))
	for i, agg := range spec.Sums {
		ci := src.ColumnIndex(agg.From)
		if ci < 0 {
			return fmt.Errorf("rollup: no source column %q", agg.From)
		}
		sumIdx[i] = ci
	}

	type bucket struct {
		distinct map[string]struct{}
		sums     []float64
	}
	buckets := make(map[string]*bucket)
	for _, row := range src.Rows {
		key := table.Canonical(row[srcKeyIdx])
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{distinct: make(map[string]struct{}), sums: make([]float64, len(sumIdx))}
			buckets[key] = b
		}
		b.distinct[table.Canonical(row[distinctIdx])] = struct{}{}
		for i, ci := range sumIdx {
			if f, ok := table.AsFloat(row[ci]); ok {
				b.sums[i] += f
			}
		}
	}

	out.Columns = append(out.Columns, table.Column{Name: spec.CountDistinct.As, Type: table.TypeInt})
	sumTypes := make([]table.Type, len(spec.Sums))
	for i, agg := range spec.Sums {
		sumTypes[i] = src.Columns[sumIdx[i]].Type
		if sumTypes[i] != table.TypeFloat {
			sumTypes[i] = table.TypeInt
		}
		out.Columns = append(out.Columns, table.Column{Name: agg.As, Type: sumTypes[i]})
	}

	for ri := range out.Rows {
		key := table.Canonical(out.Rows[ri][keyIdx])
		b := buckets[key]
		if b == nil {
			out.Rows[ri] = append(out.Rows[ri], int64(0))
			for _, typ := range sumTypes {
				if typ == table.TypeFloat {
					out.Rows[ri] = append(out.Rows[ri], float64(0))
				} else {
					out.Rows[ri] = append(out.Rows[ri], int64(0))
				}
			}
			continue
		}
		out.Rows[ri] = append(out.Rows[ri], int64(len(b.distinct)))
		for i, typ := range sumTypes {
			if typ == table.TypeFloat {
				out.Rows[ri] = append(out.Rows[ri], b.sums[i])
			} else {
				out.Rows[ri] = append(out.Rows[ri], int64(b.sums[i]))
			}
		}
	}
	return nil
}

func applyDerivedColumn(out *table.Table, name string, typ table.Type, fn func(get func(string) any) any) error {
	if fn == nil {
		return fmt.Errorf("derived column %q: nil function", name)
	}
	ci := out.ColumnIndex(name)
	if ci < 0 {
		out.Columns = append(out.Columns, table.Column{Name: name, Type: typ})
		ci = len(out.Columns) - 1
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], nil)
		}
	} else {
		out.Columns[ci].Type = typ
	}
	for ri := range out.Rows {
		row := out.Rows[ri]
		get := func(col string) any {
			idx := out.ColumnIndex(col)
			if idx < 0 {
				return nil
			}
			return row[idx]
		}
		row[ci] = fn(get)
	}
	return nil
}

func dropColumn(out *table.Table, name string) error {
	ci := out.ColumnIndex(name)
	if ci < 0 {
		return fmt.Errorf("drop: no column %q", name)
	}
	out.Columns = append(out.Columns[:ci], out.Columns[ci+1:]...)
	for i := range out.Rows {
		out.Rows[i] = append(out.Rows[i][:ci], out.Rows[i][ci+1:]...)
	}
	return nil
}

// assignSurrogates orders rows by canonical business key, assigns dense
// surrogate keys from 1, and prepends the unknown member when declared.
func assignSurrogates(out *table.Table, spec DimensionSpec) error {
	keyIdx := out.ColumnIndex(spec.BusinessKey)
	if keyIdx < 0 {
		return fmt.Errorf("dimension %s: no business key column %q", spec.Name, spec.BusinessKey)
	}

	sort.SliceStable(out.Rows, func(a, b int) bool {
		return table.Canonical(out.Rows[a][keyIdx]) < table.Canonical(out.Rows[b][keyIdx])
	})
	for i, row := range out.Rows {
		row[0] = int64(i + 1)
	}

	if spec.UnknownMember != nil {
		unknown := make([]any, len(out.Columns))
		unknown[0] = UnknownSurrogate
		for i := 1; i < len(out.Columns); i++ {
			if v, ok := spec.UnknownMember[out.Columns[i].Name]; ok {
				unknown[i] = v
				continue
			}
			switch out.Columns[i].Type {
			case table.TypeString:
				unknown[i] = clean.FallbackLabel
			case table.TypeInt:
				unknown[i] = int64(0)
			case table.TypeFloat:
				unknown[i] = float64(0)
			default:
				unknown[i] = nil
			}
		}
		out.Rows = append([][]any{unknown}, out.Rows...)
	}
	return nil
}
