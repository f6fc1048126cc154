package clean

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/strata-labs/strata/internal/table"
)

// TrimStrings strips leading and trailing whitespace from every
// string-typed column.
type TrimStrings struct{}

// Name implements Rule.
func (TrimStrings) Name() string { return "trim_strings" }

// Apply implements Rule.
func (TrimStrings) Apply(t *table.Table) (*table.Table, error) {
	out := t.Clone()
	for ci, col := range out.Columns {
		if col.Type != table.TypeString {
			continue
		}
		for _, row := range out.Rows {
			if s, ok := row[ci].(string); ok {
				row[ci] = strings.TrimSpace(s)
			}
		}
	}
	return out, nil
}

// NormalizeCodes maps a finite set of raw codes in one column to canonical
// labels. Any input not present in the mapping, including NULL and blank,
// becomes the fallback label. Matching is case-sensitive on the trimmed
// code unless FoldCase is set. KeepUnmapped passes unmapped non-blank
// values through unchanged, for open-ended vocabularies like country names
// where the mapping only folds known aliases.
type NormalizeCodes struct {
	Column       string
	Mapping      map[string]string
	Fallback     string
	FoldCase     bool
	KeepUnmapped bool
}

// Name implements Rule.
func (r NormalizeCodes) Name() string { return "normalize_codes(" + r.Column + ")" }

// Apply implements Rule.
func (r NormalizeCodes) Apply(t *table.Table) (*table.Table, error) {
	ci := t.ColumnIndex(r.Column)
	if ci < 0 {
		return nil, fmt.Errorf("no column %q", r.Column)
	}
	fallback := r.Fallback
	if fallback == "" {
		fallback = FallbackLabel
	}

	out := t.Clone()
	out.Columns[ci].Type = table.TypeString
	for _, row := range out.Rows {
		if table.IsBlank(row[ci]) {
			row[ci] = fallback
			continue
		}
		code := strings.TrimSpace(table.Canonical(row[ci]))
		if r.FoldCase {
			code = strings.ToUpper(code)
		}
		if label, ok := r.Mapping[code]; ok {
			row[ci] = label
		} else if r.KeepUnmapped {
			row[ci] = strings.TrimSpace(table.Canonical(row[ci]))
		} else {
			row[ci] = fallback
		}
	}
	return out, nil
}

// Rename is one column rename pair.
type Rename struct {
	From string
	To   string
}

// RenameColumns projects and renames columns. Only mapped columns survive,
// in mapping declaration order; every raw column absent from the mapping is
// dropped from the conformed output.
type RenameColumns struct {
	Mapping []Rename
}

// Name implements Rule.
func (RenameColumns) Name() string { return "rename_columns" }

// Apply implements Rule.
func (r RenameColumns) Apply(t *table.Table) (*table.Table, error) {
	indices := make([]int, len(r.Mapping))
	columns := make([]table.Column, len(r.Mapping))
	for i, m := range r.Mapping {
		ci := t.ColumnIndex(m.From)
		if ci < 0 {
			return nil, fmt.Errorf("no column %q", m.From)
		}
		indices[i] = ci
		columns[i] = table.Column{Name: m.To, Type: t.Columns[ci].Type}
	}

	out := table.New(t.Name, columns)
	for _, row := range t.Rows {
		projected := make([]any, len(indices))
		for i, ci := range indices {
			projected[i] = row[ci]
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, nil
}

// Derive computes a column from existing ones via a pure row function. If
// the column already exists its values are replaced in place; otherwise it
// is appended with the declared type.
type Derive struct {
	Column string
	Type   table.Type
	Fn     func(Row) any
}

// Name implements Rule.
func (r Derive) Name() string { return "derive(" + r.Column + ")" }

// Apply implements Rule.
func (r Derive) Apply(t *table.Table) (*table.Table, error) {
	if r.Fn == nil {
		return nil, fmt.Errorf("derive function is nil")
	}
	out := t.Clone()
	ci := out.ColumnIndex(r.Column)
	if ci < 0 {
		out.Columns = append(out.Columns, table.Column{Name: r.Column, Type: r.Type})
		ci = len(out.Columns) - 1
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], nil)
		}
	} else {
		out.Columns[ci].Type = r.Type
	}

	for i := range out.Rows {
		out.Rows[i][ci] = r.Fn(Row{t: out, idx: i})
	}
	return out, nil
}

// ParseDate parses a fixed-width date representation into a typed date.
// A value of length zero, a length inconsistent with the layout, or an
// unparseable value yields NULL; the rule never fails on bad data.
type ParseDate struct {
	Column string
	// Layout is a Go reference layout, e.g. "20060102".
	Layout string
}

// Name implements Rule.
func (r ParseDate) Name() string { return "parse_date(" + r.Column + ")" }

// Apply implements Rule.
func (r ParseDate) Apply(t *table.Table) (*table.Table, error) {
	ci := t.ColumnIndex(r.Column)
	if ci < 0 {
		return nil, fmt.Errorf("no column %q", r.Column)
	}

	out := t.Clone()
	out.Columns[ci].Type = table.TypeDate
	for _, row := range out.Rows {
		row[ci] = parseDateValue(row[ci], r.Layout)
	}
	return out, nil
}

func parseDateValue(v any, layout string) any {
	if v == nil {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case int64:
		// Integer zero is the source systems' "no date" marker.
		if x == 0 {
			return nil
		}
		s = strconv.FormatInt(x, 10)
	case time.Time:
		return table.TruncateDate(x)
	default:
		return nil
	}
	if len(s) != len(layout) {
		return nil
	}
	ts, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return nil
	}
	return table.TruncateDate(ts)
}

// SequenceByKey gives per-key validity intervals to slowly-changing rows.
// Rows are partitioned by a business key and ordered by a start date; each
// row's end date becomes the next row's start date minus one day, and the
// last row per key keeps a NULL end date. Row order in the table is
// preserved; only the end column changes.
type SequenceByKey struct {
	PartitionBy string
	OrderBy     string
	EndColumn   string
}

// Name implements Rule.
func (r SequenceByKey) Name() string { return "sequence_by_key(" + r.PartitionBy + ")" }

// Apply implements Rule.
func (r SequenceByKey) Apply(t *table.Table) (*table.Table, error) {
	pi := t.ColumnIndex(r.PartitionBy)
	if pi < 0 {
		return nil, fmt.Errorf("no column %q", r.PartitionBy)
	}
	oi := t.ColumnIndex(r.OrderBy)
	if oi < 0 {
		return nil, fmt.Errorf("no column %q", r.OrderBy)
	}

	out := t.Clone()
	ei := out.ColumnIndex(r.EndColumn)
	if ei < 0 {
		out.Columns = append(out.Columns, table.Column{Name: r.EndColumn, Type: table.TypeDate})
		ei = len(out.Columns) - 1
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], nil)
		}
	} else {
		out.Columns[ei].Type = table.TypeDate
	}

	// Partition row indices by canonical key.
	groups := make(map[string][]int)
	var keys []string
	for i, row := range out.Rows {
		key := table.Canonical(row[pi])
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(keys)

	for _, key := range keys {
		idxs := groups[key]
		// Order by start date ascending; rows without a start date sort
		// first so they are superseded by any dated row.
		sort.SliceStable(idxs, func(a, b int) bool {
			da, aok := table.AsDate(out.Rows[idxs[a]][oi])
			db, bok := table.AsDate(out.Rows[idxs[b]][oi])
			if !aok || !bok {
				return !aok && bok
			}
			return da.Before(db)
		})
		// One-step lookahead: end = next start - 1 day.
		for j := 0; j < len(idxs); j++ {
			if j == len(idxs)-1 {
				out.Rows[idxs[j]][ei] = nil
				continue
			}
			next, ok := table.AsDate(out.Rows[idxs[j+1]][oi])
			if !ok {
				out.Rows[idxs[j]][ei] = nil
				continue
			}
			out.Rows[idxs[j]][ei] = next.AddDate(0, 0, -1)
		}
	}
	return out, nil
}

// FillNull replaces NULL values in one column with a fixed default.
type FillNull struct {
	Column  string
	Default any
}

// Name implements Rule.
func (r FillNull) Name() string { return "fill_null(" + r.Column + ")" }

// Apply implements Rule.
func (r FillNull) Apply(t *table.Table) (*table.Table, error) {
	ci := t.ColumnIndex(r.Column)
	if ci < 0 {
		return nil, fmt.Errorf("no column %q", r.Column)
	}
	out := t.Clone()
	for _, row := range out.Rows {
		if row[ci] == nil {
			row[ci] = r.Default
		}
	}
	return out, nil
}

// CastString converts a column to the canonical string type. Business keys
// go through this rule so the conformed layer never carries a numeric and
// an alphanumeric representation of the same key side by side.
type CastString struct {
	Column string
}

// Name implements Rule.
func (r CastString) Name() string { return "cast_string(" + r.Column + ")" }

// Apply implements Rule.
func (r CastString) Apply(t *table.Table) (*table.Table, error) {
	ci := t.ColumnIndex(r.Column)
	if ci < 0 {
		return nil, fmt.Errorf("no column %q", r.Column)
	}
	out := t.Clone()
	out.Columns[ci].Type = table.TypeString
	for _, row := range out.Rows {
		if row[ci] == nil {
			continue
		}
		row[ci] = table.Canonical(row[ci])
	}
	return out, nil
}
