// Package table provides the in-memory tabular data model shared by every
// pipeline stage. A Table carries a typed column schema and row-major data;
// cell values are `any` with nil representing SQL NULL.
package table

import (
	"fmt"
	"sort"
	"time"
)

// Type is the logical type of a column.
type Type string

// Column types. Date values are time.Time truncated to midnight UTC.
const (
	TypeString Type = "string"
	TypeInt    Type = "bigint"
	TypeFloat  Type = "double"
	TypeBool   Type = "boolean"
	TypeDate   Type = "date"
)

// Column describes a single column in a table schema.
type Column struct {
	Name string
	Type Type
}

// Table is an in-memory, schema-typed table.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// New creates an empty table with the given schema.
func New(name string, columns []Column) *Table {
	return &Table{
		Name:    name,
		Columns: append([]Column(nil), columns...),
	}
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnType returns the type of the named column.
func (t *Table) ColumnType(name string) (Type, error) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return "", fmt.Errorf("table %s: no column %q", t.Name, name)
	}
	return t.Columns[i].Type, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Columns) }

// AppendRow appends a row, enforcing the column arity.
func (t *Table) AppendRow(row []any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d values, schema has %d columns",
			t.Name, len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Value returns the cell at (row, column name). Returns nil for an unknown
// column; callers that care should resolve the index up front.
func (t *Table) Value(row int, column string) any {
	i := t.ColumnIndex(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][i]
}

// Clone returns a deep copy. Cell values are immutable scalars, so only the
// row and column slices need copying.
func (t *Table) Clone() *Table {
	out := &Table{
		Name:    t.Name,
		Columns: append([]Column(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// SortBy sorts rows in place using a stable comparison over the given
// column's canonical string form, ascending.
func (t *Table) SortBy(column string) error {
	i := t.ColumnIndex(column)
	if i < 0 {
		return fmt.Errorf("table %s: no column %q", t.Name, column)
	}
	sort.SliceStable(t.Rows, func(a, b int) bool {
		return Canonical(t.Rows[a][i]) < Canonical(t.Rows[b][i])
	})
	return nil
}

// SameSchema reports whether two tables have identical column lists.
func (t *Table) SameSchema(other *Table) bool {
	if len(t.Columns) != len(other.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two tables have identical schemas and row data.
// Used to verify full-refresh determinism.
func (t *Table) Equal(other *Table) bool {
	if !t.SameSchema(other) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if !valueEqual(t.Rows[i][j], other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

// Date builds a date cell value: midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDate normalizes an arbitrary timestamp to a date cell value.
func TruncateDate(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
