package table

import (
	"strings"
	"testing"
	"time"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "AW00011000", "AW00011000"},
		{"string_trimmed", "  AW00011000  ", "AW00011000"},
		{"int64", int64(11000), "11000"},
		{"integral_float", float64(11000), "11000"},
		{"fractional_float", 10.5, "10.5"},
		{"date", Date(2011, time.July, 1), "2011-07-01"},
		{"bool", true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonical_NumericStringMatch(t *testing.T) {
	// The same identifier read back as int, float or string must land on
	// one representation.
	want := Canonical("11000")
	for _, v := range []any{int64(11000), float64(11000), " 11000 "} {
		if got := Canonical(v); got != want {
			t.Errorf("Canonical(%v) = %q, want %q", v, got, want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(nil) || !IsBlank("") || !IsBlank("   ") {
		t.Error("nil, empty and whitespace strings should be blank")
	}
	if IsBlank("x") || IsBlank(int64(0)) {
		t.Error("non-empty string and numeric zero should not be blank")
	}
}

func TestReadCSV_TypeInference(t *testing.T) {
	data := `id,name,score,joined
1,alice,9.5,2020-01-01
2,bob,8,2021-06-15
3,,7.25,`

	tbl, err := ReadCSV("people", strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	wantTypes := map[string]Type{
		"id":     TypeInt,
		"name":   TypeString,
		"score":  TypeFloat,
		"joined": TypeString, // dates are not inferred at load time
	}
	for name, want := range wantTypes {
		got, err := tbl.ColumnType(name)
		if err != nil {
			t.Fatalf("ColumnType(%s): %v", name, err)
		}
		if got != want {
			t.Errorf("column %s type = %s, want %s", name, got, want)
		}
	}

	if tbl.NumRows() != 3 {
		t.Fatalf("got %d rows, want 3", tbl.NumRows())
	}
	if got := tbl.Value(0, "id"); got != int64(1) {
		t.Errorf("id[0] = %v (%T), want int64 1", got, got)
	}
	if got := tbl.Value(2, "score"); got != 7.25 {
		t.Errorf("score[2] = %v, want 7.25", got)
	}
	// Empty numeric cell is NULL; empty string cell stays a string.
	if got := tbl.Value(2, "name"); got != "" {
		t.Errorf("name[2] = %v, want empty string", got)
	}
}

func TestReadCSV_EmptyNumericIsNull(t *testing.T) {
	data := "a,b\n1,\n,2\n"
	tbl, err := ReadCSV("nums", strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got := tbl.Value(0, "b"); got != nil {
		t.Errorf("b[0] = %v, want nil", got)
	}
	if got := tbl.Value(1, "a"); got != nil {
		t.Errorf("a[1] = %v, want nil", got)
	}
}

func TestReadCSV_MissingHeader(t *testing.T) {
	if _, err := ReadCSV("empty", strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestAppendRow_ArityCheck(t *testing.T) {
	tbl := New("t", []Column{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeString}})
	if err := tbl.AppendRow([]any{int64(1)}); err == nil {
		t.Error("expected arity error")
	}
	if err := tbl.AppendRow([]any{int64(1), "x"}); err != nil {
		t.Errorf("AppendRow: %v", err)
	}
}

func TestClone_Isolation(t *testing.T) {
	tbl := New("t", []Column{{Name: "a", Type: TypeString}})
	_ = tbl.AppendRow([]any{"original"})

	clone := tbl.Clone()
	clone.Rows[0][0] = "mutated"
	clone.Columns[0].Name = "renamed"

	if tbl.Rows[0][0] != "original" || tbl.Columns[0].Name != "a" {
		t.Error("mutating a clone changed the source table")
	}
}

func TestEqual(t *testing.T) {
	build := func() *Table {
		tbl := New("t", []Column{{Name: "k", Type: TypeString}, {Name: "d", Type: TypeDate}})
		_ = tbl.AppendRow([]any{"a", Date(2020, time.March, 1)})
		_ = tbl.AppendRow([]any{"b", nil})
		return tbl
	}

	a, b := build(), build()
	if !a.Equal(b) {
		t.Error("identical tables should be equal")
	}

	b.Rows[1][1] = Date(2020, time.March, 2)
	if a.Equal(b) {
		t.Error("tables with different cells should not be equal")
	}
}

func TestSortBy(t *testing.T) {
	tbl := New("t", []Column{{Name: "k", Type: TypeString}})
	for _, k := range []string{"b", "c", "a"} {
		_ = tbl.AppendRow([]any{k})
	}
	if err := tbl.SortBy("k"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	got := []string{tbl.Rows[0][0].(string), tbl.Rows[1][0].(string), tbl.Rows[2][0].(string)}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("sorted order = %v", got)
	}
}
