package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a CSV file into a table. The first record is the header.
// Column types are inferred from content: a column whose non-empty values
// all parse as integers becomes bigint, all-numeric becomes double,
// everything else stays string. An empty field is NULL in a numeric column
// and kept verbatim in a string column. Dates are not inferred here; the
// raw layer stays as close to the source representation as possible.
func LoadCSV(name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(name, f)
}

// ReadCSV reads CSV data from r into a table. See LoadCSV.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		records = append(records, rec)
	}

	types := inferTypes(header, records)

	t := New(name, nil)
	for i, h := range header {
		t.Columns = append(t.Columns, Column{Name: strings.TrimSpace(h), Type: types[i]})
	}

	for _, rec := range records {
		row := make([]any, len(header))
		for i := range header {
			row[i] = parseCell(rec[i], types[i])
		}
		if err := t.AppendRow(row); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// inferTypes picks the narrowest type each column's values all fit.
func inferTypes(header []string, records [][]string) []Type {
	types := make([]Type, len(header))
	for col := range header {
		allInt := true
		allFloat := true
		seen := false
		for _, rec := range records {
			s := strings.TrimSpace(rec[col])
			if s == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
			if !allInt && !allFloat {
				break
			}
		}
		switch {
		case seen && allInt:
			types[col] = TypeInt
		case seen && allFloat:
			types[col] = TypeFloat
		default:
			types[col] = TypeString
		}
	}
	return types
}

func parseCell(s string, typ Type) any {
	trimmed := strings.TrimSpace(s)
	switch typ {
	case TypeInt:
		if trimmed == "" {
			return nil
		}
		n, _ := strconv.ParseInt(trimmed, 10, 64)
		return n
	case TypeFloat:
		if trimmed == "" {
			return nil
		}
		f, _ := strconv.ParseFloat(trimmed, 64)
		return f
	default:
		return s
	}
}
