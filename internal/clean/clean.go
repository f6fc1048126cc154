// Package clean provides the rule-based cleaning engine that turns one raw
// table into one conformed table. A rule set is an ordered list of
// declarative rules; rules recover from malformed values locally (the cell
// becomes NULL) and never abort the pipeline for bad data.
package clean

import (
	"fmt"

	"github.com/strata-labs/strata/internal/table"
)

// FallbackLabel is the canonical value substituted for unmapped, missing or
// blank categorical input.
const FallbackLabel = "n/a"

// Rule transforms a table. Implementations must not mutate their input.
type Rule interface {
	// Name identifies the rule in error messages.
	Name() string
	// Apply returns the transformed table.
	Apply(t *table.Table) (*table.Table, error)
}

// RuleSet binds an ordered rule list to its source and destination tables.
// Every conformed table has its own rule set.
type RuleSet struct {
	// Source is the qualified raw table ("bronze.crm_cust_info").
	Source string
	// Dest is the qualified conformed table ("silver.crm_cust_info").
	Dest string
	// Rules are applied in declaration order.
	Rules []Rule
}

// Apply runs the rules in order over t.
func Apply(t *table.Table, rules []Rule) (*table.Table, error) {
	out := t
	for _, r := range rules {
		next, err := r.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name(), err)
		}
		out = next
	}
	return out, nil
}

// Row is a read-only view of one table row, passed to derivation functions.
type Row struct {
	t   *table.Table
	idx int
}

// Get returns the cell value for the named column, nil if the column does
// not exist.
func (r Row) Get(column string) any {
	return r.t.Value(r.idx, column)
}

// RowAt returns the row view at idx. Derivation functions can be exercised
// directly with it.
func RowAt(t *table.Table, idx int) Row {
	return Row{t: t, idx: idx}
}
