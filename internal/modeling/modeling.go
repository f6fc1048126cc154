// Package modeling builds the reporting layer: dimension tables with
// surrogate keys, enrichment and rollup metrics, and fact tables that
// reference dimensions by surrogate key only. Every join key is cast to the
// canonical string form before matching; the engine never relies on
// implicit numeric coercion.
package modeling

import (
	"fmt"

	"github.com/strata-labs/strata/internal/table"
)

// UnknownSurrogate is the surrogate key of the unknown dimension member.
// Grain rows whose business key fails to resolve map here instead of being
// dropped or left with a NULL foreign key.
const UnknownSurrogate int64 = 0

// TypeCoercionError reports a join against a dimension key column that is
// not the canonical string type. This is a design-rule violation in the
// pipeline definition, not a recoverable data condition; it fails the task.
type TypeCoercionError struct {
	Table  string
	Column string
	Type   table.Type
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("join key %s.%s has type %s, want canonical string",
		e.Table, e.Column, e.Type)
}

// ColumnPick projects one column into the output under a new name.
type ColumnPick struct {
	From string
	As   string
}

// EnrichColumn projects one enrichment column with a fallback value used
// when the lookup misses or the source cell is NULL-and-categorical.
type EnrichColumn struct {
	From string
	As   string
	// Fallback replaces the value on a lookup miss. nil keeps NULL, which
	// is right for dates; categorical columns use the fallback label.
	Fallback any
}

// Enrichment joins a secondary conformed table onto the dimension.
type Enrichment struct {
	// Source is the qualified conformed table supplying the columns.
	Source string
	// LocalKey is the projected dimension column to join on.
	LocalKey string
	// SourceKey is the matching column in the enrichment source.
	SourceKey string
	Columns   []EnrichColumn
}

// ColumnAgg aggregates one source column into an output column.
type ColumnAgg struct {
	From string
	As   string
}

// RollupSpec pre-aggregates a fact-granularity source per business key.
// Keys with no grain rows get zero-valued metrics, never NULL.
type RollupSpec struct {
	Source        string
	SourceKey     string
	CountDistinct ColumnAgg
	Sums          []ColumnAgg
}

// DedupPolicy selects exactly one row per business key when the primary
// source carries superseded versions. The active row is the one with a
// NULL end date; if several qualify, the latest order column wins.
type DedupPolicy struct {
	EndDateColumn string
	OrderColumn   string
}

// DerivedAttr computes a dimension attribute after enrichment, e.g.
// reconciling a value between the primary and an enrichment source.
type DerivedAttr struct {
	Name string
	Type table.Type
	Fn   func(get func(string) any) any
}

// DimensionSpec declares how to build one dimension table.
type DimensionSpec struct {
	// Name is the qualified output table ("gold.dim_customers").
	Name string
	// Source is the qualified primary conformed table.
	Source string
	// BusinessKey is the projected (As) name of the natural key column.
	BusinessKey string
	// SurrogateColumn is the name of the assigned integer key column.
	SurrogateColumn string
	// Columns projects attributes from the primary source.
	Columns []ColumnPick
	Dedup   *DedupPolicy
	// Enrichments join secondary sources, in order.
	Enrichments []Enrichment
	Rollup      *RollupSpec
	// Derived attributes are computed last, over projected and enriched
	// columns.
	Derived []DerivedAttr
	// Drop removes intermediate columns that only fed derived attributes.
	Drop []string
	// UnknownMember, when non-nil, prepends a default member carrying the
	// unknown surrogate. Listed columns override the defaults (strings
	// "n/a", numerics 0, dates NULL).
	UnknownMember map[string]any
}

// DimensionRef resolves a fact foreign key against a dimension.
type DimensionRef struct {
	// Dimension is the qualified dimension table ("gold.dim_customers").
	Dimension string
	// GrainKey is the business-key column in the grain source.
	GrainKey string
	// DimKey is the business-key column in the dimension.
	DimKey string
	// SurrogateColumn is the dimension's surrogate key column.
	SurrogateColumn string
	// As names the projected foreign-key column in the fact.
	As string
}

// DerivedMeasure computes a fact measure from other fact columns.
type DerivedMeasure struct {
	Name string
	Type table.Type
	Fn   func(get func(string) any) any
}

// FactSpec declares how to build one fact table.
type FactSpec struct {
	// Name is the qualified output table ("gold.fact_sales").
	Name string
	// Source is the qualified grain-level conformed table.
	Source     string
	Dimensions []DimensionRef
	// Columns carries degenerate keys and measures unchanged.
	Columns []ColumnPick
	Derived []DerivedMeasure
}
