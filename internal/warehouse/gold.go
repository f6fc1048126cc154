package warehouse

import (
	"github.com/strata-labs/strata/internal/clean"
	"github.com/strata-labs/strata/internal/modeling"
	"github.com/strata-labs/strata/internal/table"
)

// DimCustomers is one row per customer: CRM master data enriched with ERP
// birthdate, gender and country, plus lifetime order rollups.
func DimCustomers() modeling.DimensionSpec {
	return modeling.DimensionSpec{
		Name:            "gold.dim_customers",
		Source:          "silver.crm_cust_info",
		BusinessKey:     "customer_id",
		SurrogateColumn: "customer_sk",
		Columns: []modeling.ColumnPick{
			{From: "customer_id", As: "customer_id"},
			{From: "customer_key", As: "customer_key"},
			{From: "first_name", As: "first_name"},
			{From: "last_name", As: "last_name"},
			{From: "marital_status", As: "marital_status"},
			{From: "gender", As: "gender"},
			{From: "create_date", As: "create_date"},
		},
		// The CRM re-sends customer rows on every update; the newest
		// create_date wins.
		Dedup: &modeling.DedupPolicy{OrderColumn: "create_date"},
		Enrichments: []modeling.Enrichment{
			{
				Source:    "silver.erp_cust_az12",
				LocalKey:  "customer_key",
				SourceKey: "customer_key",
				Columns: []modeling.EnrichColumn{
					{From: "birthdate", As: "birthdate"},
					{From: "gender", As: "gender_erp", Fallback: clean.FallbackLabel},
				},
			},
			{
				Source:    "silver.erp_loc_a101",
				LocalKey:  "customer_key",
				SourceKey: "customer_key",
				Columns: []modeling.EnrichColumn{
					{From: "country", As: "country", Fallback: clean.FallbackLabel},
				},
			},
		},
		Rollup: &modeling.RollupSpec{
			Source:        "silver.crm_sales_details",
			SourceKey:     "customer_id",
			CountDistinct: modeling.ColumnAgg{From: "order_number", As: "total_orders"},
			Sums: []modeling.ColumnAgg{
				{From: "sales_amount", As: "total_sales"},
				{From: "quantity", As: "total_units"},
			},
		},
		Derived: []modeling.DerivedAttr{
			// The CRM is the system of record for gender; the ERP fills the
			// gaps.
			{Name: "gender", Type: table.TypeString, Fn: func(get func(string) any) any {
				if g, ok := get("gender").(string); ok && g != clean.FallbackLabel {
					return g
				}
				if g, ok := get("gender_erp").(string); ok && g != "" {
					return g
				}
				return clean.FallbackLabel
			}},
		},
		Drop:          []string{"gender_erp"},
		UnknownMember: map[string]any{},
	}
}

// DimProducts is one row per currently-sold product, enriched with the ERP
// category reference. Superseded product versions never reach the
// dimension.
func DimProducts() modeling.DimensionSpec {
	return modeling.DimensionSpec{
		Name:            "gold.dim_products",
		Source:          "silver.crm_prd_info",
		BusinessKey:     "product_key",
		SurrogateColumn: "product_sk",
		Columns: []modeling.ColumnPick{
			{From: "product_id", As: "product_id"},
			{From: "product_key", As: "product_key"},
			{From: "product_name", As: "product_name"},
			{From: "category_id", As: "category_id"},
			{From: "cost", As: "cost"},
			{From: "product_line", As: "product_line"},
			{From: "start_date", As: "start_date"},
		},
		// A NULL end date marks the active version of a product.
		Dedup: &modeling.DedupPolicy{
			EndDateColumn: "end_date",
			OrderColumn:   "start_date",
		},
		Enrichments: []modeling.Enrichment{
			{
				Source:    "silver.erp_px_cat_g1v2",
				LocalKey:  "category_id",
				SourceKey: "category_id",
				Columns: []modeling.EnrichColumn{
					{From: "category", As: "category", Fallback: clean.FallbackLabel},
					{From: "subcategory", As: "subcategory", Fallback: clean.FallbackLabel},
					{From: "maintenance", As: "maintenance", Fallback: clean.FallbackLabel},
				},
			},
		},
		UnknownMember: map[string]any{},
	}
}

// FactSales is one row per order line, with surrogate references into both
// dimensions. Unresolvable references land on the unknown member so the
// fact always reconciles with the conformed source.
func FactSales() modeling.FactSpec {
	return modeling.FactSpec{
		Name:   "gold.fact_sales",
		Source: "silver.crm_sales_details",
		Dimensions: []modeling.DimensionRef{
			{
				Dimension:       "gold.dim_customers",
				GrainKey:        "customer_id",
				DimKey:          "customer_id",
				SurrogateColumn: "customer_sk",
				As:              "customer_sk",
			},
			{
				Dimension:       "gold.dim_products",
				GrainKey:        "product_key",
				DimKey:          "product_key",
				SurrogateColumn: "product_sk",
				As:              "product_sk",
			},
		},
		Columns: []modeling.ColumnPick{
			{From: "order_number", As: "order_number"},
			{From: "order_date", As: "order_date"},
			{From: "ship_date", As: "ship_date"},
			{From: "due_date", As: "due_date"},
			{From: "sales_amount", As: "sales_amount"},
			{From: "quantity", As: "quantity"},
			{From: "price", As: "unit_price"},
		},
		Derived: []modeling.DerivedMeasure{
			{Name: "extended_amount", Type: table.TypeFloat, Fn: func(get func(string) any) any {
				qty, qok := table.AsFloat(get("quantity"))
				price, pok := table.AsFloat(get("unit_price"))
				if !qok || !pok {
					return nil
				}
				return qty * price
			}},
		},
	}
}
