package warehouse

import (
	"math"
	"strings"
	"time"

	"github.com/strata-labs/strata/internal/clean"
	"github.com/strata-labs/strata/internal/table"
)

const compactDateLayout = "20060102"
const isoDateLayout = "2006-01-02"

// RuleSets returns the cleaning rule set of every conformed table, in
// pipeline order.
func RuleSets() []clean.RuleSet {
	return []clean.RuleSet{
		custInfoRules(),
		prdInfoRules(),
		salesDetailsRules(),
		erpCustRules(),
		erpLocRules(),
		erpCategoryRules(),
	}
}

func custInfoRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.crm_cust_info",
		Dest:   "silver.crm_cust_info",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "cst_id", To: "customer_id"},
				{From: "cst_key", To: "customer_key"},
				{From: "cst_firstname", To: "first_name"},
				{From: "cst_lastname", To: "last_name"},
				{From: "cst_marital_status", To: "marital_status"},
				{From: "cst_gndr", To: "gender"},
				{From: "cst_create_date", To: "create_date"},
			}},
			clean.CastString{Column: "customer_id"},
			clean.CastString{Column: "customer_key"},
			clean.NormalizeCodes{
				Column:   "marital_status",
				Mapping:  map[string]string{"S": "Single", "M": "Married"},
				FoldCase: true,
			},
			clean.NormalizeCodes{
				Column:   "gender",
				Mapping:  map[string]string{"F": "Female", "M": "Male"},
				FoldCase: true,
			},
			clean.ParseDate{Column: "create_date", Layout: isoDateLayout},
		},
	}
}

func prdInfoRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.crm_prd_info",
		Dest:   "silver.crm_prd_info",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			// The composite prd_key embeds the category id in its first five
			// characters ("CO-RF-FR-R92B-58"); the category reference table
			// spells the separator as an underscore.
			clean.Derive{Column: "category_id", Type: table.TypeString, Fn: func(r clean.Row) any {
				key := table.Canonical(r.Get("prd_key"))
				if len(key) < 5 {
					return nil
				}
				return strings.ReplaceAll(key[:5], "-", "_")
			}},
			clean.Derive{Column: "product_key", Type: table.TypeString, Fn: func(r clean.Row) any {
				key := table.Canonical(r.Get("prd_key"))
				if len(key) < 7 {
					return nil
				}
				return key[6:]
			}},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "prd_id", To: "product_id"},
				{From: "category_id", To: "category_id"},
				{From: "product_key", To: "product_key"},
				{From: "prd_nm", To: "product_name"},
				{From: "prd_cost", To: "cost"},
				{From: "prd_line", To: "product_line"},
				{From: "prd_start_dt", To: "start_date"},
				{From: "prd_end_dt", To: "end_date"},
			}},
			clean.FillNull{Column: "cost", Default: int64(0)},
			clean.NormalizeCodes{
				Column: "product_line",
				Mapping: map[string]string{
					"M": "Mountain",
					"R": "Road",
					"S": "Other Sales",
					"T": "Touring",
				},
				FoldCase: true,
			},
			clean.ParseDate{Column: "start_date", Layout: isoDateLayout},
			// The source end dates overlap the next version's start date;
			// they are recomputed from scratch per product key.
			clean.SequenceByKey{
				PartitionBy: "product_key",
				OrderBy:     "start_date",
				EndColumn:   "end_date",
			},
		},
	}
}

func salesDetailsRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.crm_sales_details",
		Dest:   "silver.crm_sales_details",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "sls_ord_num", To: "order_number"},
				{From: "sls_prd_key", To: "product_key"},
				{From: "sls_cust_id", To: "customer_id"},
				{From: "sls_order_dt", To: "order_date"},
				{From: "sls_ship_dt", To: "ship_date"},
				{From: "sls_due_dt", To: "due_date"},
				{From: "sls_sales", To: "sales_amount"},
				{From: "sls_quantity", To: "quantity"},
				{From: "sls_price", To: "price"},
			}},
			clean.CastString{Column: "order_number"},
			clean.CastString{Column: "product_key"},
			clean.CastString{Column: "customer_id"},
			clean.ParseDate{Column: "order_date", Layout: compactDateLayout},
			clean.ParseDate{Column: "ship_date", Layout: compactDateLayout},
			clean.ParseDate{Column: "due_date", Layout: compactDateLayout},
			clean.Derive{Column: "sales_amount", Type: table.TypeFloat, Fn: recomputeSales},
			clean.Derive{Column: "price", Type: table.TypeFloat, Fn: recomputePrice},
		},
	}
}

// recomputeSales trusts the stored amount only when it is positive and
// consistent with quantity * |price|; otherwise the amount is rebuilt from
// the other two columns, or NULL when the price is missing too.
func recomputeSales(r clean.Row) any {
	sales, salesOK := table.AsFloat(r.Get("sales_amount"))
	qty, qtyOK := table.AsFloat(r.Get("quantity"))
	price, priceOK := table.AsFloat(r.Get("price"))

	expected := 0.0
	haveExpected := qtyOK && priceOK
	if haveExpected {
		expected = qty * math.Abs(price)
	}

	if salesOK && sales > 0 && (!haveExpected || sales == expected) {
		return sales
	}
	if haveExpected {
		return expected
	}
	return nil
}

// recomputePrice keeps a positive stored price and rederives a missing or
// non-positive one from the already-repaired amount. Quantity zero has no
// unit price.
func recomputePrice(r clean.Row) any {
	price, priceOK := table.AsFloat(r.Get("price"))
	if priceOK && price > 0 {
		return price
	}
	sales, salesOK := table.AsFloat(r.Get("sales_amount"))
	qty, qtyOK := table.AsFloat(r.Get("quantity"))
	if !salesOK || !qtyOK || qty == 0 {
		return nil
	}
	return sales / qty
}

func erpCustRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.erp_cust_az12",
		Dest:   "silver.erp_cust_az12",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			// Some extracts prefix the shared customer key with "NAS".
			clean.Derive{Column: "customer_key", Type: table.TypeString, Fn: func(r clean.Row) any {
				id := table.Canonical(r.Get("cid"))
				if strings.HasPrefix(strings.ToUpper(id), "NAS") {
					return id[3:]
				}
				return id
			}},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "customer_key", To: "customer_key"},
				{From: "bdate", To: "birthdate"},
				{From: "gen", To: "gender"},
			}},
			clean.ParseDate{Column: "birthdate", Layout: isoDateLayout},
			clean.Derive{Column: "birthdate", Type: table.TypeDate, Fn: nullFutureDate},
			clean.NormalizeCodes{
				Column: "gender",
				Mapping: map[string]string{
					"F":      "Female",
					"FEMALE": "Female",
					"M":      "Male",
					"MALE":   "Male",
				},
				FoldCase: true,
			},
		},
	}
}

// nullFutureDate drops birthdates after today; they are entry errors, not
// information.
func nullFutureDate(r clean.Row) any {
	d, ok := table.AsDate(r.Get("birthdate"))
	if !ok {
		return nil
	}
	if d.After(table.TruncateDate(time.Now().UTC())) {
		return nil
	}
	return d
}

func erpLocRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.erp_loc_a101",
		Dest:   "silver.erp_loc_a101",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			clean.Derive{Column: "customer_key", Type: table.TypeString, Fn: func(r clean.Row) any {
				id := table.Canonical(r.Get("cid"))
				return strings.ReplaceAll(id, "-", "")
			}},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "customer_key", To: "customer_key"},
				{From: "cntry", To: "country"},
			}},
			// Country is an open vocabulary: only known aliases fold, full
			// names pass through, blanks get the fallback label.
			clean.NormalizeCodes{
				Column: "country",
				Mapping: map[string]string{
					"DE":  "Germany",
					"US":  "United States",
					"USA": "United States",
				},
				FoldCase:     true,
				KeepUnmapped: true,
			},
		},
	}
}

func erpCategoryRules() clean.RuleSet {
	return clean.RuleSet{
		Source: "bronze.erp_px_cat_g1v2",
		Dest:   "silver.erp_px_cat_g1v2",
		Rules: []clean.Rule{
			clean.TrimStrings{},
			clean.RenameColumns{Mapping: []clean.Rename{
				{From: "id", To: "category_id"},
				{From: "cat", To: "category"},
				{From: "subcat", To: "subcategory"},
				{From: "maintenance", To: "maintenance"},
			}},
			clean.CastString{Column: "category_id"},
		},
	}
}
