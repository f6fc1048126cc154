// Package warehouse declares the concrete pipeline: which files feed the
// raw layer, the cleaning rule set behind every conformed table, and the
// dimensional model of the reporting layer. The engines in ingest, clean
// and modeling are generic; everything specific to the CRM and ERP sources
// lives here.
package warehouse

import (
	"path/filepath"

	"github.com/strata-labs/strata/internal/ingest"
	"github.com/strata-labs/strata/internal/store"
)

// DefaultSources returns the source registry rooted at basePath. Adding or
// removing a source file is a change here, never in the ingestion engine.
func DefaultSources(basePath string) []ingest.Source {
	crm := func(file, tbl string) ingest.Source {
		return ingest.Source{
			System:    "crm",
			Path:      filepath.Join(basePath, "source_crm", file),
			Table:     tbl,
			WriteMode: store.WriteOverwrite,
		}
	}
	erp := func(file, tbl string) ingest.Source {
		return ingest.Source{
			System:    "erp",
			Path:      filepath.Join(basePath, "source_erp", file),
			Table:     tbl,
			WriteMode: store.WriteOverwrite,
		}
	}

	return []ingest.Source{
		crm("cust_info.csv", "crm_cust_info"),
		crm("prd_info.csv", "crm_prd_info"),
		crm("sales_details.csv", "crm_sales_details"),
		// The ERP keeps its internal file codes; the raw table names
		// preserve them so lineage back to the extract stays obvious.
		erp("CUST_AZ12.csv", "erp_cust_az12"),
		erp("LOC_A101.csv", "erp_loc_a101"),
		erp("PX_CAT_G1V2.csv", "erp_px_cat_g1v2"),
	}
}
