package warehouse

import (
	"context"
	"testing"

	"github.com/strata-labs/strata/internal/clean"
	"github.com/strata-labs/strata/internal/modeling"
	"github.com/strata-labs/strata/internal/pipeline"
	"github.com/strata-labs/strata/internal/state"
	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/table"
	"github.com/strata-labs/strata/internal/testutil"
)

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources("data")
	if len(sources) != 6 {
		t.Fatalf("got %d sources, want 6", len(sources))
	}
	byTable := map[string]string{}
	for _, src := range sources {
		byTable[src.Table] = src.System
	}
	for tbl, system := range map[string]string{
		"crm_cust_info":     "crm",
		"crm_prd_info":      "crm",
		"crm_sales_details": "crm",
		"erp_cust_az12":     "erp",
		"erp_loc_a101":      "erp",
		"erp_px_cat_g1v2":   "erp",
	} {
		if byTable[tbl] != system {
			t.Errorf("table %s system = %q, want %q", tbl, byTable[tbl], system)
		}
	}
}

// salesRow builds a one-row view over the three sales columns.
func salesRow(t *testing.T, sales, qty, price any) clean.Row {
	t.Helper()
	tbl := table.New("sales", []table.Column{
		{Name: "sales_amount", Type: table.TypeFloat},
		{Name: "quantity", Type: table.TypeInt},
		{Name: "price", Type: table.TypeFloat},
	})
	if err := tbl.AppendRow([]any{sales, qty, price}); err != nil {
		t.Fatalf("append: %v", err)
	}
	return clean.RowAt(tbl, 0)
}

func TestRecomputeSales(t *testing.T) {
	tests := []struct {
		name  string
		sales any
		qty   any
		price any
		want  any
	}{
		{"consistent kept", 20.0, int64(2), 10.0, 20.0},
		{"missing rebuilt", nil, int64(3), 5.0, 15.0},
		{"negative price rebuilt with abs", nil, int64(3), -5.0, 15.0},
		{"zero rebuilt", int64(0), int64(2), 10.0, 20.0},
		{"inconsistent rebuilt", 99.0, int64(2), 10.0, 20.0},
		{"no basis left null", nil, int64(2), nil, nil},
		{"positive kept without price", 42.0, int64(2), nil, 42.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recomputeSales(salesRow(t, tt.sales, tt.qty, tt.price)); got != tt.want {
				t.Errorf("recomputeSales = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecomputePrice(t *testing.T) {
	tests := []struct {
		name  string
		sales any
		qty   any
		price any
		want  any
	}{
		{"positive kept", 20.0, int64(2), 10.0, 10.0},
		{"negative rederived", 15.0, int64(3), -5.0, 5.0},
		{"missing rederived", 15.0, int64(3), nil, 5.0},
		{"zero quantity has no unit price", 15.0, int64(0), nil, nil},
		{"nothing to derive from", nil, int64(3), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recomputePrice(salesRow(t, tt.sales, tt.qty, tt.price)); got != tt.want {
				t.Errorf("recomputePrice = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullFutureDate(t *testing.T) {
	birthRow := func(v any) clean.Row {
		tbl := table.New("b", []table.Column{{Name: "birthdate", Type: table.TypeDate}})
		if err := tbl.AppendRow([]any{v}); err != nil {
			t.Fatalf("append: %v", err)
		}
		return clean.RowAt(tbl, 0)
	}

	past := table.Date(1971, 10, 6)
	if got := nullFutureDate(birthRow(past)); got != past {
		t.Errorf("past birthdate = %v, want kept", got)
	}
	if got := nullFutureDate(birthRow(table.Date(2100, 1, 1))); got != nil {
		t.Errorf("future birthdate = %v, want nil", got)
	}
	if got := nullFutureDate(birthRow(nil)); got != nil {
		t.Errorf("nil birthdate = %v, want nil", got)
	}
}

// runPipeline executes the full task list over the testdata extracts against
// an in-memory store and returns the store for inspection.
func runPipeline(t *testing.T) *store.MemStore {
	t.Helper()

	st := store.NewMemStore(nil)
	orch := pipeline.New(st, nil, testutil.NewTestLogger(t))
	report, err := orch.Execute(context.Background(), Tasks(DefaultSources("testdata")), "2026-08-25")
	if err != nil {
		if failed := report.FailedTask(); failed != nil {
			t.Fatalf("task %s failed: %v", failed.Task, failed.Err)
		}
		t.Fatalf("pipeline: %v", err)
	}
	if report.Status != state.RunStatusCompleted {
		t.Fatalf("run status = %s", report.Status)
	}
	return st
}

func readTable(t *testing.T, st *store.MemStore, name string) *table.Table {
	t.Helper()
	tbl, err := st.Read(context.Background(), name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return tbl
}

// rowByKey returns the index of the first row whose column equals want.
func rowByKey(t *testing.T, tbl *table.Table, column string, want any) int {
	t.Helper()
	for i := range tbl.Rows {
		if tbl.Value(i, column) == want {
			return i
		}
	}
	t.Fatalf("%s: no row with %s = %v", tbl.Name, column, want)
	return -1
}

func TestPipeline_SilverConformance(t *testing.T) {
	st := runPipeline(t)

	cust := readTable(t, st, "silver.crm_cust_info")
	// Both versions of customer 11000 survive silver; gold dedups.
	if cust.NumRows() != 4 {
		t.Errorf("cust rows = %d, want 4", cust.NumRows())
	}
	i := rowByKey(t, cust, "first_name", "Jonathan")
	if cust.Value(i, "customer_id") != "11000" {
		t.Errorf("customer_id = %v, want canonical string", cust.Value(i, "customer_id"))
	}
	if cust.Value(i, "marital_status") != "Married" {
		t.Errorf("marital_status = %v", cust.Value(i, "marital_status"))
	}
	i = rowByKey(t, cust, "customer_id", "11001")
	if cust.Value(i, "gender") != clean.FallbackLabel {
		t.Errorf("blank gender = %v, want %s", cust.Value(i, "gender"), clean.FallbackLabel)
	}
	i = rowByKey(t, cust, "customer_id", "11002")
	if cust.Value(i, "first_name") != "Ruben" {
		t.Errorf("first_name = %q, want trimmed", cust.Value(i, "first_name"))
	}

	prd := readTable(t, st, "silver.crm_prd_info")
	i = rowByKey(t, prd, "product_id", int64(210))
	if prd.Value(i, "category_id") != "CO_RF" {
		t.Errorf("category_id = %v", prd.Value(i, "category_id"))
	}
	if prd.Value(i, "product_key") != "FR-R92B-58" {
		t.Errorf("product_key = %v", prd.Value(i, "product_key"))
	}
	// Recomputed end date: day before the next version starts.
	if got := prd.Value(i, "end_date"); got != table.Date(2025, 6, 30) {
		t.Errorf("superseded end_date = %v", got)
	}
	i = rowByKey(t, prd, "product_id", int64(211))
	if prd.Value(i, "end_date") != nil {
		t.Errorf("active end_date = %v, want nil", prd.Value(i, "end_date"))
	}
	i = rowByKey(t, prd, "product_id", int64(212))
	if prd.Value(i, "cost") != int64(0) {
		t.Errorf("missing cost = %v, want 0", prd.Value(i, "cost"))
	}
	if prd.Value(i, "product_line") != "Other Sales" {
		t.Errorf("product_line = %v", prd.Value(i, "product_line"))
	}

	sales := readTable(t, st, "silver.crm_sales_details")
	if sales.NumRows() != 4 {
		t.Fatalf("sales rows = %d", sales.NumRows())
	}
	// Zero order date is a no-date marker, not an error.
	i = rowByKey(t, sales, "order_number", "SO43698")
	if sales.Value(i, "order_date") != nil {
		t.Errorf("zero order_date = %v, want nil", sales.Value(i, "order_date"))
	}
	if sales.Value(i, "sales_amount") != 15.0 {
		t.Errorf("rebuilt sales_amount = %v, want 15", sales.Value(i, "sales_amount"))
	}
	if sales.Value(i, "price") != 5.0 {
		t.Errorf("rederived price = %v, want 5", sales.Value(i, "price"))
	}

	erpCust := readTable(t, st, "silver.erp_cust_az12")
	i = rowByKey(t, erpCust, "customer_key", "AW00011000")
	if erpCust.Value(i, "birthdate") != table.Date(1971, 10, 6) {
		t.Errorf("birthdate = %v", erpCust.Value(i, "birthdate"))
	}
	i = rowByKey(t, erpCust, "customer_key", "AW00011001")
	if erpCust.Value(i, "birthdate") != nil {
		t.Errorf("future birthdate = %v, want nil", erpCust.Value(i, "birthdate"))
	}

	loc := readTable(t, st, "silver.erp_loc_a101")
	i = rowByKey(t, loc, "customer_key", "AW00011000")
	if loc.Value(i, "country") != "Australia" {
		t.Errorf("unmapped country = %v, want passed through", loc.Value(i, "country"))
	}
	i = rowByKey(t, loc, "customer_key", "AW00011001")
	if loc.Value(i, "country") != "United States" {
		t.Errorf("country = %v", loc.Value(i, "country"))
	}
}

func TestPipeline_DimCustomers(t *testing.T) {
	st := runPipeline(t)
	dim := readTable(t, st, "gold.dim_customers")

	// Unknown member plus three customers, surrogates dense from 1 over the
	// sorted business keys.
	if dim.NumRows() != 4 {
		t.Fatalf("dim rows = %d, want 4", dim.NumRows())
	}
	if dim.Value(0, "customer_sk") != modeling.UnknownSurrogate {
		t.Errorf("first row sk = %v, want unknown member", dim.Value(0, "customer_sk"))
	}

	i := rowByKey(t, dim, "customer_id", "11000")
	if dim.Value(i, "customer_sk") != int64(1) {
		t.Errorf("11000 sk = %v", dim.Value(i, "customer_sk"))
	}
	// Later create_date wins the dedup.
	if dim.Value(i, "first_name") != "Jonathan" {
		t.Errorf("first_name = %v, want corrected version", dim.Value(i, "first_name"))
	}
	if dim.Value(i, "create_date") != table.Date(2025, 10, 8) {
		t.Errorf("create_date = %v", dim.Value(i, "create_date"))
	}
	if dim.Value(i, "birthdate") != table.Date(1971, 10, 6) {
		t.Errorf("birthdate = %v", dim.Value(i, "birthdate"))
	}
	if dim.Value(i, "country") != "Australia" {
		t.Errorf("country = %v", dim.Value(i, "country"))
	}
	if got, _ := table.AsFloat(dim.Value(i, "total_orders")); got != 1 {
		t.Errorf("total_orders = %v", dim.Value(i, "total_orders"))
	}
	if got, _ := table.AsFloat(dim.Value(i, "total_sales")); got != 35 {
		t.Errorf("total_sales = %v", dim.Value(i, "total_sales"))
	}
	if got, _ := table.AsFloat(dim.Value(i, "total_units")); got != 3 {
		t.Errorf("total_units = %v", dim.Value(i, "total_units"))
	}

	// CRM gender is blank for 11001, the ERP fills it.
	i = rowByKey(t, dim, "customer_id", "11001")
	if dim.Value(i, "gender") != "Male" {
		t.Errorf("reconciled gender = %v, want Male", dim.Value(i, "gender"))
	}
	if dim.Value(i, "birthdate") != nil {
		t.Errorf("future birthdate leaked: %v", dim.Value(i, "birthdate"))
	}
	if dim.Value(i, "country") != "United States" {
		t.Errorf("country = %v", dim.Value(i, "country"))
	}

	// 11002 has no location row.
	i = rowByKey(t, dim, "customer_id", "11002")
	if dim.Value(i, "country") != clean.FallbackLabel {
		t.Errorf("missing country = %v, want %s", dim.Value(i, "country"), clean.FallbackLabel)
	}
	// CRM gender wins over the blank ERP value.
	if dim.Value(i, "gender") != "Male" {
		t.Errorf("gender = %v", dim.Value(i, "gender"))
	}

	// The intermediate reconciliation column is dropped.
	if dim.ColumnIndex("gender_erp") >= 0 {
		t.Error("gender_erp survived into the dimension")
	}
}

func TestPipeline_DimProducts(t *testing.T) {
	st := runPipeline(t)
	dim := readTable(t, st, "gold.dim_products")

	// Unknown member plus the two active products; the superseded road
	// frame version is filtered out.
	if dim.NumRows() != 3 {
		t.Fatalf("dim rows = %d, want 3", dim.NumRows())
	}

	i := rowByKey(t, dim, "product_key", "FR-R92B-58")
	if dim.Value(i, "product_sk") != int64(1) {
		t.Errorf("sk = %v", dim.Value(i, "product_sk"))
	}
	if dim.Value(i, "cost") != int64(12) {
		t.Errorf("cost = %v, want the active version's", dim.Value(i, "cost"))
	}
	if dim.Value(i, "category") != "Components" {
		t.Errorf("category = %v", dim.Value(i, "category"))
	}
	if dim.Value(i, "subcategory") != "Road Frames" {
		t.Errorf("subcategory = %v", dim.Value(i, "subcategory"))
	}

	// The helmet's category id has no reference row.
	i = rowByKey(t, dim, "product_key", "HL-U509")
	if dim.Value(i, "product_sk") != int64(2) {
		t.Errorf("sk = %v", dim.Value(i, "product_sk"))
	}
	if dim.Value(i, "category") != clean.FallbackLabel {
		t.Errorf("unmatched category = %v", dim.Value(i, "category"))
	}
}

func TestPipeline_FactSales(t *testing.T) {
	st := runPipeline(t)
	fact := readTable(t, st, "gold.fact_sales")

	if fact.NumRows() != 4 {
		t.Fatalf("fact rows = %d, want 4", fact.NumRows())
	}

	i := rowByKey(t, fact, "order_number", "SO43697")
	if fact.Value(i, "customer_sk") != int64(1) {
		t.Errorf("customer_sk = %v", fact.Value(i, "customer_sk"))
	}
	if fact.Value(i, "product_sk") != int64(1) {
		t.Errorf("product_sk = %v", fact.Value(i, "product_sk"))
	}
	if fact.Value(i, "extended_amount") != 20.0 {
		t.Errorf("extended_amount = %v, want 20", fact.Value(i, "extended_amount"))
	}

	i = rowByKey(t, fact, "order_number", "SO43698")
	if fact.Value(i, "unit_price") != 5.0 {
		t.Errorf("unit_price = %v", fact.Value(i, "unit_price"))
	}
	if fact.Value(i, "extended_amount") != 15.0 {
		t.Errorf("extended_amount = %v, want 15", fact.Value(i, "extended_amount"))
	}

	// Unknown product key lands on the unknown member, the row is kept.
	i = rowByKey(t, fact, "order_number", "SO43699")
	if fact.Value(i, "product_sk") != modeling.UnknownSurrogate {
		t.Errorf("unresolved product_sk = %v, want unknown member", fact.Value(i, "product_sk"))
	}
	if fact.Value(i, "customer_sk") != int64(3) {
		t.Errorf("customer_sk = %v", fact.Value(i, "customer_sk"))
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	st := store.NewMemStore(nil)
	orch := pipeline.New(st, nil, nil)
	tasks := Tasks(DefaultSources("testdata"))

	for i := 0; i < 2; i++ {
		if _, err := orch.Execute(context.Background(), tasks, "2026-08-25"); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	first := map[string]*table.Table{}
	for _, name := range []string{"gold.dim_customers", "gold.dim_products", "gold.fact_sales"} {
		first[name] = readTable(t, st, name)
	}

	if _, err := orch.Execute(context.Background(), tasks, "2026-08-25"); err != nil {
		t.Fatalf("third run: %v", err)
	}
	for name, want := range first {
		got := readTable(t, st, name)
		if !got.Equal(want) {
			t.Errorf("%s changed between identical runs", name)
		}
	}
}
