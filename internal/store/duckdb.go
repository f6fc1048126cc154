package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/strata-labs/strata/internal/table"
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Store { return NewDuckDBStore(logger) })
}

// DuckDBStore is a table store backed by DuckDB. Each layer maps to a
// schema; every write runs in a single transaction that fills a staging
// table and swaps it in, so a failed write rolls back and the prior
// committed table stays intact.
type DuckDBStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDBStore creates an unconnected DuckDB store.
func NewDuckDBStore(logger *slog.Logger) *DuckDBStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBStore{logger: logger}
}

// Connect opens the DuckDB database at cfg.Path (empty for in-memory).
func (s *DuckDBStore) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping duckdb: %w", err)
	}

	s.db = db
	s.logger.Debug("duckdb connected", "path", path)
	return nil
}

// Close closes the database connection.
func (s *DuckDBStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func duckdbType(t table.Type) string {
	switch t {
	case table.TypeInt:
		return "BIGINT"
	case table.TypeFloat:
		return "DOUBLE"
	case table.TypeBool:
		return "BOOLEAN"
	case table.TypeDate:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Write materializes t under the qualified name inside one transaction.
func (s *DuckDBStore) Write(ctx context.Context, qualified string, t *table.Table, mode WriteMode) error {
	if s.db == nil {
		return &WriteError{Table: qualified, Err: fmt.Errorf("store not connected")}
	}
	schema, name, err := SplitQualified(qualified)
	if err != nil {
		return err
	}
	if mode != WriteOverwrite && mode != WriteAppend {
		return &WriteError{Table: qualified, Err: fmt.Errorf("unknown write mode %q", mode)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Table: qualified, Err: err}
	}
	if err := s.writeInTx(ctx, tx, schema, name, t, mode); err != nil {
		_ = tx.Rollback()
		return &WriteError{Table: qualified, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &WriteError{Table: qualified, Err: err}
	}

	s.logger.Debug("table written", "table", qualified, "mode", string(mode), "rows", t.NumRows())
	return nil
}

func (s *DuckDBStore) writeInTx(ctx context.Context, tx *sql.Tx, schema, name string, t *table.Table, mode WriteMode) error {
	qSchema := quoteIdent(schema)
	qTable := qSchema + "." + quoteIdent(name)
	qStaging := qSchema + "." + quoteIdent(name+"__staging")

	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+qSchema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qStaging); err != nil {
		return err
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c.Name) + " " + duckdbType(c.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", qStaging, strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	if err := insertRows(ctx, tx, qStaging, t); err != nil {
		return err
	}

	switch mode {
	case WriteOverwrite:
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qTable); err != nil {
			return err
		}
		rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qStaging, quoteIdent(name))
		if _, err := tx.ExecContext(ctx, rename); err != nil {
			return err
		}
	case WriteAppend:
		create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s LIMIT 0", qTable, qStaging)
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return err
		}
		insert := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", qTable, qStaging)
		if _, err := tx.ExecContext(ctx, insert); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+qStaging); err != nil {
			return err
		}
	}
	return nil
}

// insertBatchSize bounds the number of rows per multi-row INSERT.
const insertBatchSize = 500

func insertRows(ctx context.Context, tx *sql.Tx, qTable string, t *table.Table) error {
	if t.NumRows() == 0 {
		return nil
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", t.NumCols()), ",") + ")"

	for start := 0; start < len(t.Rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		batch := t.Rows[start:end]

		tuples := make([]string, len(batch))
		args := make([]any, 0, len(batch)*t.NumCols())
		for i, row := range batch {
			tuples[i] = placeholders
			args = append(args, row...)
		}

		stmt := fmt.Sprintf("INSERT INTO %s VALUES %s", qTable, strings.Join(tuples, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
	}
	return nil
}

// Read loads the named table, mapping DuckDB column types back onto the
// table model.
func (s *DuckDBStore) Read(ctx context.Context, qualified string) (*table.Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not connected")
	}
	schema, name, err := SplitQualified(qualified)
	if err != nil {
		return nil, err
	}

	columns, err := s.tableColumns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &NotFoundError{Table: qualified}
	}

	t := table.New(name, columns)

	query := fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(schema), quoteIdent(name))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", qualified, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		scan := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan table %s: %w", qualified, err)
		}
		row := make([]any, len(columns))
		for i := range scan {
			row[i] = normalizeValue(scan[i], columns[i].Type)
		}
		if err := t.AppendRow(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table %s: %w", qualified, err)
	}
	return t, nil
}

func (s *DuckDBStore) tableColumns(ctx context.Context, schema, name string) ([]table.Column, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := s.db.QueryContext(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []table.Column
	for rows.Next() {
		var colName, dbType string
		if err := rows.Scan(&colName, &dbType); err != nil {
			return nil, fmt.Errorf("scan column metadata: %w", err)
		}
		columns = append(columns, table.Column{Name: colName, Type: tableType(dbType)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func tableType(dbType string) table.Type {
	upper := strings.ToUpper(dbType)
	switch {
	case strings.Contains(upper, "INT"):
		return table.TypeInt
	case strings.Contains(upper, "DOUBLE"), strings.Contains(upper, "FLOAT"),
		strings.Contains(upper, "DECIMAL"), strings.Contains(upper, "NUMERIC"):
		return table.TypeFloat
	case strings.Contains(upper, "BOOL"):
		return table.TypeBool
	case strings.Contains(upper, "DATE"), strings.Contains(upper, "TIMESTAMP"):
		return table.TypeDate
	default:
		return table.TypeString
	}
}

func normalizeValue(v any, typ table.Type) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		if typ == table.TypeDate {
			return table.TruncateDate(x)
		}
		return x
	default:
		return v
	}
}

var _ Store = (*DuckDBStore)(nil)
var _ Connector = (*DuckDBStore)(nil)
