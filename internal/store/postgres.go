package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strata-labs/strata/internal/table"
)

func init() {
	Register("postgres", func(logger *slog.Logger) Store { return NewPostgresStore(logger) })
}

// PostgresStore is a table store backed by PostgreSQL via pgx. Writes use
// the same staging-and-swap transaction as the DuckDB backend; bulk loads
// go through COPY.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates an unconnected Postgres store.
func NewPostgresStore(logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{logger: logger}
}

// Connect opens a connection pool to the configured database.
func (s *PostgresStore) Connect(ctx context.Context, cfg Config) error {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	s.pool = pool
	s.logger.Debug("postgres connected", "host", cfg.Host, "database", cfg.Database)
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func postgresType(t table.Type) string {
	switch t {
	case table.TypeInt:
		return "BIGINT"
	case table.TypeFloat:
		return "DOUBLE PRECISION"
	case table.TypeBool:
		return "BOOLEAN"
	case table.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Write materializes t under the qualified name inside one transaction.
func (s *PostgresStore) Write(ctx context.Context, qualified string, t *table.Table, mode WriteMode) error {
	if s.pool == nil {
		return &WriteError{Table: qualified, Err: fmt.Errorf("store not connected")}
	}
	schema, name, err := SplitQualified(qualified)
	if err != nil {
		return err
	}
	if mode != WriteOverwrite && mode != WriteAppend {
		return &WriteError{Table: qualified, Err: fmt.Errorf("unknown write mode %q", mode)}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &WriteError{Table: qualified, Err: err}
	}
	if err := s.writeInTx(ctx, tx, schema, name, t, mode); err != nil {
		_ = tx.Rollback(ctx)
		return &WriteError{Table: qualified, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &WriteError{Table: qualified, Err: err}
	}

	s.logger.Debug("table written", "table", qualified, "mode", string(mode), "rows", t.NumRows())
	return nil
}

func (s *PostgresStore) writeInTx(ctx context.Context, tx pgx.Tx, schema, name string, t *table.Table, mode WriteMode) error {
	staging := name + "__staging"
	qSchema := quoteIdent(schema)
	qTable := qSchema + "." + quoteIdent(name)
	qStaging := qSchema + "." + quoteIdent(staging)

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+qSchema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+qStaging); err != nil {
		return err
	}

	cols := make([]string, len(t.Columns))
	colNames := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c.Name) + " " + postgresType(c.Type)
		colNames[i] = c.Name
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", qStaging, strings.Join(cols, ", "))
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	if t.NumRows() > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{schema, staging},
			colNames,
			pgx.CopyFromRows(t.Rows),
		)
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
	}

	switch mode {
	case WriteOverwrite:
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+qTable); err != nil {
			return err
		}
		rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qStaging, quoteIdent(name))
		if _, err := tx.Exec(ctx, rename); err != nil {
			return err
		}
	case WriteAppend:
		create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s)", qTable, qStaging)
		if _, err := tx.Exec(ctx, create); err != nil {
			return err
		}
		insert := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", qTable, qStaging)
		if _, err := tx.Exec(ctx, insert); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DROP TABLE "+qStaging); err != nil {
			return err
		}
	}
	return nil
}

// Read loads the named table.
func (s *PostgresStore) Read(ctx context.Context, qualified string) (*table.Table, error) {
	if s.pool == nil {
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
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", qualified, err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan table %s: %w", qualified, err)
		}
		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = normalizePgValue(v, columns[i].Type)
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

func (s *PostgresStore) tableColumns(ctx context.Context, schema, name string) ([]table.Column, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query column metadata: %w", err)
	}
	defer rows.Close()

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

func normalizePgValue(v any, typ table.Type) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
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

var _ Store = (*PostgresStore)(nil)
var _ Connector = (*PostgresStore)(nil)
