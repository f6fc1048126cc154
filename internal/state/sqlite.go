package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite run-history store.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the SQLite database at path. Use ":memory:" for in-memory.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func generateID() string {
	return uuid.New().String()
}

// CreateRun records a new running pipeline run.
func (s *SQLiteStore) CreateRun(runDate string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		RunDate:   runDate,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", "id", run.ID, "run_date", runDate)

	_, err := s.db.Exec(
		`INSERT INTO runs (id, run_date, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.RunDate, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), now, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRow(
		`SELECT id, run_date, status, started_at, completed_at, error FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// GetLatestRun retrieves the most recently started run.
func (s *SQLiteStore) GetLatestRun() (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRow(
		`SELECT id, run_date, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC LIMIT 1`)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&run.ID, &run.RunDate, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// RecordTaskRun inserts a task run record. A missing ID and start time are
// filled in.
func (s *SQLiteStore) RecordTaskRun(tr *TaskRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if tr.ID == "" {
		tr.ID = generateID()
	}
	if tr.StartedAt.IsZero() {
		tr.StartedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO task_runs (id, run_id, task, layer, status, output, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RunID, tr.Task, tr.Layer, string(tr.Status), tr.Output, tr.Error,
		tr.StartedAt, tr.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record task run: %w", err)
	}
	return nil
}

// UpdateTaskRun updates a task run's terminal fields.
func (s *SQLiteStore) UpdateTaskRun(id string, status TaskStatus, output, errMsg string, durationMS int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE task_runs SET status = ?, output = ?, error = ?, completed_at = ?, duration_ms = ?
		 WHERE id = ?`,
		string(status), output, errMsg, now, durationMS, id,
	)
	if err != nil {
		return fmt.Errorf("update task run: %w", err)
	}
	return nil
}

// GetTaskRunsForRun returns the task runs of a run in insertion order.
func (s *SQLiteStore) GetTaskRunsForRun(runID string) ([]*TaskRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, task, layer, status, output, error, started_at, completed_at, duration_ms
		 FROM task_runs WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*TaskRun
	for rows.Next() {
		tr := &TaskRun{}
		var completedAt sql.NullTime
		var output, errMsg sql.NullString
		err := rows.Scan(&tr.ID, &tr.RunID, &tr.Task, &tr.Layer, &tr.Status,
			&output, &errMsg, &tr.StartedAt, &completedAt, &tr.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		tr.Output = output.String
		tr.Error = errMsg.String
		if completedAt.Valid {
			tr.CompletedAt = &completedAt.Time
		}
		result = append(result, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

var _ Store = (*SQLiteStore)(nil)
