// Package state persists run history: one record per pipeline run and one
// per task execution within it, backed by SQLite.
package state

import "time"

// RunStatus is the status of a pipeline run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TaskStatus is the status of a single task execution.
type TaskStatus string

// Task status values.
const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusSkipped TaskStatus = "skipped"
)

// Run is one pipeline execution.
type Run struct {
	ID          string
	RunDate     string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TaskRun is one task execution within a run.
type TaskRun struct {
	ID          string
	RunID       string
	Task        string
	Layer       string
	Status      TaskStatus
	Output      string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMS  int64
}

// Store is the run-history contract.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(runDate string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	GetLatestRun() (*Run, error)

	RecordTaskRun(tr *TaskRun) error
	UpdateTaskRun(id string, status TaskStatus, output, errMsg string, durationMS int64) error
	GetTaskRunsForRun(runID string) ([]*TaskRun, error)
}
