// Package pipeline provides the orchestrator: a three-layer state machine
// (bronze -> silver -> gold) that runs tasks in dependency order with
// fail-fast semantics. A layer starts only after the previous layer fully
// succeeded; the first failure aborts everything downstream, because every
// table is a full-replace artifact and stale data carries no staleness
// signal.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/strata-labs/strata/internal/state"
	"github.com/strata-labs/strata/internal/store"
)

// Layer identifies one of the three pipeline layers.
type Layer string

// Pipeline layers in execution order.
const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// Layers returns the layers in execution order.
func Layers() []Layer {
	return []Layer{LayerBronze, LayerSilver, LayerGold}
}

// RunContext carries the shared run parameters threaded uniformly to every
// task. Tasks that do not use the run date ignore it.
type RunContext struct {
	RunDate string
	Store   store.Store
	Logger  *slog.Logger
}

// Task is one unit of work owning exactly one destination table. The
// returned string is an optional output token included in the run report.
type Task struct {
	Name  string
	Layer Layer
	// DependsOn lists same-layer tasks that must complete first. Cross-
	// layer ordering comes from the layer barrier and needs no edges.
	DependsOn []string
	Run       func(ctx context.Context, rc *RunContext) (string, error)
}

// TaskResult is one task's outcome within a run.
type TaskResult struct {
	Task     string
	Layer    Layer
	Status   state.TaskStatus
	Output   string
	Err      error
	Duration time.Duration
}

// Report aggregates every task outcome of a run in execution order.
type Report struct {
	RunID   string
	RunDate string
	Status  state.RunStatus
	Results []TaskResult
}

// FailedTask returns the first failed result, if any.
func (r *Report) FailedTask() *TaskResult {
	for i := range r.Results {
		if r.Results[i].Status == state.TaskStatusFailed {
			return &r.Results[i]
		}
	}
	return nil
}
