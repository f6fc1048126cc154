package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strata-labs/strata/internal/dag"
	"github.com/strata-labs/strata/internal/state"
	"github.com/strata-labs/strata/internal/store"
)

// Orchestrator executes a task list layer by layer, recording every
// outcome in the run-history store.
type Orchestrator struct {
	store  store.Store
	runs   state.Store
	logger *slog.Logger
}

// New creates an orchestrator. The run-history store may be nil, in which
// case outcomes are only reported, not persisted.
func New(st store.Store, runs state.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{store: st, runs: runs, logger: logger}
}

// Execute runs the tasks and returns the run report. The returned error is
// the first task failure (or a planning error); the report is always
// populated with every task's outcome in execution order.
func (o *Orchestrator) Execute(ctx context.Context, tasks []Task, runDate string) (*Report, error) {
	o.logger.Info("starting run", "run_date", runDate, "tasks", len(tasks))

	byName := make(map[string]*Task, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", t.Name)
		}
		byName[t.Name] = t
	}
	if err := validateDependencies(tasks, byName); err != nil {
		return nil, err
	}

	report := &Report{RunDate: runDate, Status: state.RunStatusRunning}
	taskRunIDs := make(map[string]string, len(tasks))

	if o.runs != nil {
		run, err := o.runs.CreateRun(runDate)
		if err != nil {
			return nil, fmt.Errorf("create run record: %w", err)
		}
		report.RunID = run.ID
		for i := range tasks {
			tr := &state.TaskRun{
				RunID:  run.ID,
				Task:   tasks[i].Name,
				Layer:  string(tasks[i].Layer),
				Status: state.TaskStatusPending,
			}
			if err := o.runs.RecordTaskRun(tr); err != nil {
				return nil, fmt.Errorf("record task run: %w", err)
			}
			taskRunIDs[tasks[i].Name] = tr.ID
		}
	}

	rc := &RunContext{RunDate: runDate, Store: o.store, Logger: o.logger}

	var firstErr error
	aborted := false

	for _, layer := range Layers() {
		var layerTasks []*Task
		for i := range tasks {
			if tasks[i].Layer == layer {
				layerTasks = append(layerTasks, &tasks[i])
			}
		}
		if len(layerTasks) == 0 {
			continue
		}

		if aborted {
			o.skipTasks(report, taskRunIDs, layerTasks, "upstream layer failed")
			continue
		}

		levels, err := layerLevels(layerTasks)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer, err)
		}

		o.logger.Debug("executing layer", "layer", string(layer), "tasks", len(layerTasks), "levels", len(levels))

		for li, level := range levels {
			if aborted {
				var remaining []*Task
				for _, name := range level {
					remaining = append(remaining, byName[name])
				}
				o.skipTasks(report, taskRunIDs, remaining, "upstream task failed")
				continue
			}

			waitErr := o.runLevel(ctx, level, byName, rc, report, taskRunIDs)
			if waitErr != nil {
				aborted = true
				firstErr = waitErr
				o.logger.Error("task failed, aborting run",
					"layer", string(layer), "level", li, "error", waitErr)
			}
		}
	}

	if aborted {
		report.Status = state.RunStatusFailed
	} else {
		report.Status = state.RunStatusCompleted
	}
	if o.runs != nil {
		errMsg := ""
		if firstErr != nil {
			errMsg = firstErr.Error()
		}
		_ = o.runs.CompleteRun(report.RunID, report.Status, errMsg)
	}

	o.logger.Info("run finished", "run_date", runDate, "status", string(report.Status))
	return report, firstErr
}

// runLevel executes one level of mutually independent tasks concurrently
// and appends their results in task-name order.
func (o *Orchestrator) runLevel(ctx context.Context, level []string, byName map[string]*Task,
	rc *RunContext, report *Report, taskRunIDs map[string]string) error {

	type outcome struct {
		output   string
		err      error
		duration time.Duration
	}
	outcomes := make([]outcome, len(level))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range level {
		task := byName[name]
		if o.runs != nil {
			_ = o.runs.UpdateTaskRun(taskRunIDs[name], state.TaskStatusRunning, "", "", 0)
		}
		g.Go(func() error {
			o.logger.Debug("task started", "task", task.Name, "layer", string(task.Layer))
			start := time.Now()
			out, err := task.Run(gctx, rc)
			elapsed := time.Since(start)

			mu.Lock()
			outcomes[i] = outcome{output: out, err: err, duration: elapsed}
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("task %s: %w", task.Name, err)
			}
			o.logger.Debug("task completed", "task", task.Name, "duration_ms", elapsed.Milliseconds())
			return nil
		})
	}

	waitErr := g.Wait()

	for i, name := range level {
		task := byName[name]
		oc := outcomes[i]

		var status state.TaskStatus
		switch {
		case oc.err == nil:
			status = state.TaskStatusSuccess
		case errors.Is(oc.err, context.Canceled) && waitErr != nil &&
			!errors.Is(waitErr, oc.err):
			// Cancelled by a sibling's failure, not failed in its own right.
			status = state.TaskStatusSkipped
		default:
			status = state.TaskStatusFailed
		}

		report.Results = append(report.Results, TaskResult{
			Task:     task.Name,
			Layer:    task.Layer,
			Status:   status,
			Output:   oc.output,
			Err:      oc.err,
			Duration: oc.duration,
		})
		if o.runs != nil {
			errMsg := ""
			if oc.err != nil {
				errMsg = oc.err.Error()
			}
			_ = o.runs.UpdateTaskRun(taskRunIDs[name], status, oc.output, errMsg, oc.duration.Milliseconds())
		}
	}
	return waitErr
}

// skipTasks records never-started tasks as skipped.
func (o *Orchestrator) skipTasks(report *Report, taskRunIDs map[string]string, tasks []*Task, reason string) {
	for _, t := range tasks {
		report.Results = append(report.Results, TaskResult{
			Task:   t.Name,
			Layer:  t.Layer,
			Status: state.TaskStatusSkipped,
			Output: reason,
		})
		if o.runs != nil {
			_ = o.runs.UpdateTaskRun(taskRunIDs[t.Name], state.TaskStatusSkipped, reason, "", 0)
		}
		o.logger.Debug("task skipped", "task", t.Name, "reason", reason)
	}
}

// layerLevels builds the intra-layer dependency graph and returns its
// execution levels.
func layerLevels(layerTasks []*Task) ([][]string, error) {
	g := dag.NewGraph()
	for _, t := range layerTasks {
		g.AddNode(t.Name)
	}
	for _, t := range layerTasks {
		for _, dep := range t.DependsOn {
			if err := g.AddEdge(dep, t.Name); err != nil {
				return nil, err
			}
		}
	}
	return g.ExecutionLevels()
}

// validateDependencies rejects unknown dependencies and edges that cross
// layers; the layer barrier already orders those.
func validateDependencies(tasks []Task, byName map[string]*Task) error {
	for i := range tasks {
		for _, dep := range tasks[i].DependsOn {
			parent, ok := byName[dep]
			if !ok {
				return fmt.Errorf("task %s depends on unknown task %q", tasks[i].Name, dep)
			}
			if parent.Layer != tasks[i].Layer {
				return fmt.Errorf("task %s depends on %s in a different layer; cross-layer order comes from the layer barrier",
					tasks[i].Name, dep)
			}
		}
	}
	return nil
}
