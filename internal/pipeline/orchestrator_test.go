package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/strata-labs/strata/internal/state"
	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/testutil"
)

type runLog struct {
	mu    sync.Mutex
	order []string
}

func (l *runLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *runLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func (l *runLog) contains(name string) bool {
	for _, n := range l.names() {
		if n == name {
			return true
		}
	}
	return false
}

func okTask(name string, layer Layer, log *runLog, deps ...string) Task {
	return Task{
		Name:      name,
		Layer:     layer,
		DependsOn: deps,
		Run: func(context.Context, *RunContext) (string, error) {
			log.record(name)
			return "ok", nil
		},
	}
}

func failTask(name string, layer Layer, log *runLog, deps ...string) Task {
	return Task{
		Name:      name,
		Layer:     layer,
		DependsOn: deps,
		Run: func(context.Context, *RunContext) (string, error) {
			log.record(name)
			return "", fmt.Errorf("boom")
		},
	}
}

func statusOf(report *Report, task string) state.TaskStatus {
	for _, r := range report.Results {
		if r.Task == task {
			return r.Status
		}
	}
	return ""
}

func TestExecute_AllSucceed(t *testing.T) {
	log := &runLog{}
	tasks := []Task{
		okTask("bronze.a", LayerBronze, log),
		okTask("silver.a", LayerSilver, log),
		okTask("gold.a", LayerGold, log),
	}

	orch := New(store.NewMemStore(nil), nil, nil)
	report, err := orch.Execute(context.Background(), tasks, "2026-08-25")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Status != state.RunStatusCompleted {
		t.Errorf("status = %s", report.Status)
	}
	if len(report.Results) != 3 {
		t.Fatalf("got %d results", len(report.Results))
	}
	for _, r := range report.Results {
		if r.Status != state.TaskStatusSuccess {
			t.Errorf("task %s status = %s", r.Task, r.Status)
		}
	}

	// Layer order is bronze, silver, gold.
	got := log.names()
	if got[0] != "bronze.a" || got[1] != "silver.a" || got[2] != "gold.a" {
		t.Errorf("execution order = %v", got)
	}
}

func TestExecute_FailureSkipsDownstream(t *testing.T) {
	log := &runLog{}
	tasks := []Task{
		okTask("bronze.a", LayerBronze, log),
		okTask("silver.a", LayerSilver, log),
		failTask("silver.b", LayerSilver, log),
		okTask("silver.c", LayerSilver, log, "silver.b"),
		okTask("gold.dim", LayerGold, log),
		okTask("gold.fact", LayerGold, log, "gold.dim"),
	}

	orch := New(store.NewMemStore(nil), nil, nil)
	report, err := orch.Execute(context.Background(), tasks, "2026-08-25")
	if err == nil {
		t.Fatal("expected run error")
	}
	if report.Status != state.RunStatusFailed {
		t.Errorf("status = %s", report.Status)
	}

	if s := statusOf(report, "silver.b"); s != state.TaskStatusFailed {
		t.Errorf("silver.b = %s", s)
	}
	// Dependent of the failed task never starts.
	if s := statusOf(report, "silver.c"); s != state.TaskStatusSkipped {
		t.Errorf("silver.c = %s", s)
	}
	if log.contains("silver.c") {
		t.Error("silver.c ran after its dependency failed")
	}
	// The gold layer never starts once silver failed.
	for _, name := range []string{"gold.dim", "gold.fact"} {
		if s := statusOf(report, name); s != state.TaskStatusSkipped {
			t.Errorf("%s = %s, want skipped", name, s)
		}
		if log.contains(name) {
			t.Errorf("%s ran despite the layer barrier", name)
		}
	}

	// Exactly one failure in the report, nothing succeeds after it.
	failed := report.FailedTask()
	if failed == nil || failed.Task != "silver.b" {
		t.Errorf("FailedTask = %+v", failed)
	}
}

func TestExecute_BronzeFailureSkipsEverything(t *testing.T) {
	log := &runLog{}
	tasks := []Task{
		failTask("bronze.a", LayerBronze, log),
		okTask("silver.a", LayerSilver, log),
		okTask("gold.a", LayerGold, log),
	}

	orch := New(store.NewMemStore(nil), nil, nil)
	report, err := orch.Execute(context.Background(), tasks, "2026-08-25")
	if err == nil {
		t.Fatal("expected run error")
	}
	if s := statusOf(report, "silver.a"); s != state.TaskStatusSkipped {
		t.Errorf("silver.a = %s", s)
	}
	if s := statusOf(report, "gold.a"); s != state.TaskStatusSkipped {
		t.Errorf("gold.a = %s", s)
	}
	if len(log.names()) != 1 {
		t.Errorf("ran %v, want only bronze.a", log.names())
	}
}

func TestExecute_IntraLayerOrdering(t *testing.T) {
	log := &runLog{}
	tasks := []Task{
		okTask("gold.dim_customers", LayerGold, log),
		okTask("gold.dim_products", LayerGold, log),
		okTask("gold.fact_sales", LayerGold, log, "gold.dim_customers", "gold.dim_products"),
	}

	orch := New(store.NewMemStore(nil), nil, nil)
	report, err := orch.Execute(context.Background(), tasks, "2026-08-25")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Status != state.RunStatusCompleted {
		t.Errorf("status = %s", report.Status)
	}

	got := log.names()
	if got[len(got)-1] != "gold.fact_sales" {
		t.Errorf("fact ran before its dimensions: %v", got)
	}
}

func TestExecute_ValidationErrors(t *testing.T) {
	log := &runLog{}
	orch := New(store.NewMemStore(nil), nil, nil)

	_, err := orch.Execute(context.Background(), []Task{
		okTask("dup", LayerBronze, log),
		okTask("dup", LayerBronze, log),
	}, "2026-08-25")
	if err == nil {
		t.Error("expected duplicate-name error")
	}

	_, err = orch.Execute(context.Background(), []Task{
		okTask("silver.a", LayerSilver, log, "bronze.a"),
		okTask("bronze.a", LayerBronze, log),
	}, "2026-08-25")
	if err == nil {
		t.Error("expected cross-layer dependency error")
	}

	_, err = orch.Execute(context.Background(), []Task{
		okTask("silver.a", LayerSilver, log, "silver.ghost"),
	}, "2026-08-25")
	if err == nil {
		t.Error("expected unknown dependency error")
	}
}

func TestExecute_RecordsState(t *testing.T) {
	runs := state.NewSQLiteStore(nil)
	if err := runs.Open(":memory:"); err != nil {
		t.Fatalf("open state store: %v", err)
	}
	defer func() { _ = runs.Close() }()
	if err := runs.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := &runLog{}
	tasks := []Task{
		okTask("bronze.a", LayerBronze, log),
		failTask("silver.a", LayerSilver, log),
		okTask("gold.a", LayerGold, log),
	}

	orch := New(store.NewMemStore(nil), runs, testutil.NewTestLogger(t))
	report, _ := orch.Execute(context.Background(), tasks, "2026-08-25")

	run, err := runs.GetRun(report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != state.RunStatusFailed {
		t.Errorf("persisted run status = %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("run has no completion time")
	}

	taskRuns, err := runs.GetTaskRunsForRun(report.RunID)
	if err != nil {
		t.Fatalf("GetTaskRunsForRun: %v", err)
	}
	byName := map[string]state.TaskStatus{}
	for _, tr := range taskRuns {
		byName[tr.Task] = tr.Status
	}
	if byName["bronze.a"] != state.TaskStatusSuccess ||
		byName["silver.a"] != state.TaskStatusFailed ||
		byName["gold.a"] != state.TaskStatusSkipped {
		t.Errorf("persisted statuses = %v", byName)
	}
}

func TestExecute_TaskSeesRunContext(t *testing.T) {
	st := store.NewMemStore(nil)
	var seenDate string
	tasks := []Task{{
		Name:  "bronze.a",
		Layer: LayerBronze,
		Run: func(_ context.Context, rc *RunContext) (string, error) {
			seenDate = rc.RunDate
			if rc.Store != st {
				return "", errors.New("wrong store")
			}
			return "", nil
		},
	}}

	orch := New(st, nil, nil)
	if _, err := orch.Execute(context.Background(), tasks, "2026-08-25"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seenDate != "2026-08-25" {
		t.Errorf("run date = %q", seenDate)
	}
}
