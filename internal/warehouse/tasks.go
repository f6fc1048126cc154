package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-labs/strata/internal/clean"
	"github.com/strata-labs/strata/internal/ingest"
	"github.com/strata-labs/strata/internal/modeling"
	"github.com/strata-labs/strata/internal/pipeline"
	"github.com/strata-labs/strata/internal/store"
)

// Tasks returns the full task list for one pipeline run over the given
// sources. Task names are the qualified tables they own; the fact task is
// the only one with explicit dependencies, everything else is ordered by
// the layer barrier.
func Tasks(sources []ingest.Source) []pipeline.Task {
	var tasks []pipeline.Task

	for _, src := range sources {
		tasks = append(tasks, ingestTask(src))
	}
	for _, rs := range RuleSets() {
		tasks = append(tasks, cleanTask(rs))
	}

	tasks = append(tasks,
		dimensionTask(DimCustomers()),
		dimensionTask(DimProducts()),
		factTask(FactSales(), "gold.dim_customers", "gold.dim_products"),
	)
	return tasks
}

func ingestTask(src ingest.Source) pipeline.Task {
	return pipeline.Task{
		Name:  src.Qualified(),
		Layer: pipeline.LayerBronze,
		Run: func(ctx context.Context, rc *pipeline.RunContext) (string, error) {
			engine := ingest.NewEngine(rc.Store, rc.Logger)
			rows, err := engine.IngestOne(ctx, src, time.Now().UTC())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("rows=%d", rows), nil
		},
	}
}

func cleanTask(rs clean.RuleSet) pipeline.Task {
	return pipeline.Task{
		Name:  rs.Dest,
		Layer: pipeline.LayerSilver,
		Run: func(ctx context.Context, rc *pipeline.RunContext) (string, error) {
			raw, err := rc.Store.Read(ctx, rs.Source)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", rs.Source, err)
			}
			cleaned, err := clean.Apply(raw, rs.Rules)
			if err != nil {
				return "", err
			}
			if err := rc.Store.Write(ctx, rs.Dest, cleaned, store.WriteOverwrite); err != nil {
				return "", err
			}
			return fmt.Sprintf("rows=%d", cleaned.NumRows()), nil
		},
	}
}

func dimensionTask(spec modeling.DimensionSpec) pipeline.Task {
	return pipeline.Task{
		Name:  spec.Name,
		Layer: pipeline.LayerGold,
		Run: func(ctx context.Context, rc *pipeline.RunContext) (string, error) {
			dim, err := modeling.BuildDimension(ctx, rc.Store, spec, rc.Logger)
			if err != nil {
				return "", err
			}
			if err := rc.Store.Write(ctx, spec.Name, dim, store.WriteOverwrite); err != nil {
				return "", err
			}
			return fmt.Sprintf("rows=%d", dim.NumRows()), nil
		},
	}
}

func factTask(spec modeling.FactSpec, dependsOn ...string) pipeline.Task {
	return pipeline.Task{
		Name:      spec.Name,
		Layer:     pipeline.LayerGold,
		DependsOn: dependsOn,
		Run: func(ctx context.Context, rc *pipeline.RunContext) (string, error) {
			fact, err := modeling.BuildFact(ctx, rc.Store, spec, rc.Logger)
			if err != nil {
				return "", err
			}
			if err := rc.Store.Write(ctx, spec.Name, fact, store.WriteOverwrite); err != nil {
				return "", err
			}
			return fmt.Sprintf("rows=%d", fact.NumRows()), nil
		},
	}
}
