package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/strata-labs/strata/internal/config"
	"github.com/strata-labs/strata/internal/pipeline"
	"github.com/strata-labs/strata/internal/state"
	"github.com/strata-labs/strata/internal/store"
	"github.com/strata-labs/strata/internal/warehouse"
)

// Env provides the loaded configuration and logger to commands.
type Env interface {
	Config(ctx context.Context) *config.Config
	Logger(ctx context.Context) *slog.Logger
}

// NewRunCommand creates the run command.
func NewRunCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		Long: `Execute every pipeline task in layer order: raw ingestion, cleaning,
then the dimensional model. A layer starts only after the previous one
fully succeeded; the first failure aborts the run.`,
		Example: `  # Full refresh against the configured target
  strata run

  # Label the run and use a throwaway in-memory store
  strata run --run-date 2026-08-25 --target duckdb --database ":memory:"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.Config(cmd.Context())
			logger := env.Logger(cmd.Context())

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := openStateStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = runs.Close() }()

			orch := pipeline.New(st, runs, logger)
			tasks := warehouse.Tasks(warehouse.DefaultSources(cfg.DataDir))

			start := time.Now()
			report, runErr := orch.Execute(cmd.Context(), tasks, cfg.RunDate)
			if report != nil {
				renderReport(cmd.OutOrStdout(), report, time.Since(start))
			}
			return runErr
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	return store.Open(ctx, cfg.Target.ToStoreConfig(), logger)
}

func openStateStore(cfg *config.Config, logger *slog.Logger) (state.Store, error) {
	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	runs := state.NewSQLiteStore(logger)
	if err := runs.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := runs.Migrate(); err != nil {
		_ = runs.Close()
		return nil, err
	}
	return runs, nil
}

func renderReport(out interface{ Write([]byte) (int, error) }, report *pipeline.Report, elapsed time.Duration) {
	tw := prettytable.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(prettytable.StyleLight)
	tw.AppendHeader(prettytable.Row{"Layer", "Task", "Status", "Output", "Duration"})
	for _, res := range report.Results {
		tw.AppendRow(prettytable.Row{
			string(res.Layer),
			res.Task,
			string(res.Status),
			res.Output,
			res.Duration.Round(time.Millisecond),
		})
	}
	tw.Render()

	fmt.Fprintf(out, "Run %s: %s in %s\n", report.RunID, report.Status, elapsed.Round(time.Millisecond))
	if failed := report.FailedTask(); failed != nil && failed.Err != nil {
		fmt.Fprintf(out, "Failed task %s: %v\n", failed.Task, failed.Err)
	}
}
