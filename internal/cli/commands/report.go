package commands

import (
	"fmt"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/strata-labs/strata/internal/state"
)

// NewReportCommand creates the report command.
func NewReportCommand(env Env) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the outcome of a pipeline run",
		Long:  `Display the recorded task outcomes of the latest run, or of a specific run by ID.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.Config(cmd.Context())
			logger := env.Logger(cmd.Context())

			runs, err := openStateStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = runs.Close() }()

			var run *state.Run
			if runID != "" {
				run, err = runs.GetRun(runID)
			} else {
				run, err = runs.GetLatestRun()
			}
			if err != nil {
				return err
			}

			taskRuns, err := runs.GetTaskRunsForRun(run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s): %s\n", run.ID, run.RunDate, run.Status)
			if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}

			tw := prettytable.NewWriter()
			tw.SetOutputMirror(out)
			tw.SetStyle(prettytable.StyleLight)
			tw.AppendHeader(prettytable.Row{"Layer", "Task", "Status", "Output", "Duration"})
			for _, tr := range taskRuns {
				tw.AppendRow(prettytable.Row{
					tr.Layer,
					tr.Task,
					string(tr.Status),
					tr.Output,
					(time.Duration(tr.DurationMS) * time.Millisecond).String(),
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID (default: latest run)")
	return cmd
}
