package commands

import (
	"fmt"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/strata-labs/strata/internal/ingest"
	"github.com/strata-labs/strata/internal/warehouse"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Load the raw layer only",
		Long: `Load every declared source file into the raw layer and report the
outcome per source. Later layers are not touched; use "strata run" for a
full refresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.Config(cmd.Context())
			logger := env.Logger(cmd.Context())

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := ingest.NewEngine(st, logger)
			sources := warehouse.DefaultSources(cfg.DataDir)
			statuses := engine.Ingest(cmd.Context(), sources, time.Now().UTC())

			tw := prettytable.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(prettytable.StyleLight)
			tw.AppendHeader(prettytable.Row{"System", "Table", "Rows", "Status"})

			failed := 0
			for _, s := range statuses {
				status := "ok"
				if s.Failed() {
					status = s.Err.Error()
					failed++
				}
				tw.AppendRow(prettytable.Row{s.Source.System, s.Source.Qualified(), s.Rows, status})
			}
			tw.Render()

			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(statuses))
			}
			return nil
		},
	}
}
