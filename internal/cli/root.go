// Package cli provides the command-line interface for Strata.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-labs/strata/internal/cli/commands"
	"github.com/strata-labs/strata/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

type configKey struct{}
type loggerKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata - Layered Data Refinement Pipeline",
		Long: `Strata refines raw CRM and ERP extracts through three layers:
raw ingestion (bronze), rule-based cleaning (silver) and a dimensional
star schema (gold), executed in dependency order with run tracking.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./strata.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Root folder of the raw source files")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Table store backend (duckdb|postgres|memory)")
	rootCmd.PersistentFlags().String("database", "", "Database path or name (empty for DuckDB in-memory)")
	rootCmd.PersistentFlags().String("state", "", "Path to the run-history database")
	rootCmd.PersistentFlags().String("run-date", "", "Run date label, YYYY-MM-DD (default: today)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand(helpers{}))
	rootCmd.AddCommand(commands.NewIngestCommand(helpers{}))
	rootCmd.AddCommand(commands.NewReportCommand(helpers{}))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// helpers hands the commands package access to the loaded config and
// logger without an import cycle.
type helpers struct{}

func (helpers) Config(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (helpers) Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
