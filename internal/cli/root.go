// Package cli provides the autodq command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/logging"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type configKey struct{}

type loggerKey struct{}

var cfgFile string

// NewRootCmd builds the autodq command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autodq",
		Short: "AutoDQ - data quality monitoring for Databricks",
		Long: `AutoDQ reads data quality validation results from a SQL warehouse,
serves dashboards, alerts and an action tracker over HTTP, and runs
plain-English validation rules as Databricks jobs.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, log)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./autodq.yaml)")
	pf.String("backend", "", "warehouse backend (databricks|mysql|duckdb)")
	pf.String("schema", "", "schema holding the validation tables")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.StringP("output", "o", "", "output format (table|json|csv)")

	_ = root.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return export.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.BackendDatabricks, config.BackendMySQL, config.BackendDuckDB}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newAlertsCmd(),
		newCoverageCmd(),
		newAnomaliesCmd(),
		newSchemaCmd(),
		newDashboardCmd(),
		newTrackerCmd(),
		newRulesCmd(),
		newSettingsCmd(),
		newSeedCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{Backend: config.BackendDatabricks, Schema: config.DefaultSchema, Output: export.FormatTable}
}

func getLogger(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "autodq v%s (%s)\n", Version, GitCommit)
		},
	}
}
