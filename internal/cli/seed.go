package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/rules"
	"github.com/alexanderjulianmartinez/autodq/internal/sample"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/internal/source/duckdb"
)

const defaultSeedPath = ".autodq/autodq.duckdb"

func newSeedCmd() *cobra.Command {
	var (
		path string
		opts = sample.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a local DuckDB warehouse filled with sample results",
		Long: `Create the validation result tables in a DuckDB file and fill them with
generated data, so the dashboard can run without a Databricks workspace.
Point the duckdb backend at the same file afterwards:

  autodq seed --path demo.duckdb
  autodq serve --backend duckdb   # with duckdb.path: demo.duckdb`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if path == "" {
				path = a.cfg.DuckDB.Path
			}
			if path == "" {
				path = defaultSeedPath
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("create directory: %w", err)
				}
			}

			wh, err := duckdb.Open(ctx, path, a.log)
			if err != nil {
				return err
			}
			defer wh.Close()

			schema := a.cfg.Schema
			for _, table := range []string{source.ResultsTable, source.SavedTable, source.NewResultsTable} {
				if err := wh.CreateResultsTable(ctx, schema, table); err != nil {
					return err
				}
			}
			if _, err := wh.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR",
				wh.Qualify(schema, source.NewResultsTable), wh.Quote(rules.ExecutionColumn))); err != nil {
				return fmt.Errorf("add execution column: %w", err)
			}

			f := sample.New(opts)
			builtin, user := f.ValidationResults(), f.UserRuleResults()
			// user rows are mirrored into the results table, as the rule job does
			if err := wh.InsertResults(ctx, schema, source.ResultsTable, append(builtin, user...)); err != nil {
				return err
			}
			if err := wh.InsertResults(ctx, schema, source.SavedTable, user); err != nil {
				return err
			}

			_, err = fmt.Fprintf(a.out, "Seeded %s: %d validation results, %d saved user rule results in schema %s\n",
				path, len(builtin), len(user), schema)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "DuckDB file (default: duckdb.path or "+defaultSeedPath+")")
	cmd.Flags().IntVar(&opts.Rows, "rows", opts.Rows, "validation results to generate")
	cmd.Flags().IntVar(&opts.UserRows, "user-rows", opts.UserRows, "saved user rule results to generate")
	cmd.Flags().Float64Var(&opts.FailureRate, "failure-rate", opts.FailureRate, "share of failed checks")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "days of history")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}
