package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Smart rule assistant",
	}
	cmd.AddCommand(newRulesSavedCmd(), newRulesRunCmd(), newRulesExamplesCmd())
	return cmd
}

func newRulesSavedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "Show user rules saved to the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			saved, err := rules.Saved(ctx, a.reader)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "%s saved validations, %s unique rules\n",
				export.FormatMetric(saved.Total), export.FormatMetric(saved.UniqueRules))

			t := export.Table{Header: []string{"Run Timestamp", "Rule", "Status"}}
			for _, r := range saved.Recent {
				t.Rows = append(t.Rows, []string{r.RunTimestamp.Format(time.DateTime), r.Rule, r.Status})
			}
			return a.write(t)
		},
	}
}

func newRulesExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List example plain-English rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(cmd)
			t := export.Table{Header: []string{"Category", "Rule"}}
			for _, g := range rules.Examples() {
				for _, r := range g.Rules {
					t.Rows = append(t.Rows, []string{g.Category, r})
				}
			}
			return a.write(t)
		},
	}
}

func newRulesRunCmd() *cobra.Command {
	var (
		save    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <rule>",
		Short: "Run a plain-English rule as a Databricks job and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			m, err := a.rulesManager(ctx)
			if err != nil {
				return err
			}
			if m == nil {
				return jobs.ErrNoJob
			}
			defer m.Close()

			exec, err := m.Start(ctx, args[0])
			if err != nil {
				return err
			}
			a.log.Info().Str("execution", exec.ID).Int64("run_id", exec.RunID).Msg("waiting for rule run")

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			exec, err = m.Wait(waitCtx, exec.ID)
			if err != nil {
				if stopErr := m.Stop(ctx, exec.ID); stopErr != nil {
					a.log.Warn().Err(stopErr).Msg("cancel run")
				}
				return err
			}
			if exec.State != rules.StateSucceeded {
				return fmt.Errorf("rule run %s: %s", exec.State, exec.Error)
			}

			if err := a.write(executionTable(exec)); err != nil {
				return err
			}
			if !save {
				n, err := m.Discard(ctx, exec.ID)
				if err == nil {
					a.log.Info().Int64("rows", n).Msg("results discarded; pass --save to keep them")
				}
				return err
			}
			n, err := m.Save(ctx, exec.ID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Saved %d row(s) to the dashboard\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the results to the dashboard table")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "how long to wait for the run")
	return cmd
}

func executionTable(e rules.Execution) export.Table {
	header := []string{"Execution", "Rule", "State", "Checked", "Violations", "Tables", "Duration", "Success Rate"}
	row := []string{e.ID, e.DisplayName, e.State, "", "", "", "", ""}
	if m := e.Metrics; m != nil {
		row[3] = export.FormatMetric(m.RecordsChecked)
		row[4] = export.FormatMetric(m.ViolationsFound)
		row[5] = strconv.Itoa(m.TablesAnalyzed)
		row[6] = m.Duration.Round(time.Second).String()
		row[7] = export.Percent(m.SuccessRate)
	}
	return export.Single(header, row)
}
