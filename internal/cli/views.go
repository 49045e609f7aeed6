package cli

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/alert"
	"github.com/alexanderjulianmartinez/autodq/internal/anomaly"
	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/coverage"
	"github.com/alexanderjulianmartinez/autodq/internal/dashboard"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/schema"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test the warehouse connection and inspect the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			if err := a.reader.TestConnection(ctx); err != nil {
				return err
			}
			a.log.Info().Str("backend", a.wh.Name()).Str("schema", a.cfg.Schema).Msg("connection ok")

			res, err := a.reader.Inspect(ctx)
			if err != nil {
				return err
			}
			t := export.Table{Header: []string{"Table", "Columns", "Primary Key", "Rows"}}
			for _, ti := range res.Tables {
				t.Rows = append(t.Rows, []string{
					ti.Name, strconv.Itoa(len(ti.Columns)), fmt.Sprint(ti.PrimaryKey), export.FormatMetric(ti.RowCount),
				})
			}
			return a.write(t)
		},
	}
}

func newAlertsCmd() *cobra.Command {
	var severity string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List failed checks as alerts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			results, err := a.results(ctx)
			if err != nil {
				return err
			}
			feed := alert.BuildFeed(results, catalog)
			if severity != "" {
				feed = slices.DeleteFunc(feed, func(al alert.Alert) bool { return al.Severity != severity })
			}
			return a.write(export.FromAlerts(feed))
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "only show Critical or Warning alerts")
	return cmd
}

func newCoverageCmd() *cobra.Command {
	var blindSpots bool
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Show distinct rule counts per table and column",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			results, err := a.results(ctx)
			if err != nil {
				return err
			}
			m := coverage.Build(results)
			cells := m.Cells()
			if blindSpots {
				cells = m.BlindSpots()
			}
			t := export.Table{Header: []string{"Table", "Column", "Rules", "Level", "Checked"}}
			for _, c := range cells {
				t.Rows = append(t.Rows, []string{
					c.Table, c.Column, strconv.Itoa(c.Rules), export.Label(c.Level), strconv.FormatBool(c.Checked),
				})
			}
			return a.write(t)
		},
	}
	cmd.Flags().BoolVar(&blindSpots, "blind-spots", false, "only list cells without any rule")
	return cmd
}

func newAnomaliesCmd() *cobra.Command {
	var (
		method  string
		columns []string
		table   string
	)
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Detect anomalous rows with z-score or isolation forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			f, err := a.reader.LoadResults(ctx)
			if table != "" {
				f, err = a.reader.LoadTable(ctx, table, 0)
			}
			if err != nil {
				return err
			}
			res, err := anomaly.Detect(f, anomaly.Request{Method: anomaly.Method(method), Columns: columns})
			if err != nil {
				return err
			}
			a.log.Info().Str("method", string(res.Method)).Int("checked", res.Checked).
				Int("anomalies", res.Anomalies.Len()).Msg("anomaly detection finished")
			return a.write(export.FromFrame(res.Anomalies))
		},
	}
	cmd.Flags().StringVar(&method, "method", string(anomaly.MethodZScore), `"Z-Score" or "Isolation Forest"`)
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "numeric columns to use (default: all)")
	cmd.Flags().StringVar(&table, "table", "", "table to analyze (default: validation results)")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	var (
		table string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Infer column types and null rates of a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			f, err := a.reader.LoadTable(ctx, table, limit)
			if err != nil {
				return err
			}
			t := export.Table{Header: []string{"Column", "Type", "Nulls", "Null %", "Unique"}}
			for _, p := range schema.Infer(f) {
				t.Rows = append(t.Rows, []string{
					p.Column, string(p.Type), strconv.Itoa(p.Nulls),
					strconv.FormatFloat(p.NullPercent, 'f', 2, 64), strconv.Itoa(p.Uniques),
				})
			}
			return a.write(t)
		},
	}
	cmd.Flags().StringVar(&table, "table", source.ResultsTable, "table to profile")
	cmd.Flags().IntVar(&limit, "limit", 1000, "rows to sample (0 for all)")
	return cmd
}

func newDashboardCmd() *cobra.Command {
	var (
		tables, statuses, ruleNames []string
		from, to                    string
		detail                      bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize validation results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)

			f := dashboard.Filter{Tables: tables, Statuses: statuses, Rules: ruleNames}
			var err error
			if f.From, err = parseDate(from); err != nil {
				return err
			}
			if f.To, err = parseDate(to); err != nil {
				return err
			}

			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			results, err := a.results(ctx)
			if err != nil {
				return err
			}
			view := dashboard.BuildView(results, f)
			if detail {
				return a.write(export.FromResults(view.Results))
			}

			s := view.Summary
			if err := a.write(export.Single(
				[]string{"Total Checks", "Failed", "Success Rate", "Tables", "Rules"},
				[]string{
					export.FormatMetric(s.TotalChecks), export.FormatMetric(s.FailedChecks),
					export.Percent(s.SuccessRate), export.FormatMetric(s.TablesMonitored), export.FormatMetric(s.ActiveRules),
				},
			)); err != nil {
				return err
			}
			if a.cfg.Output != export.FormatTable {
				return nil
			}
			t := export.Table{Header: []string{"Table", "Failed"}}
			for _, c := range view.FailedByTable {
				t.Rows = append(t.Rows, []string{c.Label, export.FormatMetric(c.Count)})
			}
			return a.write(t)
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "tables to include")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "statuses to include")
	cmd.Flags().StringSliceVar(&ruleNames, "rule", nil, "rules to include")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&detail, "detail", false, "list matching results instead of the summary")
	return cmd
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(cmd)
			c := a.cfg
			t := export.Table{Header: []string{"Setting", "Value"}}
			add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }
			add("Backend", c.Backend)
			add("Schema", c.Schema)
			add("Databricks Host", c.Databricks.Hostname())
			add("Databricks Token", config.MaskToken(c.Databricks.Token))
			add("HTTP Path", c.Databricks.HTTPPath)
			add("Job ID", strconv.FormatInt(c.Databricks.JobID, 10))
			add("Refresh Mode", c.Refresh.Mode)
			add("Refresh Interval", fmt.Sprintf("%d minutes", c.Refresh.IntervalMinutes))
			add("Tracker", c.Tracker.Path)
			add("Port", strconv.Itoa(c.Server.Port))
			return a.write(t)
		},
	}
}
