package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
)

func newTrackerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Work the DQ action tracker",
	}
	cmd.AddCommand(
		newTrackerImportCmd(),
		newTrackerListCmd(),
		newTrackerUpdateCmd(),
		newTrackerClearCmd(),
		newTrackerSummaryCmd(),
	)
	return cmd
}

func newTrackerImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Track failed checks that are not tracked yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close()

			store, err := a.tracker(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			failed, err := a.reader.LoadFailed(ctx)
			if err != nil {
				return err
			}
			added, err := store.Import(ctx, failed)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Added %d new issue(s), skipped %d already tracked\n", added, len(failed)-added)
			return err
		},
	}
}

func addFilterFlags(cmd *cobra.Command, f *tracker.Filter) {
	cmd.Flags().StringSliceVar(&f.Statuses, "status", nil, "action statuses to match")
	cmd.Flags().StringSliceVar(&f.Tables, "table", nil, "tables to match")
	cmd.Flags().StringSliceVar(&f.Assignees, "assignee", nil, "assignees to match")
}

func newTrackerListCmd() *cobra.Command {
	var f tracker.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked issues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			store, err := a.tracker(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			issues, err := store.List(ctx, f)
			if err != nil {
				return err
			}
			return a.write(export.FromIssues(issues))
		},
	}
	addFilterFlags(cmd, &f)
	return cmd
}

func newTrackerUpdateCmd() *cobra.Command {
	var (
		f                       tracker.Filter
		status, assignee, notes string
	)
	cmd := &cobra.Command{
		Use:   "update [issue-id]",
		Short: "Update one issue, or every issue matching the filter flags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			store, err := a.tracker(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				var p tracker.Patch
				if cmd.Flags().Changed("action-status") {
					p.Status = &status
				}
				if cmd.Flags().Changed("assign") {
					p.Assignee = &assignee
				}
				if cmd.Flags().Changed("notes") {
					p.Notes = &notes
				}
				issue, err := store.Update(ctx, args[0], p)
				if err != nil {
					return err
				}
				return a.write(export.FromIssues([]tracker.Issue{issue}))
			}

			if cmd.Flags().Changed("notes") {
				return errors.New("--notes needs an issue id")
			}
			n, err := store.BulkUpdate(ctx, f, status, assignee)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Updated %d issue(s)\n", n)
			return err
		},
	}
	addFilterFlags(cmd, &f)
	cmd.Flags().StringVar(&status, "action-status", "", "new action status")
	cmd.Flags().StringVar(&assignee, "assign", "", "new assignee")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes (single issue only)")
	return cmd
}

func newTrackerClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-resolved",
		Short: "Delete resolved issues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			store, err := a.tracker(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ClearResolved(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Removed %d resolved issue(s)\n", n)
			return err
		},
	}
}

func newTrackerSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show tracker metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := newApp(cmd)
			store, err := a.tracker(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.SummaryReport(ctx, time.Now())
			if err != nil {
				return err
			}
			m, err := store.Metrics(ctx)
			if err != nil {
				return err
			}
			header := append(report.Header(), "Resolution Rate")
			row := append(report.Row(), export.Percent(m.ResolutionRate))
			return a.write(export.Single(header, row))
		},
	}
}
