package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/testutil"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), testutil.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func failed(table, column, rule, rowID string) types.FailedRecord {
	return types.FailedRecord{Table: table, Column: column, RuleDisplayName: rule, FailedRowID: rowID, FailedValue: "x"}
}

func seed(t *testing.T, s *Store) []Issue {
	t.Helper()
	ctx := context.Background()
	n, err := s.Import(ctx, []types.FailedRecord{
		failed("orders", "id", "No Nulls", "1"),
		failed("orders", "id", "No Nulls", "2"),
		failed("users", "email", "Format Match", "7"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	issues, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	return issues
}

func ptr(s string) *string { return &s }

func TestImport_SkipsKnownKeys(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	issues := seed(t, s)

	assert.Equal(t, StatusOpen, issues[0].Status)
	assert.Empty(t, issues[0].Assignee)
	assert.NotEmpty(t, issues[0].ID)
	assert.False(t, issues[0].CreatedAt.IsZero())

	n, err := s.Import(ctx, []types.FailedRecord{
		failed("orders", "id", "No Nulls", "1"),
		failed("orders", "id", "No Nulls", "3"),
		failed("orders", "id", "No Nulls", "3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestImport_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.db")
	ctx := context.Background()

	s, err := Open(ctx, path, testutil.NewLogger(t))
	require.NoError(t, err)
	_, err = s.Import(ctx, []types.FailedRecord{failed("a", "b", "c", "1")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, testutil.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()
	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestList_Filter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	issues := seed(t, s)

	_, err := s.Update(ctx, issues[2].ID, Patch{Assignee: ptr("dana")})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"table", Filter{Tables: []string{"orders"}}, 2},
		{"status", Filter{Statuses: []string{StatusResolved}}, 0},
		{"assignee", Filter{Assignees: []string{"dana"}}, 1},
		{"combined", Filter{Tables: []string{"orders"}, Assignees: []string{"dana"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	issues := seed(t, s)

	got, err := s.Update(ctx, issues[0].ID, Patch{Status: ptr(StatusInProgress), Notes: ptr("asked upstream")})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, "asked upstream", got.Notes)
	assert.Equal(t, "orders", got.Table, "non-editable fields unchanged")

	_, err = s.Update(ctx, issues[0].ID, Patch{Status: ptr("Done-ish")})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = s.Update(ctx, "missing", Patch{Notes: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s)

	n, err := s.BulkUpdate(ctx, Filter{Tables: []string{"orders"}}, StatusResolved, "sam")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.BulkUpdate(ctx, Filter{}, "", "")
	require.NoError(t, err)
	assert.Zero(t, n)

	// empty status leaves status alone
	_, err = s.BulkUpdate(ctx, Filter{Tables: []string{"users"}}, "", "lee")
	require.NoError(t, err)
	users, err := s.List(ctx, Filter{Tables: []string{"users"}})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, users[0].Status)
	assert.Equal(t, "lee", users[0].Assignee)

	_, err = s.BulkUpdate(ctx, Filter{}, "Nope", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assignees, err := s.Assignees(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lee", "sam"}, assignees)
}

func TestMetricsAndClearResolved(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	issues := seed(t, s)

	_, err := s.Update(ctx, issues[0].ID, Patch{Status: ptr(StatusResolved)})
	require.NoError(t, err)
	_, err = s.Update(ctx, issues[1].ID, Patch{Status: ptr(StatusInProgress)})
	require.NoError(t, err)

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Total: 3, Open: 2, Resolved: 1, ResolutionRate: 33.3}, m)

	fs, err := s.FilteredSummary(ctx, Filter{Tables: []string{"orders"}})
	require.NoError(t, err)
	assert.Equal(t, FilteredSummary{Filtered: 2, Priority: 1, AffectedTables: 1}, fs)

	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	report, err := s.SummaryReport(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SummaryReport{
		TotalIssues: 3, OpenIssues: 1, InProgress: 1, ResolvedIssues: 1,
		UniqueTables: 2, UniqueRules: 2, ReportDate: "2024-05-01 09:30:00",
	}, report)
	assert.Len(t, report.Row(), len(report.Header()))

	removed, err := s.ClearResolved(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	m, err = s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Total)
	assert.Zero(t, m.ResolutionRate)
}

func TestMetrics_Empty(t *testing.T) {
	s := setupTestStore(t)
	m, err := s.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, m)
}

func TestIssueKeyMatchesFailedRecord(t *testing.T) {
	r := failed("orders", "id", "No Nulls", "1")
	i := Issue{Table: r.Table, Column: r.Column, Rule: r.RuleDisplayName, FailedRowID: r.FailedRowID}
	assert.Equal(t, r.DedupKey(), i.Key())
}
