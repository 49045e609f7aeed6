package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/internal/source/duckdb"
	"github.com/alexanderjulianmartinez/autodq/internal/testutil"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

const schema = "dq"

var ts = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// fakeRunner plays the part of the rule job: on RunNow it writes result
// rows tagged with the execution id, then reports the scripted states.
type fakeRunner struct {
	mu        sync.Mutex
	wh        *duckdb.Warehouse
	rows      []types.ValidationResult
	states    []string
	result    string
	output    string
	params    map[string]string
	cancelled []int64
	runErr    error
}

func (f *fakeRunner) RunNow(ctx context.Context, jobID int64, params map[string]string) (int64, error) {
	if f.runErr != nil {
		return 0, f.runErr
	}
	f.mu.Lock()
	f.params = params
	f.mu.Unlock()
	if len(f.rows) > 0 {
		if err := f.wh.InsertResults(ctx, schema, source.NewResultsTable, f.rows); err != nil {
			return 0, err
		}
		q := fmt.Sprintf(`UPDATE %s SET "Execution_ID" = ? WHERE "Execution_ID" IS NULL`, f.wh.Qualify(schema, source.NewResultsTable))
		if _, err := f.wh.Exec(ctx, q, params["execution_id"]); err != nil {
			return 0, err
		}
	}
	return 9, nil
}

func (f *fakeRunner) GetRun(_ context.Context, runID int64) (*jobs.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := "RUNNING"
	if len(f.states) > 0 {
		state, f.states = f.states[0], f.states[1:]
	}
	run := &jobs.Run{RunID: runID, State: jobs.RunState{LifeCycleState: state}}
	if state == jobs.StateTerminated {
		run.State.ResultState = f.result
		run.StartTime, run.EndTime = 1000, 3300
	}
	return run, nil
}

func (f *fakeRunner) CancelRun(_ context.Context, runID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeRunner) GetRunOutput(context.Context, int64) (*jobs.RunOutput, error) {
	out := &jobs.RunOutput{}
	out.NotebookOutput.Result = f.output
	return out, nil
}

func setup(t *testing.T) (*duckdb.Warehouse, *source.Reader) {
	t.Helper()
	ctx := context.Background()
	w, err := duckdb.Open(ctx, ":memory:", testutil.NewLogger(t))
	require.NoError(t, err)
	w.SQL.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.CreateResultsTable(ctx, schema, source.SavedTable))
	require.NoError(t, w.CreateResultsTable(ctx, schema, source.NewResultsTable))
	_, err = w.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN "Execution_ID" VARCHAR`, w.Qualify(schema, source.NewResultsTable)))
	require.NoError(t, err)

	r, err := source.NewReader(w, schema, testutil.NewLogger(t))
	require.NoError(t, err)
	return w, r
}

func newManager(t *testing.T, runner Runner, r *source.Reader, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	m := NewManager(runner, 42, r, testutil.NewLogger(t), opts...)
	t.Cleanup(m.Close)
	return m
}

func wait(t *testing.T, m *Manager, id string) Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return exec
}

func TestManager_MetricsFromOutput(t *testing.T) {
	_, r := setup(t)
	runner := &fakeRunner{
		states: []string{"PENDING", "RUNNING", jobs.StateTerminated},
		result: jobs.ResultSuccess,
		output: `{"records_checked": 1250, "violations_found": 12, "tables_analyzed": 3}`,
	}
	m := newManager(t, runner, r)

	exec, err := m.Start(context.Background(), "  Customer age should be between 18 and 120 years  ")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, exec.State)
	assert.Regexp(t, `^rule_execution_\d+_[0-9a-f]{8}$`, exec.ID)
	assert.Equal(t, "Customer age should be between 18 and 120 years", runner.params["rule"])
	assert.Equal(t, exec.ID, runner.params["execution_id"])

	done := wait(t, m, exec.ID)
	assert.Equal(t, StateSucceeded, done.State)
	require.NotNil(t, done.Metrics)
	assert.Equal(t, 1250, done.Metrics.RecordsChecked)
	assert.Equal(t, 12, done.Metrics.ViolationsFound)
	assert.Equal(t, 3, done.Metrics.TablesAnalyzed)
	assert.InDelta(t, 99.04, done.Metrics.SuccessRate, 0.01)
	assert.Equal(t, 2300*time.Millisecond, done.Metrics.Duration)
}

func TestManager_SaveCopiesRows(t *testing.T) {
	w, r := setup(t)
	ctx := context.Background()
	runner := &fakeRunner{
		wh: w,
		rows: []types.ValidationResult{
			{RunTimestamp: ts, Table: "customers", Column: "age", Rule: "User Rule", RuleDisplayName: "Age range", Status: types.StatusPassed, Metric: source.UserGeneratedMetric},
			{RunTimestamp: ts, Table: "customers", Column: "age", Rule: "User Rule", RuleDisplayName: "Age range", Status: types.StatusFailed, Metric: source.UserGeneratedMetric, FailedValue: "140", FailedRowID: "12"},
			{RunTimestamp: ts, Table: "users", Column: "age", Rule: "User Rule", RuleDisplayName: "Age range", Status: types.StatusPassed, Metric: source.UserGeneratedMetric},
		},
		states: []string{jobs.StateTerminated},
		result: jobs.ResultSuccess,
	}
	m := newManager(t, runner, r)

	exec, err := m.Start(ctx, "Customer age should be between 18 and 120 years")
	require.NoError(t, err)

	done := wait(t, m, exec.ID)
	require.Equal(t, StateSucceeded, done.State)
	require.NotNil(t, done.Metrics)
	assert.Equal(t, 3, done.Metrics.RecordsChecked)
	assert.Equal(t, 1, done.Metrics.ViolationsFound)
	assert.Equal(t, 2, done.Metrics.TablesAnalyzed)

	rows, err := m.Rows(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rows.Len())

	n, err := m.Save(ctx, exec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	saved, err := Saved(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Total)
	assert.Equal(t, 1, saved.UniqueRules)

	rows, err = m.Rows(ctx, exec.ID)
	require.NoError(t, err)
	assert.Zero(t, rows.Len())

	got, err := m.Get(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSaved, got.State)
}

func TestManager_ConcurrentSaveCopiesOnce(t *testing.T) {
	w, r := setup(t)
	ctx := context.Background()
	rows := []types.ValidationResult{
		{RunTimestamp: ts, Table: "orders", Column: "amount", Rule: "User Rule", RuleDisplayName: "Positive amount", Status: types.StatusFailed, Metric: source.UserGeneratedMetric},
		{RunTimestamp: ts, Table: "orders", Column: "amount", Rule: "User Rule", RuleDisplayName: "Positive amount", Status: types.StatusPassed, Metric: source.UserGeneratedMetric},
	}
	const runs = 10
	runner := &fakeRunner{wh: w, rows: rows, result: jobs.ResultSuccess}
	for range runs {
		runner.states = append(runner.states, jobs.StateTerminated)
	}
	m := newManager(t, runner, r)

	for i := range runs {
		exec, err := m.Start(ctx, fmt.Sprintf("order amounts must be positive #%d", i))
		require.NoError(t, err)
		require.Equal(t, StateSucceeded, wait(t, m, exec.ID).State)

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		for j := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = m.Save(ctx, exec.ID)
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, ErrNotReady)
			}
		}
		assert.Equal(t, 1, ok)
	}

	saved, err := Saved(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, runs*len(rows), saved.Total)
}

// failingDeletes lets inserts through and rejects deletes.
type failingDeletes struct {
	source.Warehouse
}

func (f failingDeletes) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if strings.HasPrefix(query, "DELETE") {
		return 0, errors.New("warehouse stopped")
	}
	return f.Warehouse.Exec(ctx, query, args...)
}

func TestManager_SaveSurvivesFailedCleanup(t *testing.T) {
	w, _ := setup(t)
	ctx := context.Background()
	r, err := source.NewReader(failingDeletes{w}, schema, testutil.NewLogger(t))
	require.NoError(t, err)

	runner := &fakeRunner{
		wh:     w,
		rows:   []types.ValidationResult{{RunTimestamp: ts, Table: "t", Column: "c", Rule: "r", Status: types.StatusFailed, Metric: source.UserGeneratedMetric}},
		states: []string{jobs.StateTerminated},
		result: jobs.ResultSuccess,
	}
	m := newManager(t, runner, r)
	exec, err := m.Start(ctx, "c must not be empty")
	require.NoError(t, err)
	wait(t, m, exec.ID)

	n, err := m.Save(ctx, exec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, _ := m.Get(exec.ID)
	assert.Equal(t, StateSaved, got.State)

	_, err = m.Save(ctx, exec.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	saved, err := Saved(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Total)
}

func TestManager_CollectReportsUnreadableRows(t *testing.T) {
	ctx := context.Background()
	w, err := duckdb.Open(ctx, ":memory:", testutil.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.EnsureSchema(ctx, schema))
	_, err = w.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s ("Table" VARCHAR, "Execution_ID" VARCHAR)`, w.Qualify(schema, source.NewResultsTable)))
	require.NoError(t, err)
	r, err := source.NewReader(w, schema, testutil.NewLogger(t))
	require.NoError(t, err)

	m := newManager(t, &fakeRunner{}, r)
	res, err := m.collect(ctx, "rule_execution_1", 9, &jobs.Run{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Run_Timestamp")
	assert.Zero(t, res.RecordsChecked)
}

func TestManager_Discard(t *testing.T) {
	w, r := setup(t)
	ctx := context.Background()
	runner := &fakeRunner{
		wh:     w,
		rows:   []types.ValidationResult{{RunTimestamp: ts, Table: "t", Column: "c", Rule: "r", Status: types.StatusFailed}},
		states: []string{jobs.StateTerminated},
		result: jobs.ResultSuccess,
	}
	m := newManager(t, runner, r)

	exec, err := m.Start(ctx, "c must not be empty")
	require.NoError(t, err)
	wait(t, m, exec.ID)

	n, err := m.Discard(ctx, exec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, _ := m.Get(exec.ID)
	assert.Equal(t, StateDiscarded, got.State)

	_, err = m.Save(ctx, exec.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestManager_Stop(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()
	runner := &fakeRunner{}
	m := newManager(t, runner, r)

	exec, err := m.Start(ctx, "order dates should not be in the future")
	require.NoError(t, err)

	require.NoError(t, m.Stop(ctx, exec.ID))
	assert.Equal(t, []int64{9}, runner.cancelled)

	got, err := m.Get(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, got.State)
	assert.False(t, got.FinishedAt.IsZero())

	assert.ErrorIs(t, m.Stop(ctx, exec.ID), ErrNotRunning)
	assert.ErrorIs(t, m.Stop(ctx, "nope"), ErrNotFound)
}

func TestManager_FailedRun(t *testing.T) {
	_, r := setup(t)
	runner := &fakeRunner{states: []string{jobs.StateInternalError}}
	m := newManager(t, runner, r)

	exec, err := m.Start(context.Background(), "prices must be positive")
	require.NoError(t, err)
	done := wait(t, m, exec.ID)
	assert.Equal(t, StateFailed, done.State)
	assert.Equal(t, jobs.StateInternalError, done.Error)
	assert.Nil(t, done.Metrics)
}

func TestManager_StartErrors(t *testing.T) {
	_, r := setup(t)
	m := newManager(t, &fakeRunner{runErr: errors.New("job quota exceeded")}, r)

	_, err := m.Start(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyRule)

	_, err = m.Start(context.Background(), "ids are unique")
	assert.ErrorContains(t, err, "job quota exceeded")
	assert.Empty(t, m.List())

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeInterpreter struct {
	err error
}

func (f fakeInterpreter) Interpret(context.Context, string) (*Interpretation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Interpretation{Table: "customers", Column: "age", Check: "Range OK", SQLPredicate: "age BETWEEN 18 AND 120"}, nil
}

func TestManager_InterpreterParams(t *testing.T) {
	_, r := setup(t)
	runner := &fakeRunner{}
	m := newManager(t, runner, r, WithInterpreter(fakeInterpreter{}))

	exec, err := m.Start(context.Background(), "Customer age should be between 18 and 120 years")
	require.NoError(t, err)
	require.NotNil(t, exec.Interpretation)
	assert.Equal(t, "customers", runner.params["table"])
	assert.Equal(t, "age BETWEEN 18 AND 120", runner.params["sql_predicate"])

	// a failing interpreter does not block the run
	runner2 := &fakeRunner{}
	m2 := newManager(t, runner2, r, WithInterpreter(fakeInterpreter{err: errors.New("quota")}))
	exec, err = m2.Start(context.Background(), "ids are unique")
	require.NoError(t, err)
	assert.Nil(t, exec.Interpretation)
	assert.NotContains(t, runner2.params, "table")
}

func TestSuccessRate(t *testing.T) {
	assert.Zero(t, SuccessRate(0, 0))
	assert.Equal(t, 100.0, SuccessRate(10, 0))
	assert.Equal(t, 75.0, SuccessRate(4, 1))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "short", DisplayName("short"))
	long := "Check that every single customer record has a valid postal address"
	got := DisplayName(long)
	assert.Equal(t, long[:50]+"...", got)
}

func TestSummarizeSaved(t *testing.T) {
	f := &types.Frame{Columns: []string{"Run_Timestamp", "Rule_Display_Name", "Status"}}
	for i := 0; i < 12; i++ {
		f.Rows = append(f.Rows, []any{ts.Add(-time.Duration(i) * time.Hour), fmt.Sprintf("rule-%d", i%3), "Passed"})
	}
	s := SummarizeSaved(f)
	assert.Equal(t, 12, s.Total)
	assert.Equal(t, 3, s.UniqueRules)
	require.Len(t, s.Recent, RecentLimit)
	assert.Equal(t, ts, s.Recent[0].RunTimestamp)
	assert.Equal(t, "rule-0", s.Recent[0].Rule)

	assert.Equal(t, &SavedSummary{}, SummarizeSaved(&types.Frame{}))
}

func TestParseInterpretation(t *testing.T) {
	got, err := parseInterpretation(`{"table":"orders","column":"amount","check":"Range OK","sql_predicate":"amount > 0","explanation":"positive"}`)
	require.NoError(t, err)
	assert.Equal(t, "amount > 0", got.SQLPredicate)

	_, err = parseInterpretation(`{"column":"amount"}`)
	assert.Error(t, err)

	_, err = parseInterpretation(`not json`)
	assert.Error(t, err)
}

func TestExamples(t *testing.T) {
	groups := Examples()
	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.Len(t, g.Rules, 3, g.Category)
	}
}
