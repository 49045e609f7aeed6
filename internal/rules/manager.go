package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/metrics"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Execution states.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateStopped   = "stopped"
	StateSaving    = "saving"
	StateSaved     = "saved"
	StateDiscarded = "discarded"
)

// ExecutionColumn tags the rows a job run wrote to the new results table.
const ExecutionColumn = "Execution_ID"

const (
	DefaultPollInterval = 5 * time.Second
	displayNameLimit    = 50
)

var (
	ErrNotFound   = errors.New("execution not found")
	ErrEmptyRule  = errors.New("rule text is empty")
	ErrNotRunning = errors.New("execution is not running")
	ErrNotReady   = errors.New("execution has not succeeded")
)

// Runner is the subset of the Jobs API the manager drives.
type Runner interface {
	RunNow(ctx context.Context, jobID int64, params map[string]string) (int64, error)
	GetRun(ctx context.Context, runID int64) (*jobs.Run, error)
	CancelRun(ctx context.Context, runID int64) error
	GetRunOutput(ctx context.Context, runID int64) (*jobs.RunOutput, error)
}

// RunMetrics summarizes what a finished rule run found.
type RunMetrics struct {
	RecordsChecked  int           `json:"records_checked"`
	ViolationsFound int           `json:"violations_found"`
	TablesAnalyzed  int           `json:"tables_analyzed"`
	Duration        time.Duration `json:"duration"`
	SuccessRate     float64       `json:"success_rate"`
}

// SuccessRate is the share of checked records without a violation.
func SuccessRate(checked, violations int) float64 {
	if checked <= 0 {
		return 0
	}
	return float64(checked-violations) / float64(checked) * 100
}

type Execution struct {
	ID             string          `json:"id"`
	Rule           string          `json:"rule"`
	DisplayName    string          `json:"display_name"`
	RunID          int64           `json:"run_id"`
	State          string          `json:"state"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
	Metrics        *RunMetrics     `json:"metrics,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at,omitzero"`
}

// DisplayName shortens a rule for listings.
func DisplayName(rule string) string {
	if len([]rune(rule)) > displayNameLimit {
		return string([]rune(rule)[:displayNameLimit]) + "..."
	}
	return rule
}

// Manager runs plain-English rules as warehouse jobs and tracks them until
// their results are saved or discarded.
type Manager struct {
	runner Runner
	jobID  int64
	reader *source.Reader
	interp Interpreter
	log    zerolog.Logger

	poll time.Duration
	now  func() time.Time

	mu      sync.Mutex
	execs   map[string]*Execution
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Manager)

// WithInterpreter translates rules before they are sent to the job.
func WithInterpreter(i Interpreter) Option {
	return func(m *Manager) { m.interp = i }
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.poll = d }
}

func NewManager(runner Runner, jobID int64, reader *source.Reader, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		runner:  runner,
		jobID:   jobID,
		reader:  reader,
		log:     log,
		poll:    DefaultPollInterval,
		now:     time.Now,
		execs:   map[string]*Execution{},
		cancels: map[string]context.CancelFunc{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start triggers a job run for rule and polls it in the background.
func (m *Manager) Start(ctx context.Context, rule string) (Execution, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return Execution{}, ErrEmptyRule
	}

	now := m.now()
	exec := &Execution{
		ID:          fmt.Sprintf("rule_execution_%d_%s", now.Unix(), uuid.NewString()[:8]),
		Rule:        rule,
		DisplayName: DisplayName(rule),
		State:       StateRunning,
		StartedAt:   now,
	}

	if m.interp != nil {
		interp, err := m.interp.Interpret(ctx, rule)
		if err != nil {
			// the job can still interpret the raw text itself
			m.log.Warn().Err(err).Str("execution", exec.ID).Msg("rule interpretation failed")
		} else {
			exec.Interpretation = interp
		}
	}

	params := map[string]string{
		"rule":         rule,
		"execution_id": exec.ID,
		"display_name": exec.DisplayName,
	}
	for k, v := range exec.Interpretation.Params() {
		params[k] = v
	}

	runID, err := m.runner.RunNow(ctx, m.jobID, params)
	if err != nil {
		metrics.RuleExecutions.WithLabelValues(StateFailed).Inc()
		return Execution{}, err
	}
	exec.RunID = runID

	pollCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.execs[exec.ID] = exec
	m.cancels[exec.ID] = cancel
	snapshot := *exec
	m.mu.Unlock()

	m.log.Info().Str("execution", exec.ID).Int64("run_id", runID).Msg("rule execution started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watch(pollCtx, exec.ID, runID)
	}()
	return snapshot, nil
}

func (m *Manager) watch(ctx context.Context, id string, runID int64) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		run, err := m.runner.GetRun(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn().Err(err).Str("execution", id).Msg("run status check failed")
			continue
		}
		if !run.Terminal() {
			continue
		}
		m.finish(ctx, id, runID, run)
		return
	}
}

func (m *Manager) finish(ctx context.Context, id string, runID int64, run *jobs.Run) {
	var (
		res    *RunMetrics
		errMsg string
	)
	state := StateFailed
	if run.Succeeded() {
		state = StateSucceeded
		r, err := m.collect(ctx, id, runID, run)
		if err != nil {
			m.log.Warn().Err(err).Str("execution", id).Msg("could not collect run metrics")
		}
		res = r
	} else {
		errMsg = run.State.StateMessage
		if errMsg == "" {
			errMsg = run.State.LifeCycleState + " " + run.State.ResultState
		}
	}

	m.mu.Lock()
	exec, ok := m.execs[id]
	if ok && exec.State == StateRunning {
		exec.State = state
		exec.Metrics = res
		exec.Error = strings.TrimSpace(errMsg)
		exec.FinishedAt = m.now()
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	metrics.RuleExecutions.WithLabelValues(state).Inc()
	m.log.Info().Str("execution", id).Str("state", state).Msg("rule execution finished")
}

// collect reads the metrics the job reports in its notebook output, and
// falls back to counting the rows it wrote.
func (m *Manager) collect(ctx context.Context, id string, runID int64, run *jobs.Run) (*RunMetrics, error) {
	res := &RunMetrics{Duration: run.Duration()}

	out, err := m.runner.GetRunOutput(ctx, runID)
	if err == nil && out.NotebookOutput.Result != "" {
		var reported struct {
			RecordsChecked  int `json:"records_checked"`
			ViolationsFound int `json:"violations_found"`
			TablesAnalyzed  int `json:"tables_analyzed"`
		}
		if jerr := json.Unmarshal([]byte(out.NotebookOutput.Result), &reported); jerr == nil {
			res.RecordsChecked = reported.RecordsChecked
			res.ViolationsFound = reported.ViolationsFound
			res.TablesAnalyzed = reported.TablesAnalyzed
			res.SuccessRate = SuccessRate(res.RecordsChecked, res.ViolationsFound)
			return res, nil
		}
	}

	rows, qerr := m.executionRows(ctx, id)
	if qerr != nil {
		return res, errors.Join(err, qerr)
	}
	results, ferr := types.FromFrame(rows)
	if ferr != nil {
		return res, errors.Join(err, fmt.Errorf("read execution rows: %w", ferr))
	}
	tables := map[string]struct{}{}
	for _, r := range results {
		res.RecordsChecked++
		if r.Failed() {
			res.ViolationsFound++
		}
		tables[r.Table] = struct{}{}
	}
	res.TablesAnalyzed = len(tables)
	res.SuccessRate = SuccessRate(res.RecordsChecked, res.ViolationsFound)
	return res, nil
}

func (m *Manager) executionRows(ctx context.Context, id string) (*types.Frame, error) {
	wh := m.reader.Warehouse()
	return wh.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = ?",
		m.reader.Table(source.NewResultsTable), wh.Quote(ExecutionColumn)), id)
}

// Get returns a copy of an execution.
func (m *Manager) Get(id string) (Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.execs[id]
	if !ok {
		return Execution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *exec, nil
}

// List returns every execution, newest first.
func (m *Manager) List() []Execution {
	m.mu.Lock()
	out := make([]Execution, 0, len(m.execs))
	for _, e := range m.execs {
		out = append(out, *e)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Rows returns the result rows the execution's run wrote.
func (m *Manager) Rows(ctx context.Context, id string) (*types.Frame, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.executionRows(ctx, id)
}

// Stop cancels a running execution.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	exec, ok := m.execs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if exec.State != StateRunning {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, exec.State)
	}
	runID := exec.RunID
	m.mu.Unlock()

	if err := m.runner.CancelRun(ctx, runID); err != nil {
		return err
	}

	m.mu.Lock()
	if exec.State == StateRunning {
		exec.State = StateStopped
		exec.FinishedAt = m.now()
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	metrics.RuleExecutions.WithLabelValues(StateStopped).Inc()
	m.log.Info().Str("execution", id).Msg("rule execution stopped")
	return nil
}

// Save copies the execution's rows into the dashboard table and clears
// them from the new results table. It returns the number of rows copied.
// An execution is saved at most once.
func (m *Manager) Save(ctx context.Context, id string) (int64, error) {
	if err := m.transition(id, StateSaving, StateSucceeded); err != nil {
		return 0, err
	}
	wh := m.reader.Warehouse()

	cols := make([]string, len(types.ResultColumns))
	for i, c := range types.ResultColumns {
		cols[i] = wh.Quote(c)
	}
	list := strings.Join(cols, ", ")
	n, err := wh.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = ?",
		m.reader.Table(source.SavedTable), list, list,
		m.reader.Table(source.NewResultsTable), wh.Quote(ExecutionColumn)), id)
	if err != nil {
		m.setState(id, StateSucceeded)
		return 0, fmt.Errorf("save execution %s: %w", id, err)
	}
	m.setState(id, StateSaved)
	if _, err := m.deleteRows(ctx, id); err != nil {
		m.log.Warn().Err(err).Str("execution", id).Msg("saved rows left in the new results table")
	}
	m.log.Info().Str("execution", id).Int64("rows", n).Msg("rule results saved")
	return n, nil
}

// Discard drops the execution's rows without saving them.
func (m *Manager) Discard(ctx context.Context, id string) (int64, error) {
	prev, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	if err := m.transition(id, StateDiscarded, StateSucceeded, StateFailed, StateStopped); err != nil {
		return 0, err
	}
	n, err := m.deleteRows(ctx, id)
	if err != nil {
		m.setState(id, prev.State)
		return 0, err
	}
	return n, nil
}

// transition moves an execution to state if it is currently in one of from.
func (m *Manager) transition(id, state string, from ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.execs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !slices.Contains(from, exec.State) {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, id, exec.State)
	}
	exec.State = state
	return nil
}

func (m *Manager) deleteRows(ctx context.Context, id string) (int64, error) {
	wh := m.reader.Warehouse()
	n, err := wh.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		m.reader.Table(source.NewResultsTable), wh.Quote(ExecutionColumn)), id)
	if err != nil {
		return 0, fmt.Errorf("clear execution %s: %w", id, err)
	}
	return n, nil
}

func (m *Manager) setState(id, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec, ok := m.execs[id]; ok {
		exec.State = state
	}
}

// Close stops polling and waits for the watchers to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Wait blocks until the execution leaves the running state or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Execution, error) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		exec, err := m.Get(id)
		if err != nil || exec.State != StateRunning {
			return exec, err
		}
		select {
		case <-ctx.Done():
			return exec, ctx.Err()
		case <-ticker.C:
		}
	}
}
