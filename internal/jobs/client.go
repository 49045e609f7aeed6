package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/databricks/databricks-sdk-go"
	sdkjobs "github.com/databricks/databricks-sdk-go/service/jobs"
)

// Life-cycle states after which a run no longer changes.
const (
	StateTerminated    = string(sdkjobs.RunLifeCycleStateTerminated)
	StateSkipped       = string(sdkjobs.RunLifeCycleStateSkipped)
	StateInternalError = string(sdkjobs.RunLifeCycleStateInternalError)
)

// ResultSuccess is the result state of a run that finished cleanly.
const ResultSuccess = string(sdkjobs.RunResultStateSuccess)

var ErrNoJob = errors.New("no job id configured")

type RunState struct {
	LifeCycleState string `json:"life_cycle_state"`
	ResultState    string `json:"result_state,omitempty"`
	StateMessage   string `json:"state_message,omitempty"`
}

type Run struct {
	RunID      int64    `json:"run_id"`
	JobID      int64    `json:"job_id"`
	State      RunState `json:"state"`
	StartTime  int64    `json:"start_time,omitempty"`
	EndTime    int64    `json:"end_time,omitempty"`
	RunPageURL string   `json:"run_page_url,omitempty"`
}

// Terminal reports whether the run has stopped changing.
func (r *Run) Terminal() bool {
	switch r.State.LifeCycleState {
	case StateTerminated, StateSkipped, StateInternalError:
		return true
	}
	return false
}

func (r *Run) Succeeded() bool {
	return r.State.LifeCycleState == StateTerminated && r.State.ResultState == ResultSuccess
}

// Duration is the wall time between start and end, or zero while running.
func (r *Run) Duration() time.Duration {
	if r.StartTime == 0 || r.EndTime == 0 {
		return 0
	}
	return time.Duration(r.EndTime-r.StartTime) * time.Millisecond
}

type RunOutput struct {
	NotebookOutput struct {
		Result    string `json:"result,omitempty"`
		Truncated bool   `json:"truncated,omitempty"`
	} `json:"notebook_output"`
	Error    string `json:"error,omitempty"`
	Metadata *Run   `json:"metadata,omitempty"`
}

// Client drives the rule job through the Databricks SDK. API failures
// unwrap to *apierr.APIError.
type Client struct {
	api sdkjobs.JobsInterface
}

// New builds a client authenticated with a personal access token.
func New(host, token string, timeout time.Duration) (*Client, error) {
	w, err := databricks.NewWorkspaceClient(&databricks.Config{
		Host:               host,
		Token:              token,
		AuthType:           "pat",
		HTTPTimeoutSeconds: int(timeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace client: %w", err)
	}
	return &Client{api: w.Jobs}, nil
}

// RunNow triggers the job and returns the new run id. Parameters are passed
// to the job's notebook task.
func (c *Client) RunNow(ctx context.Context, jobID int64, params map[string]string) (int64, error) {
	if jobID == 0 {
		return 0, ErrNoJob
	}
	wait, err := c.api.RunNow(ctx, sdkjobs.RunNow{JobId: jobID, NotebookParams: params})
	if err != nil {
		return 0, fmt.Errorf("failed to trigger job %d: %w", jobID, err)
	}
	return wait.RunId, nil
}

func (c *Client) GetRun(ctx context.Context, runID int64) (*Run, error) {
	run, err := c.api.GetRun(ctx, sdkjobs.GetRunRequest{RunId: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to check run %d: %w", runID, err)
	}
	return fromSDK(run), nil
}

func (c *Client) CancelRun(ctx context.Context, runID int64) error {
	if _, err := c.api.CancelRun(ctx, sdkjobs.CancelRun{RunId: runID}); err != nil {
		return fmt.Errorf("failed to cancel run %d: %w", runID, err)
	}
	return nil
}

func (c *Client) GetRunOutput(ctx context.Context, runID int64) (*RunOutput, error) {
	res, err := c.api.GetRunOutput(ctx, sdkjobs.GetRunOutputRequest{RunId: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch output of run %d: %w", runID, err)
	}
	out := &RunOutput{Error: res.Error}
	if res.NotebookOutput != nil {
		out.NotebookOutput.Result = res.NotebookOutput.Result
		out.NotebookOutput.Truncated = res.NotebookOutput.Truncated
	}
	if res.Metadata != nil {
		out.Metadata = fromSDK(res.Metadata)
	}
	return out, nil
}

func fromSDK(r *sdkjobs.Run) *Run {
	run := &Run{
		RunID:      r.RunId,
		JobID:      r.JobId,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		RunPageURL: r.RunPageUrl,
	}
	if s := r.State; s != nil {
		run.State = RunState{
			LifeCycleState: string(s.LifeCycleState),
			ResultState:    string(s.ResultState),
			StateMessage:   s.StateMessage,
		}
	}
	return run
}
