// Package workflow runs auto-process on a Temporal schedule.
package workflow

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/model"
)

// activityTimeout bounds a single auto-process run.
const activityTimeout = 2 * time.Hour

// AutoProcessor is the pipeline entry point the activity calls.
type AutoProcessor interface {
	RunAutoProcess(ctx context.Context, p autoprocess.Params) (model.RunSummary, error)
}

// RunResult is the workflow-visible part of a run summary.
type RunResult struct {
	RunID     string        `json:"run_id,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Ranked    int           `json:"ranked"`
	Skipped   int           `json:"skipped"`
	Processed int           `json:"processed"`
	Errored   int           `json:"errored"`
	CostUSD   float64       `json:"cost_usd"`
	Alerts    []model.Alert `json:"alerts,omitempty"`
}

// ResultFrom trims a summary down to a RunResult.
func ResultFrom(s model.RunSummary) *RunResult {
	return &RunResult{
		RunID:     s.RunID,
		DryRun:    s.DryRun,
		Ranked:    s.Ranked,
		Skipped:   s.TotalSkipped(),
		Processed: s.Processed,
		Errored:   s.Errored,
		CostUSD:   s.CostUSD,
		Alerts:    s.Alerts,
	}
}

// Activities hosts the auto-process activity.
type Activities struct {
	Runner AutoProcessor
}

// RunAutoProcess runs one pipeline invocation.
func (a *Activities) RunAutoProcess(ctx context.Context, p autoprocess.Params) (*RunResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Starting auto-process", "account", p.AccountFilter, "max_items", p.MaxItems, "dry_run", p.DryRun)

	s, err := a.Runner.RunAutoProcess(ctx, p)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidParams", err)
	}
	return ResultFrom(s), nil
}

// AutoProcessWorkflow executes the auto-process activity once. Runs are not
// retried; discovery skips already structured meetings, so the next
// scheduled run picks up whatever this one missed.
func AutoProcessWorkflow(ctx workflow.Context, p autoprocess.Params) (*RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Auto-process workflow started", "account", p.AccountFilter)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var acts *Activities
	var result RunResult
	if err := workflow.ExecuteActivity(ctx, acts.RunAutoProcess, p).Get(ctx, &result); err != nil {
		logger.Error("Auto-process activity failed", "error", err)
		return nil, err
	}

	logger.Info("Auto-process workflow complete",
		"run_id", result.RunID,
		"processed", result.Processed,
		"errored", result.Errored,
		"alerts", len(result.Alerts))
	return &result, nil
}
