package workflow

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/config"
)

// ScheduleID identifies the auto-process schedule.
const ScheduleID = "transcript-sync-autoprocess"

// EnsureSchedule creates the cron schedule, or updates its spec and
// arguments when it already exists.
func EnsureSchedule(ctx context.Context, sc client.ScheduleClient, cfg config.TemporalConfig, p autoprocess.Params) error {
	if cfg.Cron == "" {
		return eris.New("workflow: cron expression is required")
	}
	log := zap.L().With(zap.String("component", "workflow.schedule"), zap.String("schedule_id", ScheduleID))

	spec := client.ScheduleSpec{CronExpressions: []string{cfg.Cron}}
	action := &client.ScheduleWorkflowAction{
		ID:        ScheduleID + "-run",
		Workflow:  AutoProcessWorkflow,
		Args:      []any{p},
		TaskQueue: cfg.TaskQueue,
	}

	_, err := sc.Create(ctx, client.ScheduleOptions{
		ID:     ScheduleID,
		Spec:   spec,
		Action: action,
	})
	if err == nil {
		log.Info("schedule created", zap.String("cron", cfg.Cron))
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return eris.Wrap(err, "workflow: create schedule")
	}

	h := sc.GetHandle(ctx, ScheduleID)
	err = h.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := in.Description.Schedule
			sched.Spec = &spec
			sched.Action = action
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
	if err != nil {
		return eris.Wrap(err, "workflow: update schedule")
	}
	log.Info("schedule updated", zap.String("cron", cfg.Cron))
	return nil
}
