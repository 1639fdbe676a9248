package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/config"
)

type fakeHandle struct {
	client.ScheduleHandle
	updated *client.ScheduleUpdate
	err     error
}

func (h *fakeHandle) Update(_ context.Context, opts client.ScheduleUpdateOptions) error {
	if h.err != nil {
		return h.err
	}
	u, err := opts.DoUpdate(client.ScheduleUpdateInput{
		Description: client.ScheduleDescription{Schedule: client.Schedule{
			Spec: &client.ScheduleSpec{CronExpressions: []string{"0 0 * * *"}},
		}},
	})
	h.updated = u
	return err
}

type fakeScheduleClient struct {
	createErr error
	created   *client.ScheduleOptions
	handle    *fakeHandle
}

func (f *fakeScheduleClient) Create(_ context.Context, opts client.ScheduleOptions) (client.ScheduleHandle, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &opts
	return f.handle, nil
}

func (f *fakeScheduleClient) List(context.Context, client.ScheduleListOptions) (client.ScheduleListIterator, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScheduleClient) GetHandle(context.Context, string) client.ScheduleHandle {
	return f.handle
}

var testTemporal = config.TemporalConfig{TaskQueue: "transcript-sync", Cron: "0 * * * *"}

func TestEnsureSchedule_Create(t *testing.T) {
	sc := &fakeScheduleClient{handle: &fakeHandle{}}

	err := EnsureSchedule(context.Background(), sc, testTemporal, autoprocess.Params{MaxItems: 10})
	require.NoError(t, err)
	require.NotNil(t, sc.created)
	assert.Equal(t, ScheduleID, sc.created.ID)
	assert.Equal(t, []string{"0 * * * *"}, sc.created.Spec.CronExpressions)

	action, ok := sc.created.Action.(*client.ScheduleWorkflowAction)
	require.True(t, ok)
	assert.Equal(t, "transcript-sync", action.TaskQueue)
	assert.Equal(t, []any{autoprocess.Params{MaxItems: 10}}, action.Args)
	assert.Nil(t, sc.handle.updated)
}

func TestEnsureSchedule_UpdatesExisting(t *testing.T) {
	sc := &fakeScheduleClient{createErr: temporal.ErrScheduleAlreadyRunning, handle: &fakeHandle{}}

	err := EnsureSchedule(context.Background(), sc, testTemporal, autoprocess.Params{})
	require.NoError(t, err)
	require.NotNil(t, sc.handle.updated)
	assert.Equal(t, []string{"0 * * * *"}, sc.handle.updated.Schedule.Spec.CronExpressions)
}

func TestEnsureSchedule_Errors(t *testing.T) {
	err := EnsureSchedule(context.Background(), &fakeScheduleClient{}, config.TemporalConfig{}, autoprocess.Params{})
	assert.Error(t, err)

	sc := &fakeScheduleClient{createErr: errors.New("unavailable")}
	err = EnsureSchedule(context.Background(), sc, testTemporal, autoprocess.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schedule")

	sc = &fakeScheduleClient{
		createErr: temporal.ErrScheduleAlreadyRunning,
		handle:    &fakeHandle{err: errors.New("permission denied")},
	}
	err = EnsureSchedule(context.Background(), sc, testTemporal, autoprocess.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update schedule")
}
