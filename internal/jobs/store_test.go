package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/transcript-sync/internal/model"
)

type fakeJobStore struct {
	progress []model.Progress
	statuses []model.JobStatus
	messages []string
	err      error
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, _ string, p model.Progress) error {
	f.progress = append(f.progress, p)
	return f.err
}

func (f *fakeJobStore) FinishJob(_ context.Context, _ string, status model.JobStatus, msg string) error {
	f.statuses = append(f.statuses, status)
	f.messages = append(f.messages, msg)
	return f.err
}

func TestStoreSink(t *testing.T) {
	st := &fakeJobStore{}
	s := NewStoreSink(st)
	ctx := context.Background()

	s.MarkRunning(ctx, "j1")
	s.Update(ctx, "j1", model.Progress{Collected: 1, Stored: 1})
	s.MarkSuccess(ctx, "j1", model.RunSummary{Processed: 3, Errored: 1})

	assert.Equal(t, []model.Progress{{Collected: 1, Stored: 1}, {Collected: 4, Stored: 3}}, st.progress)
	assert.Equal(t, []model.JobStatus{model.JobStatusSuccess}, st.statuses)
}

func TestStoreSink_MarkFailed(t *testing.T) {
	st := &fakeJobStore{}
	NewStoreSink(st).MarkFailed(context.Background(), "j1", errors.New("discovery: list page 1"))

	assert.Equal(t, []model.JobStatus{model.JobStatusFailed}, st.statuses)
	assert.Equal(t, []string{"discovery: list page 1"}, st.messages)
}

func TestStoreSink_ErrorsAreSwallowed(t *testing.T) {
	st := &fakeJobStore{err: errors.New("db down")}
	s := NewStoreSink(st)

	assert.NotPanics(t, func() {
		s.Update(context.Background(), "j1", model.Progress{})
		s.MarkSuccess(context.Background(), "j1", model.RunSummary{})
		s.MarkFailed(context.Background(), "j1", nil)
	})
	assert.Equal(t, []string{"", ""}, st.messages)
}
