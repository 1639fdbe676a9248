package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/model"
)

// JobStore is the slice of store.Store that tracks jobs.
type JobStore interface {
	UpdateJobProgress(ctx context.Context, id string, p model.Progress) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg string) error
}

// StoreSink persists progress to the jobs table. Jobs are created running
// by the store, so MarkRunning is a no-op.
type StoreSink struct {
	store JobStore
	log   *zap.Logger
}

// NewStoreSink wraps st.
func NewStoreSink(st JobStore) *StoreSink {
	return &StoreSink{store: st, log: zap.L().With(zap.String("component", "jobs.store"))}
}

// MarkRunning implements ProgressSink.
func (s *StoreSink) MarkRunning(context.Context, string) {}

// Update implements ProgressSink.
func (s *StoreSink) Update(ctx context.Context, jobID string, p model.Progress) {
	if err := s.store.UpdateJobProgress(ctx, jobID, p); err != nil {
		s.log.Warn("update job progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

// MarkSuccess implements ProgressSink.
func (s *StoreSink) MarkSuccess(ctx context.Context, jobID string, summary model.RunSummary) {
	p := model.Progress{Collected: summary.Processed + summary.Errored, Stored: summary.Processed}
	if err := s.store.UpdateJobProgress(ctx, jobID, p); err != nil {
		s.log.Warn("update job progress", zap.String("job_id", jobID), zap.Error(err))
	}
	if err := s.store.FinishJob(ctx, jobID, model.JobStatusSuccess, ""); err != nil {
		s.log.Warn("finish job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// MarkFailed implements ProgressSink.
func (s *StoreSink) MarkFailed(ctx context.Context, jobID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if ferr := s.store.FinishJob(ctx, jobID, model.JobStatusFailed, msg); ferr != nil {
		s.log.Warn("finish job", zap.String("job_id", jobID), zap.Error(ferr))
	}
}
