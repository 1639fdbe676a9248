// Package jobs reports auto-process progress to the job store, Notion and
// the log. Sinks never return errors to the pipeline.
package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/transcript-sync/internal/model"
)

// ProgressSink receives the lifecycle of one tracked job. Implementations
// must be safe for concurrent use and log their own failures.
type ProgressSink interface {
	MarkRunning(ctx context.Context, jobID string)
	Update(ctx context.Context, jobID string, p model.Progress)
	MarkSuccess(ctx context.Context, jobID string, summary model.RunSummary)
	MarkFailed(ctx context.Context, jobID string, err error)
}

// MultiSink fans every call out to all of its sinks concurrently and waits
// for them to return.
type MultiSink []ProgressSink

// NewMultiSink drops nil sinks.
func NewMultiSink(sinks ...ProgressSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) each(fn func(s ProgressSink)) {
	var g errgroup.Group
	for _, s := range m {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("jobs: sink panicked", zap.String("sink", fmt.Sprintf("%T", s)), zap.Any("panic", r))
				}
			}()
			fn(s)
			return nil
		})
	}
	_ = g.Wait()
}

// MarkRunning implements ProgressSink.
func (m MultiSink) MarkRunning(ctx context.Context, jobID string) {
	m.each(func(s ProgressSink) { s.MarkRunning(ctx, jobID) })
}

// Update implements ProgressSink.
func (m MultiSink) Update(ctx context.Context, jobID string, p model.Progress) {
	m.each(func(s ProgressSink) { s.Update(ctx, jobID, p) })
}

// MarkSuccess implements ProgressSink.
func (m MultiSink) MarkSuccess(ctx context.Context, jobID string, summary model.RunSummary) {
	m.each(func(s ProgressSink) { s.MarkSuccess(ctx, jobID, summary) })
}

// MarkFailed implements ProgressSink.
func (m MultiSink) MarkFailed(ctx context.Context, jobID string, err error) {
	m.each(func(s ProgressSink) { s.MarkFailed(ctx, jobID, err) })
}

// LogSink writes job lifecycle events to zap.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a LogSink on the global logger.
func NewLogSink() *LogSink {
	return &LogSink{log: zap.L().With(zap.String("component", "jobs"))}
}

// MarkRunning implements ProgressSink.
func (l *LogSink) MarkRunning(_ context.Context, jobID string) {
	l.log.Info("job running", zap.String("job_id", jobID))
}

// Update implements ProgressSink.
func (l *LogSink) Update(_ context.Context, jobID string, p model.Progress) {
	l.log.Debug("job progress",
		zap.String("job_id", jobID),
		zap.Int("collected", p.Collected),
		zap.Int("stored", p.Stored),
	)
}

// MarkSuccess implements ProgressSink.
func (l *LogSink) MarkSuccess(_ context.Context, jobID string, s model.RunSummary) {
	l.log.Info("job succeeded",
		zap.String("job_id", jobID),
		zap.Int("processed", s.Processed),
		zap.Int("errored", s.Errored),
		zap.Int("alerts", len(s.Alerts)),
	)
}

// MarkFailed implements ProgressSink.
func (l *LogSink) MarkFailed(_ context.Context, jobID string, err error) {
	l.log.Error("job failed", zap.String("job_id", jobID), zap.Error(err))
}
