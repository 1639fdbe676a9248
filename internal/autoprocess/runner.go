// Package autoprocess wires discovery, scheduling and reporting into a
// single pipeline invocation.
package autoprocess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/discovery"
	"github.com/sells-group/transcript-sync/internal/jobs"
	"github.com/sells-group/transcript-sync/internal/matcher"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/monitoring"
	"github.com/sells-group/transcript-sync/internal/scheduler"
)

// maxConcurrency caps Params.Concurrency.
const maxConcurrency = 50

// Params parameterizes one invocation. Zero values fall back to the
// configured defaults.
type Params struct {
	AccountFilter        string `json:"account_filter,omitempty"`
	MaxItems             int    `json:"max_items,omitempty"`
	DryRun               bool   `json:"dry_run,omitempty"`
	TitlePatternOverride string `json:"title_pattern_override,omitempty"`
	Concurrency          int    `json:"concurrency,omitempty"`
	BatchSize            int    `json:"batch_size,omitempty"`
}

// Discoverer finds and ranks work items.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) (discovery.Result, error)
}

// BatchRunner processes ranked work items.
type BatchRunner interface {
	Run(ctx context.Context, items []model.WorkItem, opts scheduler.Options, sink scheduler.ProgressSink) scheduler.Report
}

// RunStore persists runs and jobs.
type RunStore interface {
	CreateJob(ctx context.Context) (*model.Job, error)
	SaveRun(ctx context.Context, summary model.RunSummary) (*model.RunRecord, error)
	SumCostSince(ctx context.Context, since time.Time) (float64, error)
}

// Defaults are applied to zero-valued Params.
type Defaults struct {
	MaxItems    int
	Concurrency int
	BatchSize   int
}

// DefaultsFrom reads Defaults from the config.
func DefaultsFrom(cfg *config.Config) Defaults {
	return Defaults{
		MaxItems:    cfg.Discovery.MaxItems,
		Concurrency: cfg.Batch.Concurrency,
		BatchSize:   cfg.Batch.BatchSize,
	}
}

// Deps are the Runner's collaborators. Runs, Sink and Metrics may be nil.
type Deps struct {
	Discovery Discoverer
	Scheduler BatchRunner
	Runs      RunStore
	Sink      jobs.ProgressSink
	Alerter   *monitoring.Alerter
	Metrics   *monitoring.Metrics
	Defaults  Defaults
	Now       func() time.Time
}

// Runner executes auto-process invocations.
type Runner struct {
	deps Deps
	log  *zap.Logger
}

// New returns a Runner.
func New(deps Deps) *Runner {
	if deps.Sink == nil {
		deps.Sink = jobs.NewLogSink()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Defaults.MaxItems <= 0 {
		deps.Defaults.MaxItems = 20
	}
	return &Runner{
		deps: deps,
		log:  zap.L().With(zap.String("component", "autoprocess")),
	}
}

// RunAutoProcess discovers, ranks and processes meetings, then reports.
// It returns an error only for invalid parameters; every other failure is
// reflected in the summary and its alerts.
func (r *Runner) RunAutoProcess(ctx context.Context, p Params) (model.RunSummary, error) {
	p, err := r.resolve(p)
	if err != nil {
		return model.RunSummary{}, err
	}

	start := r.deps.Now()
	jobID := r.startJob(ctx, p.DryRun)
	log := r.log.With(zap.String("job_id", jobID), zap.Bool("dry_run", p.DryRun))
	log.Info("auto-process started",
		zap.String("account", p.AccountFilter),
		zap.Int("max_items", p.MaxItems),
	)
	r.deps.Sink.MarkRunning(ctx, jobID)

	disc, err := r.deps.Discovery.Discover(ctx, discovery.Request{
		AccountFilter: p.AccountFilter,
		MaxItems:      p.MaxItems,
		TitlePattern:  p.TitlePatternOverride,
	})
	if err != nil {
		log.Error("discovery failed", zap.Error(err))
		summary := r.summarize(disc, nil, start, p.DryRun)
		summary.Alerts = append(summary.Alerts, monitoring.DiscoveryFailed(err, r.deps.Now().UTC()))
		doneCtx := context.WithoutCancel(ctx)
		r.finish(doneCtx, &summary, p.DryRun)
		r.deps.Sink.MarkFailed(doneCtx, jobID, err)
		return summary, nil
	}

	if p.DryRun {
		outcomes := make([]model.ProcessingOutcome, len(disc.Ranked))
		for i, item := range disc.Ranked {
			outcomes[i] = model.ProcessingOutcome{
				ItemID:     item.ID,
				Status:     model.OutcomeWouldProcess,
				SyncStatus: model.SyncSkipped,
			}
			if item.ExternalMatch != nil {
				outcomes[i].RecordID = item.ExternalMatch.RecordID
			}
		}
		summary := r.summarize(disc, outcomes, start, true)
		r.finish(ctx, &summary, true)
		r.deps.Sink.MarkSuccess(ctx, jobID, summary)
		return summary, nil
	}

	rep := r.deps.Scheduler.Run(ctx, disc.Ranked, scheduler.Options{
		Concurrency: p.Concurrency,
		BatchSize:   p.BatchSize,
		JobID:       jobID,
	}, r.deps.Sink)

	// Completed work is reported even when ctx was cancelled mid-run.
	doneCtx := context.WithoutCancel(ctx)
	summary := r.summarize(disc, rep.Outcomes, start, false)
	summary.Alerts = append(summary.Alerts, r.checkAlerts(doneCtx, summary)...)
	r.finish(doneCtx, &summary, false)
	r.deps.Sink.MarkSuccess(doneCtx, jobID, summary)

	log.Info("auto-process complete",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("errored", summary.Errored),
		zap.Int("alerts", len(summary.Alerts)),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// resolve applies defaults and validates p.
func (r *Runner) resolve(p Params) (Params, error) {
	if p.MaxItems == 0 {
		p.MaxItems = r.deps.Defaults.MaxItems
	}
	if p.Concurrency == 0 {
		p.Concurrency = r.deps.Defaults.Concurrency
	}
	if p.BatchSize == 0 {
		p.BatchSize = r.deps.Defaults.BatchSize
	}

	if p.MaxItems < 0 {
		return p, eris.Errorf("autoprocess: max items must be positive, got %d", p.MaxItems)
	}
	if p.Concurrency < 0 || p.Concurrency > maxConcurrency {
		return p, eris.Errorf("autoprocess: concurrency must be between 1 and %d, got %d", maxConcurrency, p.Concurrency)
	}
	if p.BatchSize < 0 {
		return p, eris.Errorf("autoprocess: batch size must be positive, got %d", p.BatchSize)
	}
	if p.TitlePatternOverride != "" {
		if _, err := matcher.New(p.TitlePatternOverride); err != nil {
			return p, eris.Wrap(err, "autoprocess: invalid title pattern")
		}
	}
	return p, nil
}

// startJob creates a tracked job for real runs. Dry runs and store
// failures get a random id.
func (r *Runner) startJob(ctx context.Context, dryRun bool) string {
	if !dryRun && r.deps.Runs != nil {
		job, err := r.deps.Runs.CreateJob(ctx)
		if err == nil {
			return job.ID
		}
		r.log.Warn("create job failed", zap.Error(err))
	}
	return uuid.New().String()
}

func (r *Runner) summarize(disc discovery.Result, outcomes []model.ProcessingOutcome, start time.Time, dryRun bool) model.RunSummary {
	s := monitoring.Summarize(disc, outcomes, r.deps.Now().Sub(start))
	s.StartedAt = start
	s.DryRun = dryRun
	return s
}

// checkAlerts evaluates this run plus the trailing day's spend.
func (r *Runner) checkAlerts(ctx context.Context, s model.RunSummary) []model.Alert {
	if r.deps.Alerter == nil {
		return nil
	}
	daily := s.CostUSD
	if r.deps.Runs != nil {
		prior, err := r.deps.Runs.SumCostSince(ctx, r.deps.Now().Add(-24*time.Hour))
		if err != nil {
			r.log.Warn("sum cost failed", zap.Error(err))
		} else {
			daily += prior
		}
	}
	proc, perf := monitoring.RunStats(s)
	return r.deps.Alerter.CheckAlerts(proc, perf, monitoring.CostStats{DailyCostUSD: daily})
}

// finish persists real runs, delivers alerts and records metrics.
func (r *Runner) finish(ctx context.Context, s *model.RunSummary, dryRun bool) {
	if !dryRun && r.deps.Runs != nil {
		rec, err := r.deps.Runs.SaveRun(ctx, *s)
		if err != nil {
			r.log.Warn("save run failed", zap.Error(err))
		} else {
			s.RunID = rec.ID
		}
	}
	if r.deps.Alerter != nil && len(s.Alerts) > 0 {
		r.deps.Alerter.SendAlerts(ctx, s.Alerts)
	}
	r.deps.Metrics.ObserveRun(*s)
}
