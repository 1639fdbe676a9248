// Package scheduler runs extraction and CRM sync for ranked work items in
// sequential batches with a bounded worker pool per batch.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/cost"
	"github.com/sells-group/transcript-sync/internal/crm"
	"github.com/sells-group/transcript-sync/internal/model"
)

// Extractor turns a transcript into merged structured fields.
type Extractor interface {
	Extract(ctx context.Context, text string) model.ExtractionResult
}

// ExtractFunc adapts a function to Extractor.
type ExtractFunc func(ctx context.Context, text string) model.ExtractionResult

// Extract calls f.
func (f ExtractFunc) Extract(ctx context.Context, text string) model.ExtractionResult {
	return f(ctx, text)
}

// Persister saves extracted fields against the source meeting.
type Persister interface {
	SaveStructured(ctx context.Context, id string, data map[string]any) error
}

// CRMWriter pushes extracted fields to the matched CRM record.
type CRMWriter interface {
	WriteStructuredFields(ctx context.Context, recordID string, fields map[string]any) (crm.WriteResult, error)
}

// ProgressSink receives progress after every completed item.
type ProgressSink interface {
	Update(ctx context.Context, jobID string, p model.Progress)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options parameterizes one Run.
type Options struct {
	Concurrency int
	BatchSize   int
	JobID       string
}

// Report is the result of a Run. Outcomes are in completion order.
type Report struct {
	Succeeded int                       `json:"succeeded"`
	Errored   int                       `json:"errored"`
	Outcomes  []model.ProcessingOutcome `json:"outcomes"`
}

// Config holds the scheduler's collaborators and timing.
type Config struct {
	Extractor Extractor
	Store     Persister
	CRM       CRMWriter
	Cost      *cost.Calculator
	// Model prices token usage through Cost.
	Model              string
	InterBatchDelay    time.Duration
	CRMTimeout         time.Duration
	DefaultConcurrency int
	DefaultBatchSize   int
	Sleep              Sleeper
	Now                func() time.Time
}

// ConfigFrom fills the timing fields from the batch config section.
func ConfigFrom(cfg config.BatchConfig) Config {
	return Config{
		InterBatchDelay:    time.Duration(cfg.InterBatchDelayMs) * time.Millisecond,
		CRMTimeout:         time.Duration(cfg.CRMTimeoutSecs) * time.Second,
		DefaultConcurrency: cfg.Concurrency,
		DefaultBatchSize:   cfg.BatchSize,
	}
}

// Scheduler runs work items.
type Scheduler struct {
	cfg Config
	log *zap.Logger
}

// New returns a Scheduler with defaults applied to cfg.
func New(cfg Config) *Scheduler {
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = 0
	}
	if cfg.CRMTimeout <= 0 {
		cfg.CRMTimeout = 30 * time.Second
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 3
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 5
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cost == nil {
		cfg.Cost = cost.NewCalculator(cost.DefaultRates())
	}
	return &Scheduler{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "scheduler")),
	}
}

// Run processes items in batches of opts.BatchSize with at most
// opts.Concurrency items in flight. ctx is checked between batches only:
// items already started run to completion on a context detached from ctx,
// and items never started are reported as errors. sink may be nil; it is fed
// from its own goroutine and has received every update when Run returns.
func (s *Scheduler) Run(ctx context.Context, items []model.WorkItem, opts Options, sink ProgressSink) Report {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.DefaultConcurrency
	}
	size := opts.BatchSize
	if size <= 0 {
		size = s.cfg.DefaultBatchSize
	}

	log := s.log.With(zap.String("job_id", opts.JobID))
	log.Info("scheduling items",
		zap.Int("items", len(items)),
		zap.Int("concurrency", concurrency),
		zap.Int("batch_size", size),
	)

	workCtx := context.WithoutCancel(ctx)
	progress := s.startProgress(workCtx, opts.JobID, sink, len(items))

	report := Report{Outcomes: make([]model.ProcessingOutcome, 0, len(items))}
	var completed, succeeded atomic.Int64

	record := func(o model.ProcessingOutcome) {
		report.Outcomes = append(report.Outcomes, o)
		c := completed.Add(1)
		st := succeeded.Load()
		if o.Status == model.OutcomeSuccess {
			st = succeeded.Add(1)
		}
		progress.send(model.Progress{Collected: int(c), Stored: int(st)})
	}

	for start := 0; start < len(items); start += size {
		if start > 0 {
			if err := s.cfg.Sleep(ctx, s.cfg.InterBatchDelay); err != nil {
				log.Warn("run cancelled between batches",
					zap.Int("remaining", len(items)-start),
					zap.Error(err),
				)
				for _, item := range items[start:] {
					record(notStarted(item, err))
				}
				break
			}
		}

		end := min(start+size, len(items))
		batch := items[start:end]
		for o := range s.runBatch(workCtx, batch, concurrency) {
			record(o)
		}
		log.Debug("batch complete",
			zap.Int("batch_start", start),
			zap.Int("batch_len", len(batch)),
			zap.Int64("completed", completed.Load()),
		)
	}
	progress.close()

	report.Succeeded = int(succeeded.Load())
	report.Errored = len(report.Outcomes) - report.Succeeded
	log.Info("scheduling complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("errored", report.Errored),
	)
	return report
}

// runBatch runs one fresh errgroup per batch, limited to concurrency, and
// returns a channel that yields outcomes in completion order and closes
// once every worker is done. Workers never return an error.
func (s *Scheduler) runBatch(ctx context.Context, batch []model.WorkItem, concurrency int) <-chan model.ProcessingOutcome {
	results := make(chan model.ProcessingOutcome, len(batch))

	var g errgroup.Group
	g.SetLimit(concurrency)
	go func() {
		for _, item := range batch {
			g.Go(func() error {
				results <- s.process(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	return results
}

// progressWriter delivers progress to a sink from a single goroutine so a
// slow sink never holds up the batch loop.
type progressWriter struct {
	updates chan model.Progress
	done    chan struct{}
}

func (s *Scheduler) startProgress(ctx context.Context, jobID string, sink ProgressSink, n int) *progressWriter {
	if sink == nil {
		return nil
	}
	pw := &progressWriter{
		updates: make(chan model.Progress, max(n, 1)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(pw.done)
		for p := range pw.updates {
			sink.Update(ctx, jobID, p)
		}
	}()
	return pw
}

func (pw *progressWriter) send(p model.Progress) {
	if pw != nil {
		pw.updates <- p
	}
}

// close flushes pending updates and waits for the writer to exit.
func (pw *progressWriter) close() {
	if pw == nil {
		return
	}
	close(pw.updates)
	<-pw.done
}

func notStarted(item model.WorkItem, err error) model.ProcessingOutcome {
	o := model.ProcessingOutcome{
		ItemID:       item.ID,
		Status:       model.OutcomeError,
		SyncStatus:   model.SyncSkipped,
		ErrorMessage: "not started: " + err.Error(),
	}
	if item.ExternalMatch != nil {
		o.RecordID = item.ExternalMatch.RecordID
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
