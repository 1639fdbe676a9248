package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/transcript-sync/internal/discovery"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/store"
)

// Summarize aggregates one run. Dry-run outcomes (would_process) count as
// processed; sync statuses are only counted for items that were synced.
func Summarize(disc discovery.Result, outcomes []model.ProcessingOutcome, elapsed time.Duration) model.RunSummary {
	s := model.RunSummary{
		Discovered:   disc.Visited,
		Skipped:      make(map[model.SkipReason]int),
		Ranked:       len(disc.Ranked),
		Deferred:     disc.Deferred,
		SyncStatuses: make(map[model.SyncStatus]int),
		Elapsed:      elapsed,
		Alerts:       []model.Alert{},
		Outcomes:     outcomes,
		SkipDetail:   disc.Skips,
	}
	for _, sk := range disc.Skips {
		s.Skipped[sk.Reason]++
	}

	var totalMs int64
	timed := 0
	for _, o := range outcomes {
		switch o.Status {
		case model.OutcomeSuccess, model.OutcomeWouldProcess:
			s.Processed++
		case model.OutcomeError:
			s.Errored++
		}
		if o.Status == model.OutcomeWouldProcess {
			continue
		}
		s.SyncStatuses[o.SyncStatus]++
		if o.TokensUsed != nil {
			s.TokensUsed += *o.TokensUsed
		}
		s.CostUSD += o.CostUSD
		totalMs += o.ProcessingTimeMs
		timed++
	}

	s.SuccessRate = float64(s.Processed) / float64(max(s.Processed+s.Errored, 1))
	s.ProcessingRate = float64(s.Processed) / max(elapsed.Seconds(), 1)
	if timed > 0 {
		s.AvgProcessingSecs = float64(totalMs) / float64(timed) / 1000
	}
	return s
}

// RunStats splits a summary into the blocks evaluated by CheckAlerts.
func RunStats(s model.RunSummary) (ProcessingStats, PerformanceStats) {
	return ProcessingStats{
			Succeeded:   s.Processed,
			Errored:     s.Errored,
			SuccessRate: s.SuccessRate,
		}, PerformanceStats{
			Items:             s.Processed + s.Errored,
			AvgProcessingSecs: s.AvgProcessingSecs,
			ProcessingRate:    s.ProcessingRate,
		}
}

// RunHistory is the slice of store.Store the collector reads.
type RunHistory interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunRecord, error)
	SumCostSince(ctx context.Context, since time.Time) (float64, error)
}

// Snapshot aggregates the persisted runs of a lookback window.
type Snapshot struct {
	Runs              int       `json:"runs"`
	Succeeded         int       `json:"succeeded"`
	Errored           int       `json:"errored"`
	SuccessRate       float64   `json:"success_rate"`
	AvgProcessingSecs float64   `json:"avg_processing_secs"`
	CostUSD           float64   `json:"cost_usd"`
	DailyCostUSD      float64   `json:"daily_cost_usd"`
	LookbackHours     int       `json:"lookback_hours"`
	CollectedAt       time.Time `json:"collected_at"`
}

// Stats returns the snapshot as CheckAlerts input.
func (s *Snapshot) Stats() (ProcessingStats, PerformanceStats, CostStats) {
	return ProcessingStats{
			Succeeded:   s.Succeeded,
			Errored:     s.Errored,
			SuccessRate: s.SuccessRate,
		}, PerformanceStats{
			Items:             s.Succeeded + s.Errored,
			AvgProcessingSecs: s.AvgProcessingSecs,
		}, CostStats{
			DailyCostUSD: s.DailyCostUSD,
		}
}

// Collector gathers cross-run statistics from the store.
type Collector struct {
	runs RunHistory
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunHistory) *Collector {
	return &Collector{runs: runs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot over the given lookback window. Dry runs are
// ignored. Cost is scaled to a 24h day.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Since: cutoff, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var weightedSecs float64
	for _, r := range runs {
		if r.Summary.DryRun {
			continue
		}
		snap.Runs++
		snap.Succeeded += r.Summary.Processed
		snap.Errored += r.Summary.Errored
		weightedSecs += r.Summary.AvgProcessingSecs * float64(r.Summary.Processed+r.Summary.Errored)
	}
	if n := snap.Succeeded + snap.Errored; n > 0 {
		snap.SuccessRate = float64(snap.Succeeded) / float64(n)
		snap.AvgProcessingSecs = weightedSecs / float64(n)
	}

	cost, err := c.runs.SumCostSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: sum cost")
	}
	snap.CostUSD = cost
	snap.DailyCostUSD = cost * 24 / float64(lookbackHours)

	return snap, nil
}
