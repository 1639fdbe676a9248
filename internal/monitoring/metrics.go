package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/transcript-sync/internal/model"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
//
// Metrics:
//   - tsync_discovered_total - meetings visited by discovery
//   - tsync_skipped_total{reason} - meetings skipped by discovery
//   - tsync_processed_total{status} - scheduled items by outcome status
//   - tsync_sync_total{status} - CRM write results
//   - tsync_item_processing_seconds - per-item processing time
//   - tsync_tokens_total - LLM tokens consumed
//   - tsync_cost_usd_total - LLM spend
//   - tsync_alerts_total{type} - alerts raised
//   - tsync_last_run_success_rate - success rate of the latest run
//   - tsync_last_run_timestamp_seconds - completion time of the latest run
type Metrics struct {
	Discovered     prometheus.Counter
	Skipped        *prometheus.CounterVec
	Processed      *prometheus.CounterVec
	Synced         *prometheus.CounterVec
	ProcessingTime prometheus.Histogram
	Tokens         prometheus.Counter
	CostUSD        prometheus.Counter
	Alerts         *prometheus.CounterVec
	LastSuccess    prometheus.Gauge
	LastRun        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Discovered: f.NewCounter(prometheus.CounterOpts{
			Name: "tsync_discovered_total",
			Help: "Total number of meetings visited by discovery",
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsync_skipped_total",
			Help: "Total number of meetings skipped by discovery",
		}, []string{"reason"}),
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsync_processed_total",
			Help: "Total number of scheduled items by outcome status",
		}, []string{"status"}),
		Synced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsync_sync_total",
			Help: "Total number of CRM writes by result",
		}, []string{"status"}),
		ProcessingTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsync_item_processing_seconds",
			Help:    "Per-item extraction and sync time in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2m
		}),
		Tokens: f.NewCounter(prometheus.CounterOpts{
			Name: "tsync_tokens_total",
			Help: "Total LLM tokens consumed",
		}),
		CostUSD: f.NewCounter(prometheus.CounterOpts{
			Name: "tsync_cost_usd_total",
			Help: "Total LLM spend in USD",
		}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsync_alerts_total",
			Help: "Total alerts raised by type",
		}, []string{"type"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "tsync_last_run_success_rate",
			Help: "Success rate of the most recent non-dry run",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "tsync_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished",
		}),
	}
}

// ObserveRun records a completed run summary.
func (m *Metrics) ObserveRun(s model.RunSummary) {
	if m == nil {
		return
	}
	m.Discovered.Add(float64(s.Discovered))
	for reason, n := range s.Skipped {
		m.Skipped.WithLabelValues(string(reason)).Add(float64(n))
	}
	for _, o := range s.Outcomes {
		m.Processed.WithLabelValues(string(o.Status)).Inc()
		if o.Status == model.OutcomeWouldProcess {
			continue
		}
		m.Synced.WithLabelValues(string(o.SyncStatus)).Inc()
		m.ProcessingTime.Observe(float64(o.ProcessingTimeMs) / 1000)
	}
	m.Tokens.Add(float64(s.TokensUsed))
	m.CostUSD.Add(s.CostUSD)
	m.ObserveAlerts(s.Alerts)
	if !s.DryRun {
		m.LastSuccess.Set(s.SuccessRate)
	}
	m.LastRun.Set(float64(s.StartedAt.Add(s.Elapsed).Unix()))
}

// ObserveAlerts counts raised alerts by type.
func (m *Metrics) ObserveAlerts(alerts []model.Alert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.Alerts.WithLabelValues(string(a.Type)).Inc()
	}
}
