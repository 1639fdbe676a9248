package model

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSuccessRateLow        AlertType = "success_rate_low"
	AlertErrorRateHigh         AlertType = "error_rate_high"
	AlertMonthlyCostHigh       AlertType = "monthly_cost_high"
	AlertAvgProcessingTimeHigh AlertType = "avg_processing_time_high"
	AlertDiscoveryFailed       AlertType = "discovery_failed"
)

// Alert is a structured threshold breach.
type Alert struct {
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// RunSummary is the aggregate report of one pipeline invocation.
type RunSummary struct {
	RunID        string             `json:"run_id,omitempty"`
	DryRun       bool               `json:"dry_run"`
	Discovered   int                `json:"discovered"`
	Skipped      map[SkipReason]int `json:"skipped"`
	Ranked       int                `json:"ranked"`
	Deferred     int                `json:"deferred"`
	Processed    int                `json:"processed"`
	Errored      int                `json:"errored"`
	SyncStatuses map[SyncStatus]int `json:"sync_statuses,omitempty"`

	SuccessRate       float64 `json:"success_rate"`
	ProcessingRate    float64 `json:"processing_rate"`
	AvgProcessingSecs float64 `json:"avg_processing_secs"`
	TokensUsed        int     `json:"tokens_used"`
	CostUSD           float64 `json:"cost_usd"`

	StartedAt  time.Time           `json:"started_at"`
	Elapsed    time.Duration       `json:"elapsed"`
	Alerts     []Alert             `json:"alerts"`
	Outcomes   []ProcessingOutcome `json:"outcomes,omitempty"`
	SkipDetail []SkipRecord        `json:"skip_detail,omitempty"`
}

// TotalSkipped sums the skip counters.
func (s RunSummary) TotalSkipped() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// RunRecord is a persisted summary used for cross-run statistics.
type RunRecord struct {
	ID        string     `json:"id"`
	Summary   RunSummary `json:"summary"`
	CostUSD   float64    `json:"cost_usd"`
	CreatedAt time.Time  `json:"created_at"`
}
