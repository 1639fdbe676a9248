// Package monitoring turns discovery and scheduler output into run
// summaries, evaluates alert thresholds, and exports Prometheus metrics.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/model"
)

// ProcessingStats is the outcome block evaluated by CheckAlerts.
type ProcessingStats struct {
	Succeeded   int
	Errored     int
	SuccessRate float64
}

// PerformanceStats is the timing block evaluated by CheckAlerts.
type PerformanceStats struct {
	Items             int
	AvgProcessingSecs float64
	ProcessingRate    float64
}

// CostStats is the spend block evaluated by CheckAlerts.
type CostStats struct {
	DailyCostUSD float64
}

// Alerter evaluates stats against configured thresholds and delivers
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
	log    *zap.Logger
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
		log:    zap.L().With(zap.String("component", "monitoring.alerter")),
	}
}

// CheckAlerts runs every threshold check independently. A panic in one
// block is logged and does not suppress the others.
func (a *Alerter) CheckAlerts(proc ProcessingStats, perf PerformanceStats, cost CostStats) []model.Alert {
	var alerts []model.Alert
	now := a.now()

	a.guard("processing", func() {
		alerts = append(alerts, a.checkProcessing(proc, now)...)
	})
	a.guard("performance", func() {
		alerts = append(alerts, a.checkPerformance(perf, now)...)
	})
	a.guard("cost", func() {
		alerts = append(alerts, a.checkCost(cost, now)...)
	})

	return alerts
}

func (a *Alerter) guard(block string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("alert check panicked", zap.String("block", block), zap.Any("panic", r))
		}
	}()
	fn()
}

func (a *Alerter) checkProcessing(s ProcessingStats, now time.Time) []model.Alert {
	finished := s.Succeeded + s.Errored
	if finished == 0 {
		return nil
	}

	var alerts []model.Alert
	if s.SuccessRate < a.cfg.SuccessRateMin {
		alerts = append(alerts, model.Alert{
			Type:     model.AlertSuccessRateLow,
			Severity: model.SeverityWarning,
			Message: fmt.Sprintf("Success rate %.1f%% is below %.1f%% (%d/%d items)",
				s.SuccessRate*100, a.cfg.SuccessRateMin*100, s.Succeeded, finished),
			Value:     s.SuccessRate,
			Threshold: a.cfg.SuccessRateMin,
			Timestamp: now,
		})
	}

	errorRate := float64(s.Errored) / float64(finished)
	if errorRate > a.cfg.ErrorRateMax {
		alerts = append(alerts, model.Alert{
			Type:     model.AlertErrorRateHigh,
			Severity: model.SeverityCritical,
			Message: fmt.Sprintf("Error rate %.1f%% exceeds %.1f%% (%d/%d items)",
				errorRate*100, a.cfg.ErrorRateMax*100, s.Errored, finished),
			Value:     errorRate,
			Threshold: a.cfg.ErrorRateMax,
			Timestamp: now,
		})
	}
	return alerts
}

func (a *Alerter) checkPerformance(s PerformanceStats, now time.Time) []model.Alert {
	limit := a.cfg.AvgProcessingSecsMax
	if limit <= 0 || s.Items == 0 || s.AvgProcessingSecs <= limit {
		return nil
	}
	return []model.Alert{{
		Type:      model.AlertAvgProcessingTimeHigh,
		Severity:  model.SeverityWarning,
		Message:   fmt.Sprintf("Average processing time %.1fs/item exceeds %.1fs", s.AvgProcessingSecs, limit),
		Value:     s.AvgProcessingSecs,
		Threshold: limit,
		Timestamp: now,
	}}
}

func (a *Alerter) checkCost(s CostStats, now time.Time) []model.Alert {
	limit := a.cfg.MonthlyCostMaxUSD
	monthly := s.DailyCostUSD * 30
	if limit <= 0 || monthly <= limit {
		return nil
	}
	return []model.Alert{{
		Type:      model.AlertMonthlyCostHigh,
		Severity:  model.SeverityWarning,
		Message:   fmt.Sprintf("Projected monthly cost $%.2f exceeds $%.2f", monthly, limit),
		Value:     monthly,
		Threshold: limit,
		Timestamp: now,
	}}
}

// DiscoveryFailed builds the alert raised when the work source cannot be
// listed.
func DiscoveryFailed(err error, now time.Time) model.Alert {
	return model.Alert{
		Type:      model.AlertDiscoveryFailed,
		Severity:  model.SeverityCritical,
		Message:   fmt.Sprintf("Discovery failed: %v", err),
		Timestamp: now,
	}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []model.Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			a.log.Error("failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.log.Info("alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
