package crm

import (
	"strings"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/resilience"
)

var authMarkers = []string{
	"INVALID_SESSION_ID",
	"INVALID_AUTH_HEADER",
}

var fieldMappingMarkers = []string{
	"INVALID_FIELD_FOR_INSERT_UPDATE",
	"INVALID_FIELD",
	"No such column",
}

// Classify maps a Salesforce rejection to a sync status.
func Classify(err error) model.SyncStatus {
	if err == nil {
		return model.SyncSuccess
	}
	msg := err.Error()
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return model.SyncAuthError
		}
	}
	for _, m := range fieldMappingMarkers {
		if strings.Contains(msg, m) {
			return model.SyncFieldMappingError
		}
	}
	return model.SyncFailed
}

// IsFieldMappingError reports whether err is a per-record mapping problem
// that says nothing about the CRM's health.
func IsFieldMappingError(err error) bool {
	return err != nil && Classify(err) == model.SyncFieldMappingError
}

// NewBreaker builds the circuit breaker guarding CRM writes. Field mapping
// rejections do not count toward tripping it.
func NewBreaker(cfg config.BatchConfig) *resilience.CircuitBreaker {
	cbCfg := resilience.FromCircuitConfig("salesforce", cfg.CRMFailureThreshold, cfg.CRMResetTimeoutSecs)
	cbCfg.ShouldTrip = func(err error) bool {
		return !IsFieldMappingError(err)
	}
	return resilience.NewCircuitBreaker(cbCfg)
}
