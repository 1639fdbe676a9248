//go:build !integration

package main

import (
	"path/filepath"
	"testing"

	"github.com/sells-group/transcript-sync/internal/config"
)

// testConfig returns a config that passes Validate for local modes, backed
// by a temporary SQLite file.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"},
		Salesforce: config.SalesforceConfig{
			SObject:     "Account",
			NameField:   "Name",
			SearchLimit: 10,
		},
		Discovery: config.DiscoveryConfig{
			Keyword:  "初回",
			PageSize: 40,
			MaxItems: 20,
		},
		Batch: config.BatchConfig{
			Concurrency:         3,
			BatchSize:           5,
			CRMTimeoutSecs:      30,
			CRMFailureThreshold: 5,
			CRMResetTimeoutSecs: 60,
		},
		Monitoring: config.MonitoringConfig{
			SuccessRateMin:    0.8,
			ErrorRateMax:      0.2,
			MonthlyCostMaxUSD: 500,
		},
		Server: config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
}
