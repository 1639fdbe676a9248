package resilience

import (
	"time"
)

// FromSchedule builds a fixed-schedule RetryConfig from millisecond delays
// and a per-attempt timeout in seconds, as stored in config files.
func FromSchedule(maxAttempts int, backoffMs []int, attemptTimeoutSecs int) RetryConfig {
	delays := make([]time.Duration, 0, len(backoffMs))
	for _, ms := range backoffMs {
		if ms < 0 {
			ms = 0
		}
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	cfg := FixedSchedule(maxAttempts, delays...)
	if attemptTimeoutSecs > 0 {
		cfg.AttemptTimeout = time.Duration(attemptTimeoutSecs) * time.Second
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Name = name
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
