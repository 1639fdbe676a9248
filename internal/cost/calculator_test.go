package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/model"
)

func testRates() Rates {
	return Rates{
		"haiku": {
			Input: 0.80, Output: 4.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"sonnet": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int
		output     int
		cacheWrite int
		cacheRead  int
		want       float64
	}{
		{
			name:  "haiku simple",
			model: "haiku", input: 1000000, output: 100000,
			want: 0.80 + 0.40,
		},
		{
			name:  "sonnet simple",
			model: "sonnet", input: 500000, output: 50000,
			want: 1.50 + 0.75,
		},
		{
			name:  "cache write and read",
			model: "haiku", cacheWrite: 1000000, cacheRead: 1000000,
			want: 0.80*1.25 + 0.80*0.1,
		},
		{
			name:  "unknown model",
			model: "gpt-4", input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:  "zero tokens",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	u := model.TokenUsage{InputTokens: 1000000, OutputTokens: 100000}
	assert.InDelta(t, 1.20, calc.Usage("haiku", u), 1e-9)
}

func TestFromConfig_OverridesDefaults(t *testing.T) {
	t.Parallel()
	calc := FromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-haiku-4-5-20251001": {Input: 2, Output: 10},
			"custom":                    {Input: 1, Output: 1},
		},
	})

	assert.True(t, calc.Known("custom"))
	assert.True(t, calc.Known("claude-opus-4-6"))
	assert.InDelta(t, 2.0, calc.Claude("claude-haiku-4-5-20251001", 1000000, 0, 0, 0), 1e-9)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	for _, m := range []string{"claude-haiku-4-5-20251001", "claude-sonnet-4-5-20250929", "claude-opus-4-6"} {
		r, ok := rates[m]
		assert.True(t, ok, m)
		assert.Greater(t, r.Output, r.Input, m)
	}
}
