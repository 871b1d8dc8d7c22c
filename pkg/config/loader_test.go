package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
providers:
  active: main
  entries:
    main:
      type: openai
      model: gpt-4o
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "sequential", cfg.Workflow.Mode)
	assert.Equal(t, DefaultMaxRetries, cfg.Workflow.MaxRetries)
	assert.Equal(t, DefaultReportDir, cfg.Workflow.ReportDir)
	assert.Equal(t, DefaultMemoryDBPath, cfg.Memory.DBPath)

	p := cfg.Providers.Entries["main"]
	assert.Equal(t, int64(DefaultProviderTimeoutMs), p.TimeoutMs)
	assert.Equal(t, DefaultBreakerFailures, p.Breaker.FailureThreshold)
	assert.Equal(t, float64(DefaultRateLimitMaxTokens), p.RateLimit.MaxTokens)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_MODEL", "gpt-4o-mini")

	cfg, err := Parse([]byte(`
providers:
  active: main
  entries:
    main:
      type: openai
      model: ${TEST_MODEL}
`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers.Entries["main"].Model)
}

func TestParse_EnvExpansionDefault(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  active: main
  entries:
    main:
      type: openai
      model: ${UNSET_MODEL_VAR:-gpt-4o}
`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Providers.Entries["main"].Model)
}

func TestParse_ProviderOrderDeterministic(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  active: b
  order: [b]
  entries:
    c: {type: openai, model: m}
    a: {type: openai, model: m}
    b: {type: openai, model: m}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, cfg.Providers.Order)
}

func TestParse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider type", `
providers:
  active: main
  entries:
    main: {type: mystery, model: m}
`},
		{"missing model", `
providers:
  active: main
  entries:
    main: {type: openai}
`},
		{"local without endpoint", `
providers:
  active: main
  entries:
    main: {type: local, model: llama3}
`},
		{"active not configured", `
providers:
  active: missing
  entries:
    main: {type: openai, model: m}
`},
		{"bad workflow mode", `
workflow:
  mode: turbo
providers:
  active: main
  entries:
    main: {type: openai, model: m}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
