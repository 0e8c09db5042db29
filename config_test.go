package aipostblog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("TEST_ZHIPU_KEY", "kid.ksecret")

	cfg, err := ap.ParseConfig([]byte(`
backends:
  zhipu:
    api_key: ${TEST_ZHIPU_KEY}
    timeout: 30s
    requests_per_second: 2
  openai:
    base_url: http://localhost:8080/v1
temperature: 0.3
period: daily
plans:
  free: 5000
store:
  driver: sqlite
  dsn: /tmp/aipost.db
`))
	require.NoError(t, err)

	assert.Equal(t, "kid.ksecret", cfg.Backends["zhipu"].APIKey)
	assert.Equal(t, 30*time.Second, cfg.Backends["zhipu"].Timeout)
	assert.InDelta(t, 2.0, cfg.Backends["zhipu"].RequestsPerSecond, 1e-9)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Backends["openai"].BaseURL)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-9)
	assert.Equal(t, ap.DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, ap.PeriodDaily, cfg.Period)
	assert.Equal(t, time.Hour, cfg.RolloverInterval)
	assert.Equal(t, "info", cfg.Log.Level)

	plans := cfg.PlanBudgets()
	assert.EqualValues(t, 5000, plans[ap.PlanFree].Tokens)
	assert.NotEmpty(t, plans[ap.PlanFree].Features)
	assert.EqualValues(t, 200000, plans[ap.PlanPro].Tokens)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := ap.ParseConfig([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, ap.DefaultTemperature, cfg.GenerationTemperature())
	assert.Equal(t, ap.PeriodMonthly, cfg.Period)
	assert.Equal(t, ap.StoreMemory, cfg.Store.Driver)
	assert.NotNil(t, cfg.Backends)
}

func TestConfigZeroTemperatureIsKept(t *testing.T) {
	cfg, err := ap.ParseConfig([]byte("temperature: 0"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Temperature)
	assert.Zero(t, *cfg.Temperature)
	assert.Zero(t, cfg.GenerationTemperature())

	assert.Zero(t, ap.ProviderRequest{Model: "m"}.WithDefaults().Temperature)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"temperature out of range", "temperature: 2.5"},
		{"negative max tokens", "max_tokens: -1"},
		{"unknown period", "period: weekly"},
		{"unknown tier", "plans:\n  gold: 10"},
		{"negative budget", "plans:\n  pro: -5"},
		{"negative timeout", "backends:\n  openai:\n    timeout: -1s"},
		{"negative rate", "backends:\n  openai:\n    requests_per_second: -1"},
		{"store without dsn", "store:\n  driver: postgres"},
		{"unknown store", "store:\n  driver: mongo\n  dsn: x"},
		{"negative rollover", "rollover_interval: -1m"},
		{"unknown fallback", "fallback: random"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ap.ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tokens: 512\n"), 0o600))

	cfg, err := ap.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.MaxTokens)

	_, err = ap.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
