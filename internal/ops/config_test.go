package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
venue:
  base_url: https://fapi.binance.com
  api_key: file-key
  api_secret: file-secret
engines:
  - symbol: BTCUSDT
    tick_interval: 2s
    price_tick: 0.1
    price_tolerance: 0.05
    loss_limit: 50
    rate_limit:
      base_backoff: 10s
    strategy:
      offset_pct: 0.1
      levels: 2
      quantity: 0.01
metrics:
  addr: :9090
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Venue.APIKey)
	require.Len(t, cfg.Engines, 1)

	e := cfg.Engines[0]
	assert.Equal(t, "BTCUSDT", e.Symbol)
	assert.Equal(t, 2*time.Second, e.TickInterval)
	assert.Equal(t, 0.1, e.PriceTick)
	assert.Equal(t, 10*time.Second, e.RateLimit.BaseBackoff)
	assert.Equal(t, 2, e.Strategy.Levels)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.False(t, cfg.Journal.Enabled)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("VENUE_API_KEY", "env-key")
	t.Setenv("VENUE_API_SECRET", "env-secret")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Venue.APIKey)
	assert.Equal(t, "env-secret", cfg.Venue.APISecret)
}

func TestValidateRejectsMissingSymbol(t *testing.T) {
	_, err := Load(writeConfig(t, `
engines:
  - price_tick: 0.1
    loss_limit: 10
    strategy: {offset_pct: 0.1, levels: 1, quantity: 1}
`))
	require.Error(t, err)
}

func TestValidateRejectsDuplicateSymbols(t *testing.T) {
	_, err := Load(writeConfig(t, `
engines:
  - symbol: BTCUSDT
    price_tick: 0.1
    loss_limit: 10
    strategy: {offset_pct: 0.1, levels: 1, quantity: 1}
  - symbol: BTCUSDT
    price_tick: 0.1
    loss_limit: 10
    strategy: {offset_pct: 0.1, levels: 1, quantity: 1}
`))
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveTick(t *testing.T) {
	_, err := Load(writeConfig(t, `
engines:
  - symbol: BTCUSDT
    loss_limit: 10
    strategy: {offset_pct: 0.1, levels: 1, quantity: 1}
`))
	require.Error(t, err)
}
