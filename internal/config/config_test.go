package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	a := cfg.Arbitrage
	assert.Equal(t, []string{"BTC", "ETH", "USDT"}, a.BaseCurrencies)
	assert.Equal(t, "USDT", a.ReferenceCurrency)
	assert.InDelta(t, 0.00375, a.FeeRate(), 1e-12)
	assert.Equal(t, 0.2, a.MaxLiquidityFraction)
	assert.Equal(t, 2e-5, a.SearchTolerance)
	assert.Equal(t, 5*time.Second, a.OrderTimeout)
	assert.Equal(t, "bittrex", cfg.Exchange.Name)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
arbitrage:
  base_currencies: [BTC, USDT]
  max_liquidity_fraction: 0.5
  order_timeout: 30s
exchange:
  requests_per_second: 2
database:
  enabled: true
  host: db
  port: 5433
  user: trader
  password: secret
  dbname: arb
`)
	t.Setenv("EXCHANGE_API_KEY", "key-from-env")
	t.Setenv("ARBITRAGE_DRY_RUN", "true")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "USDT"}, cfg.Arbitrage.BaseCurrencies)
	assert.Equal(t, 0.5, cfg.Arbitrage.MaxLiquidityFraction)
	assert.Equal(t, 30*time.Second, cfg.Arbitrage.OrderTimeout)
	assert.True(t, cfg.Arbitrage.DryRun)
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, 2.0, cfg.Exchange.RequestsPerSecond)
	assert.Equal(t, "postgres://trader:secret@db:5433/arb", cfg.Database.DSN())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := writeConfig(t, "exchange:\n  name: bittrex\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXCHANGE_API_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("EXCHANGE_API_SECRET") })

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Exchange.APISecret)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"liquidity fraction": "arbitrage:\n  max_liquidity_fraction: 0\n",
		"tolerance":          "arbitrage:\n  search_tolerance: -1\n",
		"fee":                "arbitrage:\n  base_fee_rate: 0.9\n",
		"rate limit":         "exchange:\n  burst: 0\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
