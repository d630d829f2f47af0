package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/secrets"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"WALLET_ADDRESS", "PRIVATE_KEY", "SIMULATION_MODE", "COINBASE_API_KEY_NAME",
		"COINBASE_PRIVATE_KEY", "GCP_PROJECT_ID", "GCP_USE_SECRETS"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"), nullLogger())
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Trading.MinTradeSize.String())
	assert.Equal(t, "10", cfg.Trading.MaxTradeSize.String())
	assert.Equal(t, "0.003", cfg.Trading.FeeRate.String())
	assert.Equal(t, 90*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, 30*time.Second, cfg.Trading.ErrorBackoff)
	assert.Equal(t, 30*time.Second, cfg.Trading.BalanceCacheTTL)
	assert.Equal(t, "5.03", cfg.Trading.InitialBase.String())
	assert.Equal(t, "1.62", cfg.Trading.InitialQuote.String())
	assert.Equal(t, "GALA|Unit|none|none", cfg.Trading.BaseToken)
	assert.Equal(t, "GUSDC|Unit|none|none", cfg.Trading.QuoteToken)
	assert.Equal(t, 3, cfg.Trading.Retry.MaxAttempts)
	assert.Equal(t, "coingecko", cfg.PriceFeed.Source)
	assert.Equal(t, 10*time.Second, cfg.PriceFeed.Timeout)
	assert.Equal(t, "gala", cfg.PriceFeed.CoinGecko.CoinID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Trading.Enabled)
	assert.False(t, cfg.Trading.SimulationMode)
	assert.Empty(t, cfg.Wallet.Address)
	assert.Equal(t, secrets.DefaultSecretNames(), cfg.GCP.SecretNames)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  min_trade_size: 2
  max_trade_size: 20
  cycle_interval: 45s
pricefeed:
  source: coinbase
wallet:
  address: eth|fromfile
`)
	t.Setenv("WALLET_ADDRESS", "eth|fromenv")
	t.Setenv("PRIVATE_KEY", "0xkey")
	t.Setenv("SIMULATION_MODE", "true")
	t.Setenv("GSWAP_LOGGING_LEVEL", "debug")

	cfg, err := Load(path, nullLogger())
	require.NoError(t, err)

	assert.Equal(t, "2", cfg.Trading.MinTradeSize.String())
	assert.Equal(t, "20", cfg.Trading.MaxTradeSize.String())
	assert.Equal(t, 45*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, "coinbase", cfg.PriceFeed.Source)
	assert.Equal(t, "eth|fromenv", cfg.Wallet.Address)
	assert.Equal(t, "0xkey", cfg.Wallet.PrivateKey)
	assert.True(t, cfg.Trading.SimulationMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"max below min": "trading:\n  min_trade_size: 5\n  max_trade_size: 1\n",
		"zero min":      "trading:\n  min_trade_size: 0\n",
		"negative base": "trading:\n  initial_base: -1\n",
		"not a number":  "trading:\n  fee_rate: cheap\n",
		"fee rate":      "trading:\n  fee_rate: 1.5\n",
		"interval":      "trading:\n  cycle_interval: 0s\n",
		"feed source":   "pricefeed:\n  source: binance\n",
		"log format":    "logging:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), nullLogger())
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nullLogger())
	assert.Error(t, err)
}

type fakeResolver struct {
	gotNames secrets.SecretNames
	values   secrets.Credentials
}

func (f *fakeResolver) Resolve(_ context.Context, names secrets.SecretNames, fallback secrets.Credentials) secrets.Credentials {
	f.gotNames = names
	out := fallback
	if names.WalletAddress != "" {
		out.WalletAddress = f.values.WalletAddress
	}
	if names.PrivateKey != "" {
		out.PrivateKey = f.values.PrivateKey
	}
	return out
}

func TestApplySecretsOnlyFillsEmptyValues(t *testing.T) {
	cfg := &Config{
		Wallet: WalletConfig{Address: "eth|configured"},
		GCP:    GCPConfig{SecretNames: secrets.DefaultSecretNames()},
	}
	r := &fakeResolver{values: secrets.Credentials{WalletAddress: "eth|secret", PrivateKey: "0xsecret"}}

	applySecrets(context.Background(), cfg, r)

	assert.Empty(t, r.gotNames.WalletAddress)
	assert.Equal(t, "gswap-private-key", r.gotNames.PrivateKey)
	assert.Equal(t, "eth|configured", cfg.Wallet.Address)
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)
}

func TestLoadKeepsExactAmounts(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  min_trade_size: "0.1"
  max_trade_size: 0.3
  initial_quote: "1.000000000000000001"
`)
	t.Setenv("GSWAP_TRADING_FEE_RATE", "0.0025")

	cfg, err := Load(path, nullLogger())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.1").Equal(cfg.Trading.MinTradeSize))
	assert.True(t, decimal.RequireFromString("0.3").Equal(cfg.Trading.MaxTradeSize))
	assert.True(t, decimal.RequireFromString("0.0025").Equal(cfg.Trading.FeeRate))
	assert.Equal(t, "1.000000000000000001", cfg.Trading.InitialQuote.String())
}
