package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chain:
  name: gnosis
  router: "0xrouter"
market:
  market_id: "0xproposal"
  company:
    base: {address: "0xc0", symbol: GNO}
    yes:  {address: "0xc1", symbol: YES_GNO}
    no:   {address: "0xc2", symbol: NO_GNO}
swap:
  auto_split: true
  settling_delay_ms: -1
  strategies:
    - name: algebra
      kind: algebra
      router: "0xswapr"
trades:
  pools:
    - address: "0xpool"
      token0: "0xc1"
      token1: "0xd1"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ParsesAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "0xproposal", cfg.Market.MarketID)
	assert.Equal(t, "YES_GNO", cfg.Market.Company.Yes.Symbol)
	assert.Equal(t, "gnosis", cfg.Market.Chain)
	assert.True(t, cfg.Swap.AutoSplit)
	assert.Equal(t, "algebra", cfg.Swap.Strategies[0].DisplayName)
	assert.Equal(t, []string{"0xpool"}, cfg.PoolAddresses())

	assert.Equal(t, int64(100), cfg.Chain.ChainID)
	assert.Equal(t, 60*time.Second, cfg.SplitTimeout())
	assert.Negative(t, cfg.SettlingDelay())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, "futarchy.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FUTARCHY_RPC_URL", "http://localhost:8545")
	t.Setenv("FUTARCHY_SUBGRAPH_URL", "http://graph")
	t.Setenv("FUTARCHY_AUTO_SPLIT", "false")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, "http://graph", cfg.Trades.SubgraphURL)
	assert.False(t, cfg.Swap.AutoSplit)
}

func TestLoad_RejectsDuplicateStrategies(t *testing.T) {
	body := `
swap:
  strategies:
    - {name: a, kind: algebra, router: "0x1"}
    - {name: a, kind: algebra, router: "0x2"}
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
