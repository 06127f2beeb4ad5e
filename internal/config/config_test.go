package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRebalanceConfig(t *testing.T) {
	cfg := DefaultRebalanceConfig()

	assert.Equal(t, 5.0, cfg.ClassDriftThresholdPct)
	assert.Equal(t, 5.0, cfg.InstrumentDriftThresholdPct)
	assert.Equal(t, 0.01, cfg.SellHaircut)
	assert.Equal(t, 0.01, cfg.BuyMarkup)
	assert.Equal(t, 0.50, cfg.AnomalyMaxEquityFraction)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.FillTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.BuyOrderDelay)
	assert.True(t, cfg.HaltBuysOnSellFailure)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BALLAST_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, DefaultRebalanceConfig(), cfg.Rebalance)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BALLAST_DATA_DIR", t.TempDir())
	t.Setenv("BALLAST_PORT", "9000")
	t.Setenv("REBALANCE_CLASS_DRIFT_PCT", "2.5")
	t.Setenv("REBALANCE_FILL_TIMEOUT", "90s")
	t.Setenv("REBALANCE_HALT_BUYS_ON_SELL_FAILURE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 2.5, cfg.Rebalance.ClassDriftThresholdPct)
	assert.Equal(t, 90*time.Second, cfg.Rebalance.FillTimeout)
	assert.False(t, cfg.Rebalance.HaltBuysOnSellFailure)
}

func TestValidate(t *testing.T) {
	valid := &Config{Rebalance: DefaultRebalanceConfig()}
	assert.NoError(t, valid.Validate())

	bad := &Config{Rebalance: DefaultRebalanceConfig()}
	bad.Rebalance.SellHaircut = 1.5
	assert.Error(t, bad.Validate())

	bad = &Config{Rebalance: DefaultRebalanceConfig()}
	bad.Rebalance.AnomalyMaxEquityFraction = 0
	assert.Error(t, bad.Validate())

	bad = &Config{Rebalance: DefaultRebalanceConfig()}
	bad.Rebalance.FillTimeout = 0
	assert.Error(t, bad.Validate())
}
