package cfg

import (
	"os"
	"testing"

	"perpengine/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		common.EnvExchangeAPIKey, common.EnvExchangeSecretKey, common.EnvForceLiveTrading,
		common.EnvSymbols, common.EnvBaseURL, common.EnvWsURL, common.EnvDryRun,
		common.EnvMetricsPort, common.EnvRESTTimeout, common.EnvPingInterval, common.EnvDataPath,
		common.EnvLeverage, common.EnvMarginMode, common.EnvMarginFractionPerTrade,
		common.EnvMaxShrinkSteps, common.EnvMaxStopPct, common.EnvMinAbsBufferPct,
		common.EnvMinFractionOfLiqDist, common.EnvMaxSymbolsConcurrent, common.EnvMaxPerSector,
		common.EnvFundingBlackoutSecs, common.EnvScanInterval, common.EnvMonitorInterval,
		common.EnvSLVerifySeconds, common.EnvTPSLMaxAttempts, common.EnvTPSLBackoffBase,
		common.EnvMinProfitROE, common.EnvTrailingCallback, common.EnvWorkerPoolSize,
		"CONFIG_FILE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnv_MissingCredentials(t *testing.T) {
	clearEnv(t)
	_, err := loadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_DefaultsApplied(t *testing.T) {
	clearEnv(t)
	os.Setenv(common.EnvExchangeAPIKey, "key")
	os.Setenv(common.EnvExchangeSecretKey, "secret")
	defer clearEnv(t)

	settings, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, common.DefaultLeverage, settings.Leverage)
	assert.Equal(t, common.DefaultMarginMode, settings.MarginMode)
	assert.InDelta(t, common.DefaultMarginFractionPerTrade, settings.MarginFractionPerTrade, 1e-9)
	assert.Equal(t, common.DefaultMaxShrinkSteps, settings.LiqGuards.MaxShrinkSteps)
	assert.Equal(t, common.DefaultMaxSymbolsConcurrent, settings.Concurrency.MaxSymbols)
	assert.Equal(t, common.DefaultMaxPerSector, settings.Concurrency.MaxPerSector)
	assert.True(t, settings.DryRun)
	assert.Equal(t, []string{"BTCUSDT"}, settings.Symbols)

	assert.InDelta(t, 6.0, settings.Universe.Major.MaxSpreadBps, 1e-9)
	assert.InDelta(t, 20.0, settings.Regime.Major.ADXRangeMax, 1e-9)
	assert.InDelta(t, 0.6, settings.Strategy.LSVR.SweepATRMult, 1e-9)
}

func TestLoadFromEnv_OverridesViaEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv(common.EnvExchangeAPIKey, "key")
	os.Setenv(common.EnvExchangeSecretKey, "secret")
	os.Setenv(common.EnvLeverage, "10")
	os.Setenv(common.EnvMarginFractionPerTrade, "0.2")
	os.Setenv(common.EnvSymbols, "BTCUSDT,ETHUSDT")
	defer clearEnv(t)

	settings, err := loadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10, settings.Leverage)
	assert.InDelta(t, 0.2, settings.MarginFractionPerTrade, 1e-9)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, settings.Symbols)
}

func TestLoadFromEnv_LiveTradingRequiresForceFlag(t *testing.T) {
	clearEnv(t)
	os.Setenv(common.EnvExchangeAPIKey, "key")
	os.Setenv(common.EnvExchangeSecretKey, "secret")
	os.Setenv(common.EnvDryRun, "false")
	defer clearEnv(t)

	_, err := loadFromEnv()
	require.Error(t, err)

	os.Setenv(common.EnvForceLiveTrading, "true")
	_, err = loadFromEnv()
	require.NoError(t, err)
}

func TestValidateSettings_RejectsInvalidLeverage(t *testing.T) {
	s := &Settings{
		Key: "k", Secret: "s", BaseURL: "u", WsURL: "w", Symbols: []string{"BTCUSDT"},
		DryRun: true, Leverage: 0, MarginFractionPerTrade: 0.1,
		LiqGuards:    defaultLiqGuards(),
		Concurrency:  defaultConcurrency(),
		ScanInterval: 1, MonitorInterval: 1, TPSLMaxAttempts: 1,
		MinProfitROE: 0.01, TrailingCallback: 0.01, MetricsPort: common.DefaultMetricsPort,
		WorkerPoolSize: 1,
	}
	require.Error(t, validateSettings(s))
}

func TestValidateSettings_RejectsSectorCapAboveSymbolCap(t *testing.T) {
	s := &Settings{
		Key: "k", Secret: "s", BaseURL: "u", WsURL: "w", Symbols: []string{"BTCUSDT"},
		DryRun: true, Leverage: 10, MarginFractionPerTrade: 0.1,
		LiqGuards:    defaultLiqGuards(),
		Concurrency:  Concurrency{MaxSymbols: 2, MaxPerSector: 5},
		ScanInterval: 1, MonitorInterval: 1, TPSLMaxAttempts: 1,
		MinProfitROE: 0.01, TrailingCallback: 0.01, MetricsPort: common.DefaultMetricsPort,
		WorkerPoolSize: 1,
	}
	require.Error(t, validateSettings(s))
}
