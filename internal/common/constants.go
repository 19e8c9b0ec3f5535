// Package common holds environment variable keys, defaults, and shared
// error-message constants used across the engine's config and validation
// layers.
package common

// Environment variable keys.
const (
	EnvExchangeAPIKey    = "EXCHANGE_API_KEY"
	EnvExchangeSecretKey = "EXCHANGE_SECRET_KEY"
	EnvForceLiveTrading  = "FORCE_LIVE_TRADING"
	EnvSymbols           = "SYMBOLS"
	EnvBaseURL           = "BASE_URL"
	EnvWsURL             = "WS_URL"
	EnvDryRun            = "DRY_RUN"
	EnvMetricsPort       = "METRICS_PORT"
	EnvRESTTimeout       = "REST_TIMEOUT"
	EnvPingInterval      = "PING_INTERVAL"
	EnvDataPath          = "DATA_PATH"

	EnvLeverage   = "LEVERAGE"
	EnvMarginMode = "MARGIN_MODE"

	EnvMarginFractionPerTrade = "MARGIN_FRACTION_PER_TRADE"
	EnvMaxShrinkSteps         = "MAX_SHRINK_STEPS"
	EnvMaxStopPct             = "MAX_STOP_PCT"
	EnvMinAbsBufferPct        = "MIN_ABS_BUFFER_PCT"
	EnvMinFractionOfLiqDist   = "MIN_FRACTION_OF_LIQ_DISTANCE"

	EnvMaxSymbolsConcurrent = "MAX_SYMBOLS_CONCURRENT"
	EnvMaxPerSector         = "MAX_PER_SECTOR"
	EnvFundingBlackoutSecs  = "FUNDING_BLACKOUT_SECONDS"

	EnvScanInterval    = "SCAN_INTERVAL"
	EnvMonitorInterval = "MONITOR_INTERVAL"
	EnvSLVerifySeconds = "SL_VERIFY_SECONDS"

	EnvTPSLMaxAttempts  = "TP_SL_MAX_ATTEMPTS"
	EnvTPSLBackoffBase  = "TP_SL_BACKOFF_BASE"
	EnvMinProfitROE     = "MIN_PROFIT_ROE"
	EnvTrailingCallback = "TRAILING_CALLBACK_RATIO"

	EnvWorkerPoolSize = "WORKER_POOL_SIZE"
)

// Configuration defaults.
const (
	DefaultBaseURL     = "https://api.exchange.example/futures"
	DefaultWsURL       = "wss://fapi.exchange.example/public"
	DefaultMetricsPort = 8090

	DefaultLeverage   = 25
	DefaultMarginMode = "ISOLATION"

	DefaultMarginFractionPerTrade = 0.10
	DefaultMaxShrinkSteps         = 5
	DefaultMaxStopPct             = 0.028
	DefaultMinAbsBufferPct        = 0.012
	DefaultMinFractionOfLiqDist   = 0.30

	DefaultMaxSymbolsConcurrent = 3
	DefaultMaxPerSector         = 2
	DefaultFundingBlackoutSecs  = 120

	DefaultScanInterval    = 5
	DefaultMonitorInterval = 2
	DefaultSLVerifySeconds = 60

	DefaultTPSLMaxAttempts  = 5
	DefaultTPSLBackoffBase  = 2
	DefaultMinProfitROE     = 0.025
	DefaultTrailingCallback = 0.003

	DefaultWorkerPoolSize = 16

	DefaultRESTTimeout  = 5
	DefaultPingInterval = 15
)

// Common error messages.
const (
	ErrMsgAPIKeyRequired           = "exchange API key and secret are required"
	ErrMsgBaseURLRequired          = "baseURL is required"
	ErrMsgWsURLRequired            = "wsURL is required"
	ErrMsgSymbolRequired           = "at least one trading symbol is required"
	ErrMsgForceLiveTradingRequired = "live trading requires FORCE_LIVE_TRADING=true environment variable"
)

// Validation bounds.
const (
	MinMetricsPort = 1024
	MaxMetricsPort = 65535

	MaxMarginFractionPerTrade = 0.5
	MaxLeverage               = 125
)
