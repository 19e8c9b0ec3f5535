// Package cfg provides configuration management for the trading engine.
// It supports loading configuration from both YAML files and environment
// variables, with environment variables taking precedence over YAML
// settings, matching the precedence rules long used by the exchange
// connector this engine evolved from.
//
// Liquidation guards, concurrency caps, and the universe, regime and
// strategy thresholds come from YAML or the built-in defaults only: no
// environment variable overrides them, and the MAX_SHRINK_STEPS,
// MAX_STOP_PCT, MIN_ABS_BUFFER_PCT, MIN_FRACTION_OF_LIQ_DISTANCE,
// MAX_SYMBOLS_CONCURRENT and MAX_PER_SECTOR keys declared in
// internal/common are not read by either loader.
//
// The package validates every parameter and refuses to start rather than
// run with an invalid or missing threshold.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"perpengine/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BucketThresholds holds the universe-gate thresholds for one bucket.
type BucketThresholds struct {
	MaxSpreadBps   float64 `yaml:"maxSpreadBps"`
	MinTOBDepthUSD float64 `yaml:"minTobDepthUsd"`
	Min24hVolUSD   float64 `yaml:"min24hVolUsd"`
}

// UniverseConfig holds per-bucket universe-gate thresholds.
type UniverseConfig struct {
	Major BucketThresholds `yaml:"major"`
	Mid   BucketThresholds `yaml:"mid"`
	Micro BucketThresholds `yaml:"micro"`
}

// RegimeThresholds holds the regime-classifier thresholds for one bucket.
type RegimeThresholds struct {
	ADXRangeMax float64 `yaml:"adxRangeMax"`
	BBPctMax    float64 `yaml:"bbPctMax"`
}

// RegimeConfig holds per-bucket regime-classifier thresholds.
type RegimeConfig struct {
	Major RegimeThresholds `yaml:"major"`
	Mid   RegimeThresholds `yaml:"mid"`
	Micro RegimeThresholds `yaml:"micro"`
}

// LSVRConfig holds the LSVR strategy's tunable thresholds.
type LSVRConfig struct {
	SweepATRMult          float64       `yaml:"sweepAtrMult"`
	StopATRMultMin        float64       `yaml:"stopAtrMultMin"`
	StopATRMultMax        float64       `yaml:"stopAtrMultMax"`
	TimeStopMin           time.Duration `yaml:"timeStopMin"`
	TimeStopMax           time.Duration `yaml:"timeStopMax"`
	VolumeSpikeMult       float64       `yaml:"volumeSpikeMult"`
	TailBodyRatioMin      float64       `yaml:"tailBodyRatioMin"`
	ReSweepBarsWindow     int           `yaml:"reSweepBarsWindow"`
	RSIDivergenceLongMin  float64       `yaml:"rsiDivergenceLongMin"`
	RSIDivergenceShortMax float64       `yaml:"rsiDivergenceShortMax"`
}

// VWAPMRConfig holds the VWAP mean-reversion strategy's thresholds.
type VWAPMRConfig struct {
	StochRSIBandLow  float64       `yaml:"stochRsiBandLow"`
	StochRSIBandHigh float64       `yaml:"stochRsiBandHigh"`
	RSILongMin       float64       `yaml:"rsiLongMin"`
	RSIShortMax      float64       `yaml:"rsiShortMax"`
	VolumeMaxMult    float64       `yaml:"volumeMaxMult"`
	StopATRMultMin   float64       `yaml:"stopAtrMultMin"`
	StopATRMultMax   float64       `yaml:"stopAtrMultMax"`
	TimeStopMin      time.Duration `yaml:"timeStopMin"`
	TimeStopMax      time.Duration `yaml:"timeStopMax"`
	TripwireATRMult  float64       `yaml:"tripwireAtrMult"`
}

// TrendConfig holds the Trend-Fallback strategy's thresholds.
type TrendConfig struct {
	TP1ATRMult     float64 `yaml:"tp1AtrMult"`
	SwingATRMult   float64 `yaml:"swingAtrMult"`
	EMATrendPeriod int     `yaml:"emaTrendPeriod"`
	EMAFastPeriod  int     `yaml:"emaFastPeriod"`
	EMASlowPeriod  int     `yaml:"emaSlowPeriod"`
}

// StrategyConfig groups the per-strategy tunables.
type StrategyConfig struct {
	LSVR   LSVRConfig   `yaml:"lsvr"`
	VWAPMR VWAPMRConfig `yaml:"vwap_mr"`
	Trend  TrendConfig  `yaml:"trend"`
}

// LiqGuards holds the liquidation-buffer guard thresholds.
type LiqGuards struct {
	MaxStopPct               float64 `yaml:"maxStopPct"`
	MinAbsBufferPct          float64 `yaml:"minAbsBufferPct"`
	MinFractionOfLiqDistance float64 `yaml:"minFractionOfLiqDistance"`
	MaxShrinkSteps           int     `yaml:"maxShrinkSteps"`
}

// Concurrency holds the concurrency-coordinator caps.
type Concurrency struct {
	MaxSymbols   int `yaml:"maxSymbols"`
	MaxPerSector int `yaml:"maxPerSector"`
}

// Settings contains all configuration parameters for the trading engine.
type Settings struct {
	// Exchange credentials and transport.
	Key     string
	Secret  string
	BaseURL string
	WsURL   string
	Ping    time.Duration

	// Universe.
	Symbols []string
	DryRun  bool

	// Sizing / risk.
	Leverage               int
	MarginMode             string
	MarginFractionPerTrade float64
	LiqGuards              LiqGuards

	// Concurrency coordinator.
	Concurrency            Concurrency
	FundingBlackoutSeconds int
	ScanInterval           time.Duration
	MonitorInterval        time.Duration
	SLVerifySeconds        time.Duration

	// TP/SL placement.
	TPSLMaxAttempts  int
	TPSLBackoffBase  time.Duration
	MinProfitROE     float64
	TrailingCallback float64

	// Strategy thresholds.
	Universe UniverseConfig
	Regime   RegimeConfig
	Strategy StrategyConfig

	// System.
	MetricsPort    int
	RESTTimeout    time.Duration
	DataPath       string
	WorkerPoolSize int
}

// ConfigFile mirrors the YAML on-disk shape.
type ConfigFile struct {
	API struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	Trading struct {
		Symbols    []string `yaml:"symbols"`
		DryRun     bool     `yaml:"dryRun"`
		Leverage   int      `yaml:"leverage"`
		MarginMode string   `yaml:"marginMode"`
	} `yaml:"trading"`

	MarginFractionPerTrade float64     `yaml:"marginFractionPerTrade"`
	LiqGuards              LiqGuards   `yaml:"liqGuards"`
	Concurrency            Concurrency `yaml:"concurrency"`
	FundingBlackoutSeconds int         `yaml:"fundingBlackoutSeconds"`

	ScanIntervalSeconds    int `yaml:"scanIntervalSeconds"`
	MonitorIntervalSeconds int `yaml:"monitorIntervalSeconds"`
	SLVerifySeconds        int `yaml:"slVerifySeconds"`

	TPSLMaxAttempts       int     `yaml:"tpSlMaxAttempts"`
	TPSLBackoffBaseSecond int     `yaml:"tpSlBackoffBaseSeconds"`
	MinProfitROE          float64 `yaml:"minProfitRoe"`
	TrailingCallbackRatio float64 `yaml:"trailingCallbackRatio"`

	Universe UniverseConfig `yaml:"universe"`
	Regime   RegimeConfig   `yaml:"regime"`
	Strategy StrategyConfig `yaml:"strategy"`

	System struct {
		DataPath       string `yaml:"dataPath"`
		PingInterval   string `yaml:"pingInterval"`
		MetricsPort    int    `yaml:"metricsPort"`
		RESTTimeout    string `yaml:"restTimeout"`
		WorkerPoolSize int    `yaml:"workerPoolSize"`
	} `yaml:"system"`
}

// Load loads configuration from either a YAML file or environment variables.
// It first checks for a CONFIG_FILE environment variable to load from YAML,
// otherwise falls back to loading from environment variables. Returns a
// validated Settings struct or a fatal_config error.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ping := getDurationOrDefault(common.EnvPingInterval, parseDurationOrDefault(config.System.PingInterval, common.DefaultPingInterval*time.Second))
	restTimeout := getDurationOrDefault(common.EnvRESTTimeout, parseDurationOrDefault(config.System.RESTTimeout, common.DefaultRESTTimeout*time.Second))

	key := getEnvOrDefault(common.EnvExchangeAPIKey, config.API.Key)
	secret := getEnvOrDefault(common.EnvExchangeSecretKey, config.API.Secret)
	if key == "" || secret == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}

	settings := Settings{
		Key:                    key,
		Secret:                 secret,
		BaseURL:                getEnvOrDefault(common.EnvBaseURL, orDefault(config.API.BaseURL, common.DefaultBaseURL)),
		WsURL:                  getEnvOrDefault(common.EnvWsURL, orDefault(config.API.WsURL, common.DefaultWsURL)),
		Ping:                   ping,
		Symbols:                getSymbolsFromEnvOrConfig(config.Trading.Symbols),
		DryRun:                 getBoolFromEnvOrConfig(common.EnvDryRun, config.Trading.DryRun),
		Leverage:               getIntFromEnvOrConfig(common.EnvLeverage, orDefaultInt(config.Trading.Leverage, common.DefaultLeverage)),
		MarginMode:             getEnvOrDefault(common.EnvMarginMode, orDefault(config.Trading.MarginMode, common.DefaultMarginMode)),
		MarginFractionPerTrade: getFloatFromEnvOrConfig(common.EnvMarginFractionPerTrade, orDefaultFloat(config.MarginFractionPerTrade, common.DefaultMarginFractionPerTrade)),
		LiqGuards:              resolveLiqGuards(config.LiqGuards),
		Concurrency:            resolveConcurrency(config.Concurrency),
		FundingBlackoutSeconds: getIntFromEnvOrConfig(common.EnvFundingBlackoutSecs, orDefaultInt(config.FundingBlackoutSeconds, common.DefaultFundingBlackoutSecs)),
		ScanInterval:           getDurationSecondsOrDefault(common.EnvScanInterval, orDefaultInt(config.ScanIntervalSeconds, common.DefaultScanInterval)),
		MonitorInterval:        getDurationSecondsOrDefault(common.EnvMonitorInterval, orDefaultInt(config.MonitorIntervalSeconds, common.DefaultMonitorInterval)),
		SLVerifySeconds:        getDurationSecondsOrDefault(common.EnvSLVerifySeconds, orDefaultInt(config.SLVerifySeconds, common.DefaultSLVerifySeconds)),
		TPSLMaxAttempts:        getIntFromEnvOrConfig(common.EnvTPSLMaxAttempts, orDefaultInt(config.TPSLMaxAttempts, common.DefaultTPSLMaxAttempts)),
		TPSLBackoffBase:        getDurationSecondsOrDefault(common.EnvTPSLBackoffBase, orDefaultInt(config.TPSLBackoffBaseSecond, common.DefaultTPSLBackoffBase)),
		MinProfitROE:           getFloatFromEnvOrConfig(common.EnvMinProfitROE, orDefaultFloat(config.MinProfitROE, common.DefaultMinProfitROE)),
		TrailingCallback:       getFloatFromEnvOrConfig(common.EnvTrailingCallback, orDefaultFloat(config.TrailingCallbackRatio, common.DefaultTrailingCallback)),
		Universe:               resolveUniverse(config.Universe),
		Regime:                 resolveRegime(config.Regime),
		Strategy:               resolveStrategy(config.Strategy),
		MetricsPort:            getIntFromEnvOrConfig(common.EnvMetricsPort, orDefaultInt(config.System.MetricsPort, common.DefaultMetricsPort)),
		RESTTimeout:            restTimeout,
		DataPath:               getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		WorkerPoolSize:         getIntFromEnvOrConfig(common.EnvWorkerPoolSize, orDefaultInt(config.System.WorkerPoolSize, common.DefaultWorkerPoolSize)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired(common.EnvExchangeAPIKey)
	if err != nil {
		return Settings{}, err
	}
	secret, err := getEnvRequired(common.EnvExchangeSecretKey)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		Key:                    key,
		Secret:                 secret,
		BaseURL:                getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		WsURL:                  getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),
		Ping:                   getDurationOrDefault(common.EnvPingInterval, common.DefaultPingInterval*time.Second),
		Symbols:                splitOrDefault(os.Getenv(common.EnvSymbols), []string{"BTCUSDT"}),
		DryRun:                 getBoolOrDefault(common.EnvDryRun, true),
		Leverage:               getIntOrDefault(common.EnvLeverage, common.DefaultLeverage),
		MarginMode:             getEnvOrDefault(common.EnvMarginMode, common.DefaultMarginMode),
		MarginFractionPerTrade: getFloatOrDefault(common.EnvMarginFractionPerTrade, common.DefaultMarginFractionPerTrade),
		LiqGuards:              defaultLiqGuards(),
		Concurrency:            defaultConcurrency(),
		FundingBlackoutSeconds: getIntOrDefault(common.EnvFundingBlackoutSecs, common.DefaultFundingBlackoutSecs),
		ScanInterval:           getDurationSecondsOrDefault(common.EnvScanInterval, common.DefaultScanInterval),
		MonitorInterval:        getDurationSecondsOrDefault(common.EnvMonitorInterval, common.DefaultMonitorInterval),
		SLVerifySeconds:        getDurationSecondsOrDefault(common.EnvSLVerifySeconds, common.DefaultSLVerifySeconds),
		TPSLMaxAttempts:        getIntOrDefault(common.EnvTPSLMaxAttempts, common.DefaultTPSLMaxAttempts),
		TPSLBackoffBase:        getDurationSecondsOrDefault(common.EnvTPSLBackoffBase, common.DefaultTPSLBackoffBase),
		MinProfitROE:           getFloatOrDefault(common.EnvMinProfitROE, common.DefaultMinProfitROE),
		TrailingCallback:       getFloatOrDefault(common.EnvTrailingCallback, common.DefaultTrailingCallback),
		Universe:               defaultUniverse(),
		Regime:                 defaultRegime(),
		Strategy:               defaultStrategy(),
		MetricsPort:            getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		RESTTimeout:            getDurationOrDefault(common.EnvRESTTimeout, common.DefaultRESTTimeout*time.Second),
		DataPath:               os.Getenv(common.EnvDataPath),
		WorkerPoolSize:         getIntOrDefault(common.EnvWorkerPoolSize, common.DefaultWorkerPoolSize),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func defaultLiqGuards() LiqGuards {
	return LiqGuards{
		MaxStopPct:               common.DefaultMaxStopPct,
		MinAbsBufferPct:          common.DefaultMinAbsBufferPct,
		MinFractionOfLiqDistance: common.DefaultMinFractionOfLiqDist,
		MaxShrinkSteps:           common.DefaultMaxShrinkSteps,
	}
}

func resolveLiqGuards(c LiqGuards) LiqGuards {
	d := defaultLiqGuards()
	if c.MaxStopPct != 0 {
		d.MaxStopPct = c.MaxStopPct
	}
	if c.MinAbsBufferPct != 0 {
		d.MinAbsBufferPct = c.MinAbsBufferPct
	}
	if c.MinFractionOfLiqDistance != 0 {
		d.MinFractionOfLiqDistance = c.MinFractionOfLiqDistance
	}
	if c.MaxShrinkSteps != 0 {
		d.MaxShrinkSteps = c.MaxShrinkSteps
	}
	return d
}

func defaultConcurrency() Concurrency {
	return Concurrency{MaxSymbols: common.DefaultMaxSymbolsConcurrent, MaxPerSector: common.DefaultMaxPerSector}
}

func resolveConcurrency(c Concurrency) Concurrency {
	d := defaultConcurrency()
	if c.MaxSymbols != 0 {
		d.MaxSymbols = c.MaxSymbols
	}
	if c.MaxPerSector != 0 {
		d.MaxPerSector = c.MaxPerSector
	}
	return d
}

// defaultUniverse carries the per-bucket universe-gate thresholds.
func defaultUniverse() UniverseConfig {
	return UniverseConfig{
		Major: BucketThresholds{MaxSpreadBps: 6, MinTOBDepthUSD: 100_000, Min24hVolUSD: 80_000_000},
		Mid:   BucketThresholds{MaxSpreadBps: 8, MinTOBDepthUSD: 50_000, Min24hVolUSD: 80_000_000},
		Micro: BucketThresholds{MaxSpreadBps: 12, MinTOBDepthUSD: 20_000, Min24hVolUSD: 120_000_000},
	}
}

func resolveUniverse(c UniverseConfig) UniverseConfig {
	d := defaultUniverse()
	if c.Major != (BucketThresholds{}) {
		d.Major = c.Major
	}
	if c.Mid != (BucketThresholds{}) {
		d.Mid = c.Mid
	}
	if c.Micro != (BucketThresholds{}) {
		d.Micro = c.Micro
	}
	return d
}

// defaultRegime carries the per-bucket regime-classifier thresholds.
func defaultRegime() RegimeConfig {
	return RegimeConfig{
		Major: RegimeThresholds{ADXRangeMax: 20, BBPctMax: 40},
		Mid:   RegimeThresholds{ADXRangeMax: 22, BBPctMax: 50},
		Micro: RegimeThresholds{ADXRangeMax: 25, BBPctMax: 60},
	}
}

func resolveRegime(c RegimeConfig) RegimeConfig {
	d := defaultRegime()
	if c.Major != (RegimeThresholds{}) {
		d.Major = c.Major
	}
	if c.Mid != (RegimeThresholds{}) {
		d.Mid = c.Mid
	}
	if c.Micro != (RegimeThresholds{}) {
		d.Micro = c.Micro
	}
	return d
}

func defaultStrategy() StrategyConfig {
	return StrategyConfig{
		LSVR: LSVRConfig{
			SweepATRMult:          0.6,
			StopATRMultMin:        1.2,
			StopATRMultMax:        1.5,
			TimeStopMin:           15 * time.Minute,
			TimeStopMax:           25 * time.Minute,
			VolumeSpikeMult:       3.0,
			TailBodyRatioMin:      0.6,
			ReSweepBarsWindow:     3,
			RSIDivergenceLongMin:  25,
			RSIDivergenceShortMax: 75,
		},
		VWAPMR: VWAPMRConfig{
			StochRSIBandLow:  0.20,
			StochRSIBandHigh: 0.80,
			RSILongMin:       42,
			RSIShortMax:      58,
			VolumeMaxMult:    1.8,
			StopATRMultMin:   1.2,
			StopATRMultMax:   1.55,
			TimeStopMin:      20 * time.Minute,
			TimeStopMax:      30 * time.Minute,
			TripwireATRMult:  1.7,
		},
		Trend: TrendConfig{
			TP1ATRMult:     1.2,
			SwingATRMult:   1.5,
			EMATrendPeriod: 200,
			EMAFastPeriod:  9,
			EMASlowPeriod:  21,
		},
	}
}

func resolveStrategy(c StrategyConfig) StrategyConfig {
	d := defaultStrategy()
	if c.LSVR != (LSVRConfig{}) {
		d.LSVR = c.LSVR
	}
	if c.VWAPMR != (VWAPMRConfig{}) {
		d.VWAPMR = c.VWAPMR
	}
	if c.Trend != (TrendConfig{}) {
		d.Trend = c.Trend
	}
	return d
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getDurationSecondsOrDefault(key string, defaultSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getSymbolsFromEnvOrConfig(configSymbols []string) []string {
	if env := os.Getenv(common.EnvSymbols); env != "" {
		return strings.Split(env, ",")
	}
	if len(configSymbols) > 0 {
		return configSymbols
	}
	return []string{"BTCUSDT"}
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration
// values, refusing to start on anything invalid.
func validateSettings(s *Settings) error {
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if s.WsURL == "" {
		return fmt.Errorf(common.ErrMsgWsURLRequired)
	}
	if len(s.Symbols) == 0 {
		return fmt.Errorf(common.ErrMsgSymbolRequired)
	}
	if !s.DryRun && os.Getenv(common.EnvForceLiveTrading) != "true" {
		return fmt.Errorf(common.ErrMsgForceLiveTradingRequired)
	}
	if s.Leverage <= 0 || s.Leverage > common.MaxLeverage {
		return fmt.Errorf("leverage must be between 1 and %d", common.MaxLeverage)
	}
	if s.MarginFractionPerTrade <= 0 || s.MarginFractionPerTrade > common.MaxMarginFractionPerTrade {
		return fmt.Errorf("marginFractionPerTrade must be between 0 and %g", common.MaxMarginFractionPerTrade)
	}
	if s.LiqGuards.MaxStopPct <= 0 || s.LiqGuards.MaxStopPct >= 1 {
		return fmt.Errorf("liqGuards.maxStopPct must be between 0 and 1")
	}
	if s.LiqGuards.MinAbsBufferPct <= 0 {
		return fmt.Errorf("liqGuards.minAbsBufferPct must be positive")
	}
	if s.LiqGuards.MinFractionOfLiqDistance <= 0 || s.LiqGuards.MinFractionOfLiqDistance > 1 {
		return fmt.Errorf("liqGuards.minFractionOfLiqDistance must be between 0 and 1")
	}
	if s.LiqGuards.MaxShrinkSteps <= 0 {
		return fmt.Errorf("liqGuards.maxShrinkSteps must be positive")
	}
	if s.Concurrency.MaxSymbols <= 0 {
		return fmt.Errorf("concurrency.maxSymbols must be positive")
	}
	if s.Concurrency.MaxPerSector <= 0 || s.Concurrency.MaxPerSector > s.Concurrency.MaxSymbols {
		return fmt.Errorf("concurrency.maxPerSector must be positive and <= maxSymbols")
	}
	if s.FundingBlackoutSeconds < 0 {
		return fmt.Errorf("fundingBlackoutSeconds must be non-negative")
	}
	if s.ScanInterval <= 0 || s.MonitorInterval <= 0 {
		return fmt.Errorf("scanInterval and monitorInterval must be positive")
	}
	if s.TPSLMaxAttempts <= 0 {
		return fmt.Errorf("tpSlMaxAttempts must be positive")
	}
	if s.MinProfitROE <= 0 {
		return fmt.Errorf("minProfitRoe must be positive")
	}
	if s.TrailingCallback <= 0 || s.TrailingCallback >= 1 {
		return fmt.Errorf("trailingCallbackRatio must be between 0 and 1")
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.WorkerPoolSize <= 0 {
		return fmt.Errorf("workerPoolSize must be positive")
	}
	return nil
}
