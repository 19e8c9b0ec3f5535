// Package coordinator implements the concurrency coordinator: the scan
// and monitor tick-driven loops, a bounded per-symbol worker pool,
// concurrency/sector caps, funding-window blackouts, cold-start recovery
// gating, and cooperative shutdown.
//
// The coordinator is the only component that drives the scan pipeline
// (universe gate -> regime -> strategy -> risk -> lifecycle.Open) and the
// monitor pipeline (market data -> lifecycle.MonitorOne); it never talks to
// the exchange for order or conditional-order operations itself — those go
// exclusively through internal/router via internal/lifecycle.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"perpengine/internal/cfg"
	"perpengine/internal/exchange/bitunix"
	"perpengine/internal/indicators"
	"perpengine/internal/lifecycle"
	"perpengine/internal/metrics"
	"perpengine/internal/model"
	"perpengine/internal/regime"
	"perpengine/internal/risk"
	"perpengine/internal/strategy"
	"perpengine/internal/universe"
)

// Exchange is the subset of the exchange client the coordinator drives
// directly: market data and account/metadata reads. Order and
// conditional-order operations are off-limits here by construction — they
// live behind internal/router.
type Exchange interface {
	FetchTicker(symbol string) (model.Quote, error)
	FetchDepth(symbol string) (model.DepthSnapshot, error)
	FetchCandles(symbol string, interval bitunix.KlineInterval, limit int) ([]model.Candle, error)
	SymbolMeta(symbol string) (model.SymbolMeta, error)
	FetchEquity() (float64, error)
	FetchNextFundingTime(symbol string) (time.Time, error)
	FetchPositions() ([]bitunix.PositionInfo, error)
	ListConditional(symbol string) ([]bitunix.ConditionalInfo, error)
}

const (
	entryTimeframe    = bitunix.Interval5m
	tripwireTimeframe = bitunix.Interval1m
	candleLookback    = 210 // >=200 for the trend EMA plus the BB-width percentile's 100-bar lookback
	tripwireLookback  = 5
)

// Coordinator owns the scan and monitor schedulers.
type Coordinator struct {
	cfg        cfg.Settings
	exchange   Exchange
	gate       *universe.Gate
	pipeline   *strategy.Pipeline
	riskEngine *risk.Engine
	lifecycle  *lifecycle.Manager
	asia       indicators.AsiaSessionWindow
	metrics    *metrics.MetricsWrapper

	sem chan struct{} // bounded worker pool

	metaMu    sync.RWMutex
	metaCache map[string]model.SymbolMeta

	fundingMu    sync.RWMutex
	fundingCache map[string]time.Time

	coldStartMu sync.Mutex
	coldStart   bool
}

// New constructs a Coordinator. The static universe to scan is passed to
// Run; the per-symbol bucket/sector gating happens inside the universe gate
// and lifecycle's concurrency caps. m may be nil, in which case metrics
// recording is skipped.
func New(settings cfg.Settings, exchange Exchange, gate *universe.Gate, pipeline *strategy.Pipeline, riskEngine *risk.Engine, lifecycleMgr *lifecycle.Manager, asia indicators.AsiaSessionWindow, m *metrics.MetricsWrapper) *Coordinator {
	poolSize := settings.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Coordinator{
		cfg:          settings,
		exchange:     exchange,
		gate:         gate,
		pipeline:     pipeline,
		riskEngine:   riskEngine,
		lifecycle:    lifecycleMgr,
		asia:         asia,
		metrics:      m,
		sem:          make(chan struct{}, poolSize),
		metaCache:    make(map[string]model.SymbolMeta),
		fundingCache: make(map[string]time.Time),
		coldStart:    true,
	}
}

// Recover enumerates open positions from the exchange and reconstructs
// lifecycle state for each. It must run, and complete, before Run's first
// scan tick.
func (c *Coordinator) Recover() error {
	positions, err := c.exchange.FetchPositions()
	if err != nil {
		return fmt.Errorf("transient_io: recovery fetch_positions failed: %w", err)
	}
	snaps := make([]lifecycle.PositionSnapshot, len(positions))
	for i, p := range positions {
		snaps[i] = lifecycle.PositionSnapshot{
			Symbol: p.Symbol, Side: p.Side, Contracts: p.ActualFilledContracts,
			EntryPrice: p.EntryPrice, LiqPrice: p.LiqPrice,
		}
	}
	listConditional := func(symbol string) ([]lifecycle.ConditionalSnapshot, error) {
		infos, err := c.exchange.ListConditional(symbol)
		if err != nil {
			return nil, err
		}
		out := make([]lifecycle.ConditionalSnapshot, len(infos))
		for i, info := range infos {
			out[i] = lifecycle.ConditionalSnapshot{ExchangeID: info.ExchangeID, Kind: info.Kind, TriggerPrice: info.TriggerPrice}
		}
		return out, nil
	}
	return c.lifecycle.Recover(snaps, c.symbolMeta, listConditional)
}

// Run drives the scan and monitor loops until ctx is cancelled. On
// shutdown, scan stops immediately; monitor finishes its in-flight tick
// (started before cancellation) and then stops.
func (c *Coordinator) Run(ctx context.Context, symbols []string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.runScanLoop(ctx, symbols)
	}()
	go func() {
		defer wg.Done()
		c.runMonitorLoop(ctx)
	}()
	wg.Wait()
}

func (c *Coordinator) runScanLoop(ctx context.Context, symbols []string) {
	interval := c.cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Cold start: run one full scan before the first entry is allowed.
	// scanOnce itself still runs the gate/regime/strategy pipeline during
	// this pass; only order submission is suppressed.
	c.timedScanOnce(ctx, symbols)
	c.coldStartMu.Lock()
	c.coldStart = false
	c.coldStartMu.Unlock()
	log.Info().Msg("cold-start scan complete, entries now permitted")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scan loop stopped")
			return
		case <-ticker.C:
			c.timedScanOnce(ctx, symbols)
		}
	}
}

func (c *Coordinator) timedScanOnce(ctx context.Context, symbols []string) {
	start := time.Now()
	c.scanOnce(ctx, symbols)
	if c.metrics != nil {
		c.metrics.ScanLoopDuration().Observe(time.Since(start).Seconds())
	}
}

func (c *Coordinator) runMonitorLoop(ctx context.Context) {
	interval := c.cfg.MonitorInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor loop stopping after shutdown signal")
			return
		case <-ticker.C:
			start := time.Now()
			c.monitorOnce(ctx)
			if c.metrics != nil {
				c.metrics.MonitorLoopDuration().Observe(time.Since(start).Seconds())
			}
		}
	}
}

func (c *Coordinator) isColdStart() bool {
	c.coldStartMu.Lock()
	defer c.coldStartMu.Unlock()
	return c.coldStart
}

// scanOnce fans symbols out over the bounded worker pool; each symbol's
// evaluation is independent CPU+I/O work with no shared mutation.
func (c *Coordinator) scanOnce(ctx context.Context, symbols []string) {
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case c.sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-c.sem }()
			c.scanSymbol(symbol)
		}(symbol)
	}
	wg.Wait()
}

func (c *Coordinator) scanSymbol(symbol string) {
	if c.lifecycle.HasPosition(symbol) {
		return // duplicate signal for a symbol with an open position, dropped
	}

	meta, err := c.symbolMeta(symbol)
	if err != nil {
		log.Error().Str("symbol", symbol).Err(err).Msg("fatal_config: symbol metadata unavailable, skipping symbol")
		return
	}

	quote, err := c.exchange.FetchTicker(symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("transient_io: ticker fetch failed")
		return
	}
	depth, err := c.exchange.FetchDepth(symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("transient_io: depth fetch failed")
		return
	}
	if ok, reason := c.gate.EnterAllowed(meta, quote, depth); !ok {
		log.Debug().Str("symbol", symbol).Str("reason", string(reason)).Msg("universe gate rejected symbol")
		return
	}

	candles, err := c.exchange.FetchCandles(symbol, entryTimeframe, candleLookback)
	if err != nil || len(candles) == 0 {
		log.Warn().Str("symbol", symbol).Err(err).Msg("transient_io: candle fetch failed")
		return
	}
	snap := indicators.Compute(symbol, string(entryTimeframe), candles, c.asia)
	reg := regime.Classify(snap, meta.Bucket, c.cfg.Regime)

	signal, ok := c.pipeline.Evaluate(candles, snap, meta, reg)
	if !ok {
		return
	}

	if c.isColdStart() {
		log.Debug().Str("symbol", symbol).Msg("cold-start scan in progress, signal discarded")
		return
	}

	if c.inFundingBlackout(symbol) {
		log.Info().Str("symbol", symbol).Msg("funding_blackout: signal dropped")
		return
	}

	if allowed, reason := c.lifecycle.CanOpen(meta); !allowed {
		log.Debug().Str("symbol", symbol).Str("reason", reason).Msg("concurrency cap reached, signal dropped")
		return
	}

	// Re-evaluate the universe gate immediately before entry.
	if quote2, err := c.exchange.FetchTicker(symbol); err == nil {
		if ok, reason := c.gate.EnterAllowed(meta, quote2, depth); !ok {
			log.Debug().Str("symbol", symbol).Str("reason", string(reason)).Msg("universe gate rejected symbol immediately before entry")
			return
		}
	}

	equity, err := c.exchange.FetchEquity()
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("transient_io: equity fetch failed, skipping entry")
		return
	}

	decision := c.riskEngine.SizeTrade(*signal, equity, meta)
	if !decision.PassesGuards {
		if c.metrics != nil {
			c.metrics.GuardRejectionsTotal().Inc()
		}
		log.Info().Str("symbol", symbol).Str("reason", decision.ReasonIfFailed).Msg("liquidation_guard_failed: signal discarded")
		return
	}

	if c.cfg.DryRun {
		log.Info().Str("symbol", symbol).Str("side", string(signal.Side)).
			Float64("contracts", decision.Contracts).Float64("entry", decision.EntryPriceReference).
			Float64("stop", decision.StopPrice).Msg("dry-run: entry suppressed")
		return
	}

	if err := c.lifecycle.Open(decision, meta); err != nil {
		log.Error().Str("symbol", symbol).Err(err).Msg("failed to open position")
	}
}

// monitorOnce fans every live position out over the worker pool; each
// symbol's state transitions are serialized internally by
// lifecycle.Manager's per-symbol lock.
func (c *Coordinator) monitorOnce(ctx context.Context) {
	symbols := c.lifecycle.Symbols()
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		acquired := false
		select {
		case <-ctx.Done():
		case c.sem <- struct{}{}:
			acquired = true
		}
		wg.Add(1)
		go func(symbol string, acquired bool) {
			defer wg.Done()
			if acquired {
				defer func() { <-c.sem }()
			}
			c.monitorSymbol(symbol)
		}(symbol, acquired)
	}
	wg.Wait()
}

func (c *Coordinator) monitorSymbol(symbol string) {
	meta, err := c.symbolMeta(symbol)
	if err != nil {
		log.Error().Str("symbol", symbol).Err(err).Msg("fatal_config: symbol metadata unavailable for monitor tick")
		return
	}

	// The bot-side stop check must use a freshly fetched current price,
	// never a stale tick.
	quote, err := c.exchange.FetchTicker(symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("transient_io: ticker fetch failed during monitor tick")
		return
	}

	candles, err := c.exchange.FetchCandles(symbol, tripwireTimeframe, tripwireLookback)
	if err != nil {
		candles = nil
	}

	var atr float64
	if len(candles) > 0 {
		snap := indicators.Compute(symbol, string(tripwireTimeframe), candles, c.asia)
		atr = snap.ATR14
	}

	c.lifecycle.MonitorOne(symbol, lifecycle.PriceSnapshot{Current: quote.Last, Candles: candles, ATR: atr}, meta)
}

func (c *Coordinator) symbolMeta(symbol string) (model.SymbolMeta, error) {
	c.metaMu.RLock()
	meta, ok := c.metaCache[symbol]
	c.metaMu.RUnlock()
	if ok {
		return meta, nil
	}
	return c.RefreshSymbolMeta(symbol)
}

// RefreshSymbolMeta re-fetches and caches symbol metadata, re-assigns the
// symbol's bucket and sector from a fresh quote, and invalidates the risk
// engine's leverage cache alongside it. Called on first use and by the
// hourly refresh loop.
func (c *Coordinator) RefreshSymbolMeta(symbol string) (model.SymbolMeta, error) {
	meta, err := c.exchange.SymbolMeta(symbol)
	if err != nil {
		return model.SymbolMeta{}, fmt.Errorf("fatal_config: symbol_meta unavailable for %s: %w", symbol, err)
	}
	quote, err := c.exchange.FetchTicker(symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("ticker unavailable during metadata refresh, bucketing on zero volume")
		quote = model.Quote{Symbol: symbol}
	}
	meta = universe.Assign(meta, quote)
	c.metaMu.Lock()
	c.metaCache[symbol] = meta
	c.metaMu.Unlock()
	c.riskEngine.InvalidateLeverageCache(symbol)
	return meta, nil
}

// RunHourlyRefresh re-evaluates symbol metadata (and therefore the universe
// gate's bucket assignment and the risk engine's leverage cache) once per
// hour for every symbol, until ctx is cancelled.
func (c *Coordinator) RunHourlyRefresh(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				if _, err := c.RefreshSymbolMeta(symbol); err != nil {
					log.Warn().Str("symbol", symbol).Err(err).Msg("hourly symbol metadata refresh failed")
				}
			}
		}
	}
}

// inFundingBlackout reports whether symbol's next funding print falls
// within funding_blackout_seconds of now, suppressing new entries. Exits
// are never subject to this check.
func (c *Coordinator) inFundingBlackout(symbol string) bool {
	now := time.Now()
	c.fundingMu.RLock()
	next, ok := c.fundingCache[symbol]
	c.fundingMu.RUnlock()

	if !ok || next.Before(now) {
		t, err := c.exchange.FetchNextFundingTime(symbol)
		if err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("funding time lookup failed, allowing entry")
			return false
		}
		c.fundingMu.Lock()
		c.fundingCache[symbol] = t
		c.fundingMu.Unlock()
		next = t
	}

	window := time.Duration(c.cfg.FundingBlackoutSeconds) * time.Second
	delta := next.Sub(now)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}
