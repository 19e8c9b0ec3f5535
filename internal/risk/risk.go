// Package risk implements the leverage-aware sizing engine: effective
// leverage lookup, ROE-to-price-move conversion, liquidation price,
// contract sizing under liquidation-buffer guards, and trigger-price tick
// snapping
package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"perpengine/internal/cfg"
	"perpengine/internal/model"
)

// LeverageSource fetches the exchange-declared max leverage for a symbol and
// pushes the engine's chosen leverage back to the account before it trades
// the symbol. Implemented by internal/exchange/bitunix.Client.
type LeverageSource interface {
	MaxLeverage(symbol string) (int, error)
	SetLeverage(symbol string, leverage int) error
}

// Engine computes sizing decisions and enforces liquidation-buffer guards.
type Engine struct {
	mu             sync.RWMutex
	leverageCache  map[string]int
	source         LeverageSource
	globalLeverage int
	guards         cfg.LiqGuards
	marginFraction float64
}

// New constructs a risk Engine from configuration and an exchange leverage
// source.
func New(settings cfg.Settings, source LeverageSource) *Engine {
	return &Engine{
		leverageCache:  make(map[string]int),
		source:         source,
		globalLeverage: settings.Leverage,
		guards:         settings.LiqGuards,
		marginFraction: settings.MarginFractionPerTrade,
	}
}

// EffectiveLeverage returns the exchange-declared max leverage for symbol,
// cached after first use. Refreshed at startup and on first use; falls
// back to the globally configured leverage with a warning log if the
// source is unavailable.
func (e *Engine) EffectiveLeverage(symbol string) int {
	e.mu.RLock()
	if lev, ok := e.leverageCache[symbol]; ok {
		e.mu.RUnlock()
		return lev
	}
	e.mu.RUnlock()

	lev, err := e.source.MaxLeverage(symbol)
	if err != nil || lev <= 0 {
		log.Warn().Str("symbol", symbol).Err(err).
			Int("fallback_leverage", e.globalLeverage).
			Msg("leverage lookup failed, using globally configured leverage")
		lev = e.globalLeverage
	}

	if err := e.source.SetLeverage(symbol, lev); err != nil {
		log.Warn().Str("symbol", symbol).Int("leverage", lev).Err(err).
			Msg("failed to push leverage to exchange, sizing will still assume it")
	}

	e.mu.Lock()
	e.leverageCache[symbol] = lev
	e.mu.Unlock()
	return lev
}

// InvalidateLeverageCache forces the next EffectiveLeverage call for symbol
// to refetch, used by the hourly symbol-metadata refresh.
func (e *Engine) InvalidateLeverageCache(symbol string) {
	e.mu.Lock()
	delete(e.leverageCache, symbol)
	e.mu.Unlock()
}

// ROEToPriceMove converts a target return-on-equity to a price-move
// fraction: roe / leverage. All TP/SL derivations must be expressed through
// this conversion.
func ROEToPriceMove(roe float64, leverage int) float64 {
	if leverage == 0 {
		return 0
	}
	return roe / float64(leverage)
}

// LiquidationPrice computes the liquidation price for entry/side/leverage/
// maintenance-margin-rate:
//
//	long:  entry * (1 - 1/leverage + mmr)
//	short: entry * (1 + 1/leverage - mmr)
func LiquidationPrice(entry float64, side model.Side, leverage int, mmr float64) float64 {
	if leverage == 0 {
		return 0
	}
	inv := 1 / float64(leverage)
	if side == model.SideLong {
		return entry * (1 - inv + mmr)
	}
	return entry * (1 + inv - mmr)
}

// GuardResult reports which liquidation-buffer guard failed, if any.
type GuardResult struct {
	Pass   bool
	Reason string
}

// checkGuards enforces the three liquidation-buffer invariants:
//
//	|entry-stop|/entry <= max_stop_pct
//	|stop-liq|/entry >= min_abs_buffer_pct
//	|stop-liq| >= min_fraction_of_liq_distance * |entry-liq|
func (e *Engine) checkGuards(entry, stop, liq float64) GuardResult {
	if entry == 0 {
		return GuardResult{Pass: false, Reason: "zero entry price"}
	}
	stopPct := math.Abs(entry-stop) / entry
	if stopPct > e.guards.MaxStopPct {
		return GuardResult{Pass: false, Reason: "stop distance exceeds max_stop_pct"}
	}

	bufferPct := math.Abs(stop-liq) / entry
	if bufferPct < e.guards.MinAbsBufferPct {
		return GuardResult{Pass: false, Reason: "buffer below min_abs_buffer_pct"}
	}

	liqDistance := math.Abs(entry - liq)
	if liqDistance == 0 {
		return GuardResult{Pass: false, Reason: "zero liquidation distance"}
	}
	bufferFraction := math.Abs(stop-liq) / liqDistance
	if bufferFraction < e.guards.MinFractionOfLiqDistance {
		return GuardResult{Pass: false, Reason: "buffer fraction below min_fraction_of_liq_distance"}
	}

	return GuardResult{Pass: true}
}

// SizeTrade turns a signal into a contract count: it computes the target
// notional, floors to size_lot, and shrinks by 10%
// per step (up to max_shrink_steps) until the liquidation-buffer guards
// pass or the position falls below size_lot, in which case it rejects with
// liquidation_guard_failed.
func (e *Engine) SizeTrade(signal model.Signal, equity float64, meta model.SymbolMeta) model.SizingDecision {
	leverage := e.EffectiveLeverage(signal.Symbol)

	targetNotional := e.marginFraction * equity * float64(leverage)
	rawContracts := math.Floor(targetNotional/signal.EntryRefPrice/meta.SizeLot) * meta.SizeLot

	liq := LiquidationPrice(signal.EntryRefPrice, signal.Side, leverage, meta.MaintenanceMarginRate)

	contracts := rawContracts
	var lastReason string
	for step := 0; step <= e.guards.MaxShrinkSteps; step++ {
		if contracts < meta.SizeLot {
			return model.SizingDecision{
				Signal: signal, Leverage: leverage, Contracts: 0,
				EntryPriceReference: signal.EntryRefPrice, StopPrice: signal.StopRefPrice, LiqPrice: liq,
				PassesGuards: false, ReasonIfFailed: "below min lot",
			}
		}

		result := e.checkGuards(signal.EntryRefPrice, signal.StopRefPrice, liq)
		if result.Pass {
			return model.SizingDecision{
				Signal: signal, Leverage: leverage, Contracts: contracts,
				EntryPriceReference: signal.EntryRefPrice, StopPrice: signal.StopRefPrice, LiqPrice: liq,
				PassesGuards: true,
			}
		}
		lastReason = result.Reason
		contracts = math.Floor(contracts*0.9/meta.SizeLot) * meta.SizeLot
	}

	return model.SizingDecision{
		Signal: signal, Leverage: leverage, Contracts: 0,
		EntryPriceReference: signal.EntryRefPrice, StopPrice: signal.StopRefPrice, LiqPrice: liq,
		PassesGuards: false, ReasonIfFailed: lastReason,
	}
}

// SnapToGrid rounds a trigger price to price_decimals and snaps it to the
// price_tick grid with no side enforcement, for callers that have no fresh
// current price; the venue's side-rule rejection plus NudgeTick covers the
// race that rounding alone cannot.
func SnapToGrid(trigger float64, meta model.SymbolMeta) float64 {
	if meta.PriceTick <= 0 {
		return roundToDecimals(trigger, meta.PriceDecimals)
	}
	ticks := math.Round(trigger / meta.PriceTick)
	return roundToDecimals(ticks*meta.PriceTick, meta.PriceDecimals)
}

// SnapTrigger rounds a trigger price to price_decimals and snaps it to the
// price_tick grid on the side that keeps the trigger valid under the venue's
// side rules: long TP above current, short TP below, long SL below, short
// SL above.
func SnapTrigger(trigger float64, meta model.SymbolMeta, isTakeProfit bool, side model.Side, current float64) float64 {
	ticks := math.Round(trigger / meta.PriceTick)
	snapped := ticks * meta.PriceTick

	needsAbove := (isTakeProfit && side == model.SideLong) || (!isTakeProfit && side == model.SideShort)
	if needsAbove && snapped <= current {
		snapped += meta.PriceTick
	} else if !needsAbove && snapped >= current {
		snapped -= meta.PriceTick
	}

	return roundToDecimals(snapped, meta.PriceDecimals)
}

// NudgeTick moves a trigger by exactly one price_tick toward the venue-valid
// side after a side-rule rejection. This is the only adjustment ever made
// to a rejected trigger; the order's side semantics are never flipped.
func NudgeTick(trigger float64, meta model.SymbolMeta, isTakeProfit bool, side model.Side) float64 {
	needsAbove := (isTakeProfit && side == model.SideLong) || (!isTakeProfit && side == model.SideShort)
	if needsAbove {
		return roundToDecimals(trigger+meta.PriceTick, meta.PriceDecimals)
	}
	return roundToDecimals(trigger-meta.PriceTick, meta.PriceDecimals)
}

func roundToDecimals(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// ErrLiquidationGuardFailed names the discard reason recorded when sizing
// cannot satisfy the guards.
var ErrLiquidationGuardFailed = fmt.Errorf("liquidation_guard_failed")
