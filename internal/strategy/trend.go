package strategy

import (
	"perpengine/internal/cfg"
	"perpengine/internal/model"
)

// TrendFallback implements the trend-following fallback strategy, used when a symbol is classified trending rather than range-bound.
type TrendFallback struct {
	cfg cfg.TrendConfig
}

// Kind identifies this evaluator.
func (t *TrendFallback) Kind() model.StrategyKind { return model.StrategyTrendFallback }

// Evaluate implements the Trend-Fallback entry rules: price
// on the correct side of the 200-EMA with an aligned VWAP slope, a pullback
// to VWAP +/-1 sigma, a 9/21 EMA recross in the trend direction, and RSI on
// the correct side of 50. The initial stop sits at the last swing extreme;
// TP1 takes partial profit at 1.2*ATR. After TP1, internal/lifecycle trails
// the remainder with a callback-ratio trailing take-profit; the Supertrend
// value on the second ladder rung is recorded with the position, and the
// remainder is not trailed along the Supertrend line or the last swing.
func (t *TrendFallback) Evaluate(candles []model.Candle, snap model.IndicatorSnapshot, meta model.SymbolMeta, regime model.RegimeLabel) (*model.Signal, bool) {
	if regime != model.RegimeTrend {
		return nil, false
	}
	if len(candles) == 0 || snap.ATR14 <= 0 {
		return nil, false
	}

	trendEMA, ok := snap.EMAs[t.cfg.EMATrendPeriod]
	if !ok || trendEMA == 0 {
		return nil, false
	}
	fastEMA, ok := snap.EMAs[t.cfg.EMAFastPeriod]
	if !ok {
		return nil, false
	}
	slowEMA, ok := snap.EMAs[t.cfg.EMASlowPeriod]
	if !ok {
		return nil, false
	}

	last := candles[len(candles)-1]

	var side model.Side
	switch {
	case last.Close > trendEMA && snap.VWAPSlope > 0 && fastEMA > slowEMA && snap.RSI14 > 50:
		side = model.SideLong
	case last.Close < trendEMA && snap.VWAPSlope < 0 && fastEMA < slowEMA && snap.RSI14 < 50:
		side = model.SideShort
	default:
		return nil, false
	}

	// Require a recent pullback to VWAP +/- 1 sigma before the recross.
	pulledBack := false
	window := candles
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	for _, c := range window {
		if side == model.SideLong && c.Low <= snap.VWAPUpper {
			pulledBack = true
			break
		}
		if side == model.SideShort && c.High >= snap.VWAPLower {
			pulledBack = true
			break
		}
	}
	if !pulledBack {
		return nil, false
	}

	entry := last.Close
	swing := lastSwingExtreme(candles, side)

	var stop float64
	if side == model.SideLong {
		if swing == 0 || swing >= entry {
			stop = entry - t.cfg.SwingATRMult*snap.ATR14
		} else {
			stop = swing
		}
	} else {
		if swing == 0 || swing <= entry {
			stop = entry + t.cfg.SwingATRMult*snap.ATR14
		} else {
			stop = swing
		}
	}

	r := entry - stop
	if side == model.SideShort {
		r = stop - entry
	}
	if r <= 0 {
		return nil, false
	}

	var tp1 float64
	if side == model.SideLong {
		tp1 = entry + t.cfg.TP1ATRMult*snap.ATR14
	} else {
		tp1 = entry - t.cfg.TP1ATRMult*snap.ATR14
	}

	ladder := normalizeLadder([]model.TPLadderEntry{
		{TriggerPrice: tp1, SizeFraction: 0.50},
		{TriggerPrice: snap.Supertrend, SizeFraction: 0.50},
	})

	return &model.Signal{
		Symbol:        meta.SymbolID,
		Side:          side,
		StrategyKind:  model.StrategyTrendFallback,
		EntryRefPrice: entry,
		StopRefPrice:  stop,
		TPLadder:      ladder,
		Regime:        regime,
	}, true
}

// lastSwingExtreme returns the lowest low (long) or highest high (short)
// over the recent lookback window, the reference for the initial stop.
func lastSwingExtreme(candles []model.Candle, side model.Side) float64 {
	window := candles
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if len(window) == 0 {
		return 0
	}
	extreme := 0.0
	for i, c := range window {
		if i == 0 {
			extreme = pick(c, side)
			continue
		}
		v := pick(c, side)
		if side == model.SideLong && v < extreme {
			extreme = v
		}
		if side == model.SideShort && v > extreme {
			extreme = v
		}
	}
	return extreme
}

func pick(c model.Candle, side model.Side) float64 {
	if side == model.SideLong {
		return c.Low
	}
	return c.High
}
