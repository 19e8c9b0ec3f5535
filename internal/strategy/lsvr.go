package strategy

import (
	"perpengine/internal/cfg"
	"perpengine/internal/indicators"
	"perpengine/internal/model"
)

// LSVR implements the Liquidity Sweep -> VWAP Reversion strategy
// , range regime only.
type LSVR struct {
	cfg  cfg.LSVRConfig
	asia indicators.AsiaSessionWindow
}

// Kind identifies this evaluator.
func (l *LSVR) Kind() model.StrategyKind { return model.StrategyLSVR }

// sweepExtreme is a prior swing level and the side it would produce if
// swept.
type sweepExtreme struct {
	level float64
	side  model.Side // side a reversal off this level would favor
}

// Evaluate implements the LSVR entry rules: a swept swing level, RSI
// divergence and tail confirmation, and a close back inside the VWAP band.
// The post-entry re-sweep exit tripwire is a lifecycle-layer concern, not
// an entry gate, and is handled by internal/lifecycle as a body-close
// re-touch of the swept level.
func (l *LSVR) Evaluate(candles []model.Candle, snap model.IndicatorSnapshot, meta model.SymbolMeta, regime model.RegimeLabel) (*model.Signal, bool) {
	if regime != model.RegimeRange {
		return nil, false
	}
	window := l.cfg.ReSweepBarsWindow + 1
	if window < 1 {
		window = 1
	}
	if len(candles) < window+1 || snap.ATR14 <= 0 {
		return nil, false
	}

	extremes := []sweepExtreme{
		{level: snap.SessionLow, side: model.SideLong},
		{level: snap.SessionHigh, side: model.SideShort},
		{level: snap.AsiaSessionLow, side: model.SideLong},
		{level: snap.AsiaSessionHigh, side: model.SideShort},
	}

	recent := candles[len(candles)-window:]
	sweepATR := l.cfg.SweepATRMult * snap.ATR14

	// The most recently swept level wins; when two levels are swept by the
	// same candle, the earlier entry above (prior session before Asia) is kept.
	var chosen *sweepExtreme
	var extremePrice float64
	chosenAt := -1
	for i := range extremes {
		ex := &extremes[i]
		if ex.level == 0 {
			continue
		}
		for j, c := range recent {
			if j <= chosenAt {
				continue
			}
			if ex.side == model.SideLong {
				// support swept: wick pierces below the level, body closes back above it.
				if c.Low < ex.level-sweepATR && c.Close > ex.level {
					chosen, extremePrice, chosenAt = ex, c.Low, j
				}
			} else {
				if c.High > ex.level+sweepATR && c.Close < ex.level {
					chosen, extremePrice, chosenAt = ex, c.High, j
				}
			}
		}
	}
	if chosen == nil {
		return nil, false
	}

	last := candles[len(candles)-1]

	// RSI divergence confirmation: a genuine sweep shows price making a new
	// extreme without RSI confirming it.
	if chosen.side == model.SideLong && snap.RSI14 <= l.cfg.RSIDivergenceLongMin {
		return nil, false
	}
	if chosen.side == model.SideShort && snap.RSI14 >= l.cfg.RSIDivergenceShortMax {
		return nil, false
	}

	// Tripwire: volume spike during formation means this setup is skipped.
	if snap.VolumeMean > 0 && last.Volume > l.cfg.VolumeSpikeMult*snap.VolumeMean {
		return nil, false
	}

	// Candle tail confirmation.
	if indicators.TailRatio(last) < l.cfg.TailBodyRatioMin {
		return nil, false
	}

	// Require a close back above/below VWAP +/-1 sigma on the correct side.
	side := chosen.side
	if side == model.SideLong && last.Close < snap.VWAPLower {
		return nil, false
	}
	if side == model.SideShort && last.Close > snap.VWAPUpper {
		return nil, false
	}

	entry := last.Close
	stopMult := (l.cfg.StopATRMultMin + l.cfg.StopATRMultMax) / 2
	var stop float64
	if side == model.SideLong {
		stop = extremePrice - stopMult*snap.ATR14
	} else {
		stop = extremePrice + stopMult*snap.ATR14
	}

	r := entry - stop
	if side == model.SideShort {
		r = stop - entry
	}
	if r <= 0 {
		return nil, false
	}

	ladder := lsvrLadder(entry, stop, r, side, snap)
	if !ladderMonotonic(entry, side, ladder) {
		return nil, false
	}
	timeStop := (l.cfg.TimeStopMin + l.cfg.TimeStopMax) / 2

	return &model.Signal{
		Symbol:          meta.SymbolID,
		Side:            side,
		StrategyKind:    model.StrategyLSVR,
		EntryRefPrice:   entry,
		StopRefPrice:    stop,
		TPLadder:        ladder,
		TimeStopSeconds: timeStop.Seconds(),
		Regime:          regime,
		TripwireRef:     chosen.level,
	}, true
}

func lsvrLadder(entry, stop, r float64, side model.Side, snap model.IndicatorSnapshot) []model.TPLadderEntry {
	var tp1, tp2, tp3 float64
	if side == model.SideLong {
		tp1 = snap.VWAP
		tp2 = snap.VWAPUpper
		tp3 = entry + 1.8*r
	} else {
		tp1 = snap.VWAP
		tp2 = snap.VWAPLower
		tp3 = entry - 1.8*r
	}
	return normalizeLadder([]model.TPLadderEntry{
		{TriggerPrice: tp1, SizeFraction: 0.75},
		{TriggerPrice: tp2, SizeFraction: 0.20},
		{TriggerPrice: tp3, SizeFraction: 0.05},
	})
}
