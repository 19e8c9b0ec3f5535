package strategy

import (
	"perpengine/internal/cfg"
	"perpengine/internal/model"
)

// VWAPMR implements the VWAP mean-reversion strategy, range
// regime only.
type VWAPMR struct {
	cfg cfg.VWAPMRConfig
}

// Kind identifies this evaluator.
func (v *VWAPMR) Kind() model.StrategyKind { return model.StrategyVWAPMR }

// Evaluate implements the VWAP-MR entry rules. The 1.7*ATR adverse-close
// tripwire is a lifecycle-layer concern applied once
// a position is open, not an entry gate, and is handled by
// internal/lifecycle.
func (v *VWAPMR) Evaluate(candles []model.Candle, snap model.IndicatorSnapshot, meta model.SymbolMeta, regime model.RegimeLabel) (*model.Signal, bool) {
	if regime != model.RegimeRange {
		return nil, false
	}
	if len(candles) == 0 || snap.ATR14 <= 0 {
		return nil, false
	}
	last := candles[len(candles)-1]

	var side model.Side
	switch {
	case last.Low <= snap.BBLower || last.Low <= snap.VWAPLower:
		side = model.SideLong
	case last.High >= snap.BBUpper || last.High >= snap.VWAPUpper:
		side = model.SideShort
	default:
		return nil, false
	}

	if side == model.SideLong {
		if snap.StochRSI > v.cfg.StochRSIBandLow {
			return nil, false
		}
		if snap.RSI14 < v.cfg.RSILongMin {
			return nil, false
		}
	} else {
		if snap.StochRSI < v.cfg.StochRSIBandHigh {
			return nil, false
		}
		if snap.RSI14 > v.cfg.RSIShortMax {
			return nil, false
		}
	}

	if snap.VolumeMean > 0 && last.Volume >= v.cfg.VolumeMaxMult*snap.VolumeMean {
		return nil, false
	}

	entry := last.Close
	stopMult := (v.cfg.StopATRMultMin + v.cfg.StopATRMultMax) / 2
	var stop, extreme float64
	if side == model.SideLong {
		extreme = last.Low
		stop = extreme - stopMult*snap.ATR14
	} else {
		extreme = last.High
		stop = extreme + stopMult*snap.ATR14
	}

	r := entry - stop
	if side == model.SideShort {
		r = stop - entry
	}
	if r <= 0 {
		return nil, false
	}

	ladder := vwapMRLadder(entry, stop, r, side, snap)
	if !ladderMonotonic(entry, side, ladder) {
		return nil, false
	}
	timeStop := (v.cfg.TimeStopMin + v.cfg.TimeStopMax) / 2

	return &model.Signal{
		Symbol:          meta.SymbolID,
		Side:            side,
		StrategyKind:    model.StrategyVWAPMR,
		EntryRefPrice:   entry,
		StopRefPrice:    stop,
		TPLadder:        ladder,
		TimeStopSeconds: timeStop.Seconds(),
		Regime:          regime,
		TripwireRef:     snap.ATR14,
	}, true
}

func vwapMRLadder(entry, stop, r float64, side model.Side, snap model.IndicatorSnapshot) []model.TPLadderEntry {
	var tp1, tp2, tp3 float64
	if side == model.SideLong {
		tp1 = snap.VWAP
		tp2 = snap.VWAPUpper
		tp3 = snap.BBUpper
		if entry+1.2*r > tp2 {
			tp2 = entry + 1.2*r
		}
		if entry+1.8*r > tp3 {
			tp3 = entry + 1.8*r
		}
	} else {
		tp1 = snap.VWAP
		tp2 = snap.VWAPLower
		tp3 = snap.BBLower
		if entry-1.2*r < tp2 {
			tp2 = entry - 1.2*r
		}
		if entry-1.8*r < tp3 {
			tp3 = entry - 1.8*r
		}
	}
	return normalizeLadder([]model.TPLadderEntry{
		{TriggerPrice: tp1, SizeFraction: 0.65},
		{TriggerPrice: tp2, SizeFraction: 0.30},
		{TriggerPrice: tp3, SizeFraction: 0.05},
	})
}
