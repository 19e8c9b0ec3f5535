// Package strategy implements the three signal generators — LSVR,
// VWAP-MR, and Trend-Fallback — behind one small capability interface:
// each evaluator conforms to
// `(candles, IndicatorSnapshot, SymbolMeta, RegimeLabel) -> optional Signal`, tagged
// by strategy kind so the lifecycle manager can apply strategy-specific
// tripwires without dynamic dispatch chains.
package strategy

import (
	"perpengine/internal/cfg"
	"perpengine/internal/indicators"
	"perpengine/internal/model"
)

// Evaluator is the shared capability every strategy implements.
type Evaluator interface {
	Kind() model.StrategyKind
	Evaluate(candles []model.Candle, snap model.IndicatorSnapshot, meta model.SymbolMeta, regime model.RegimeLabel) (*model.Signal, bool)
}

// Pipeline runs evaluators in the fixed order LSVR -> VWAP-MR ->
// Trend-Fallback; the first one producing a signal wins for that symbol on
// that scan.
type Pipeline struct {
	evaluators []Evaluator
}

// NewPipeline builds the canonical LSVR -> VWAP-MR -> Trend-Fallback
// pipeline from strategy configuration.
func NewPipeline(strategyCfg cfg.StrategyConfig, asia indicators.AsiaSessionWindow) *Pipeline {
	return &Pipeline{
		evaluators: []Evaluator{
			&LSVR{cfg: strategyCfg.LSVR, asia: asia},
			&VWAPMR{cfg: strategyCfg.VWAPMR},
			&TrendFallback{cfg: strategyCfg.Trend},
		},
	}
}

// Evaluate runs each evaluator in order and returns the first signal
// produced.
func (p *Pipeline) Evaluate(candles []model.Candle, snap model.IndicatorSnapshot, meta model.SymbolMeta, regime model.RegimeLabel) (*model.Signal, bool) {
	for _, e := range p.evaluators {
		if signal, ok := e.Evaluate(candles, snap, meta, regime); ok {
			return signal, true
		}
	}
	return nil, false
}

// ladderMonotonic reports whether every rung sits strictly beyond entry on
// the favorable side and the triggers move strictly away from entry. A
// mean-reversion setup can put VWAP on the wrong side of the close (a wick
// touches the band but the body closes back through the mean); such a
// ladder would trip its first rung on the first monitor tick, so the
// evaluator must discard the signal instead of promoting it.
func ladderMonotonic(entry float64, side model.Side, ladder []model.TPLadderEntry) bool {
	if len(ladder) == 0 {
		return false
	}
	prev := entry
	for _, rung := range ladder {
		if side == model.SideLong && rung.TriggerPrice <= prev {
			return false
		}
		if side == model.SideShort && rung.TriggerPrice >= prev {
			return false
		}
		prev = rung.TriggerPrice
	}
	return true
}

// normalizeLadder re-normalizes TP ladder size fractions so they sum to
// exactly 1.0, absorbing rounding drift into
// the last rung.
func normalizeLadder(ladder []model.TPLadderEntry) []model.TPLadderEntry {
	var sum float64
	for _, l := range ladder {
		sum += l.SizeFraction
	}
	if sum == 0 || len(ladder) == 0 {
		return ladder
	}
	out := make([]model.TPLadderEntry, len(ladder))
	var running float64
	for i, l := range ladder {
		if i == len(ladder)-1 {
			out[i] = model.TPLadderEntry{TriggerPrice: l.TriggerPrice, SizeFraction: 1.0 - running}
			continue
		}
		frac := l.SizeFraction / sum
		out[i] = model.TPLadderEntry{TriggerPrice: l.TriggerPrice, SizeFraction: frac}
		running += frac
	}
	return out
}
