// Package regime classifies a symbol/timeframe as range-bound or trending
// from ADX, Bollinger-width percentile, and VWAP slope
package regime

import (
	"perpengine/internal/cfg"
	"perpengine/internal/model"
)

const vwapSlopeBand = 0.05 // ±0.05σ

// Classify returns RegimeRange if ADX, BB-width percentile, and VWAP slope
// all hold within the bucket's thresholds; otherwise RegimeTrend.
func Classify(snap model.IndicatorSnapshot, bucket model.Bucket, thresholds cfg.RegimeConfig) model.RegimeLabel {
	t, ok := thresholdsFor(bucket, thresholds)
	if !ok {
		return model.RegimeTrend
	}

	if snap.ADX14 < t.ADXRangeMax &&
		snap.BBWidthPctRk <= t.BBPctMax &&
		snap.VWAPSlope >= -vwapSlopeBand && snap.VWAPSlope <= vwapSlopeBand {
		return model.RegimeRange
	}
	return model.RegimeTrend
}

func thresholdsFor(bucket model.Bucket, thresholds cfg.RegimeConfig) (cfg.RegimeThresholds, bool) {
	switch bucket {
	case model.BucketMajor:
		return thresholds.Major, true
	case model.BucketMid:
		return thresholds.Mid, true
	case model.BucketMicro:
		return thresholds.Micro, true
	default:
		return cfg.RegimeThresholds{}, false
	}
}
