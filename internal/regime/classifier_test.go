package regime

import (
	"testing"

	"perpengine/internal/cfg"
	"perpengine/internal/model"

	"github.com/stretchr/testify/assert"
)

func testThresholds() cfg.RegimeConfig {
	return cfg.RegimeConfig{
		Major: cfg.RegimeThresholds{ADXRangeMax: 20, BBPctMax: 40},
		Mid:   cfg.RegimeThresholds{ADXRangeMax: 22, BBPctMax: 50},
		Micro: cfg.RegimeThresholds{ADXRangeMax: 25, BBPctMax: 60},
	}
}

func TestClassify_RangeWhenAllThresholdsHold(t *testing.T) {
	snap := model.IndicatorSnapshot{ADX14: 15, BBWidthPctRk: 30, VWAPSlope: 0.01}
	label := Classify(snap, model.BucketMajor, testThresholds())
	assert.Equal(t, model.RegimeRange, label)
}

func TestClassify_TrendWhenADXHigh(t *testing.T) {
	snap := model.IndicatorSnapshot{ADX14: 35, BBWidthPctRk: 30, VWAPSlope: 0.01}
	label := Classify(snap, model.BucketMajor, testThresholds())
	assert.Equal(t, model.RegimeTrend, label)
}

func TestClassify_TrendWhenBBWidthHigh(t *testing.T) {
	snap := model.IndicatorSnapshot{ADX14: 15, BBWidthPctRk: 80, VWAPSlope: 0.01}
	label := Classify(snap, model.BucketMid, testThresholds())
	assert.Equal(t, model.RegimeTrend, label)
}

func TestClassify_TrendWhenVWAPSlopeOutsideBand(t *testing.T) {
	snap := model.IndicatorSnapshot{ADX14: 15, BBWidthPctRk: 30, VWAPSlope: 0.2}
	label := Classify(snap, model.BucketMicro, testThresholds())
	assert.Equal(t, model.RegimeTrend, label)
}

func TestClassify_UnknownBucketDefaultsToTrend(t *testing.T) {
	snap := model.IndicatorSnapshot{ADX14: 5, BBWidthPctRk: 5, VWAPSlope: 0}
	label := Classify(snap, model.Bucket("exotic"), testThresholds())
	assert.Equal(t, model.RegimeTrend, label)
}
