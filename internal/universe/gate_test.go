package universe

import (
	"testing"

	"perpengine/internal/cfg"
	"perpengine/internal/model"

	"github.com/stretchr/testify/assert"
)

func testThresholds() cfg.UniverseConfig {
	return cfg.UniverseConfig{
		Major: cfg.BucketThresholds{MaxSpreadBps: 6, MinTOBDepthUSD: 100_000, Min24hVolUSD: 80_000_000},
		Mid:   cfg.BucketThresholds{MaxSpreadBps: 8, MinTOBDepthUSD: 50_000, Min24hVolUSD: 80_000_000},
		Micro: cfg.BucketThresholds{MaxSpreadBps: 12, MinTOBDepthUSD: 20_000, Min24hVolUSD: 120_000_000},
	}
}

func TestEnterAllowed_PassesWhenAllThresholdsMet(t *testing.T) {
	g := New(testThresholds())
	meta := model.SymbolMeta{SymbolID: "BTCUSDT", Bucket: model.BucketMajor}
	quote := model.Quote{Bid: 99.997, Ask: 100.003, Volume24h: 90_000_000}
	depth := model.DepthSnapshot{BidDepthUSD: 150_000, AskDepthUSD: 150_000}

	ok, reason := g.EnterAllowed(meta, quote, depth)
	assert.True(t, ok)
	assert.Equal(t, RejectNone, reason)
}

func TestEnterAllowed_RejectsWideSpread(t *testing.T) {
	g := New(testThresholds())
	meta := model.SymbolMeta{SymbolID: "BTCUSDT", Bucket: model.BucketMajor}
	quote := model.Quote{Bid: 99.0, Ask: 101.0, Volume24h: 90_000_000}
	depth := model.DepthSnapshot{BidDepthUSD: 150_000, AskDepthUSD: 150_000}

	ok, reason := g.EnterAllowed(meta, quote, depth)
	assert.False(t, ok)
	assert.Equal(t, RejectSpread, reason)
}

func TestEnterAllowed_RejectsThinDepth(t *testing.T) {
	g := New(testThresholds())
	meta := model.SymbolMeta{SymbolID: "ALTUSDT", Bucket: model.BucketMicro}
	quote := model.Quote{Bid: 1.0, Ask: 1.001, Volume24h: 150_000_000}
	depth := model.DepthSnapshot{BidDepthUSD: 5_000, AskDepthUSD: 30_000}

	ok, reason := g.EnterAllowed(meta, quote, depth)
	assert.False(t, ok)
	assert.Equal(t, RejectDepth, reason)
}

func TestEnterAllowed_RejectsLowVolume(t *testing.T) {
	g := New(testThresholds())
	meta := model.SymbolMeta{SymbolID: "MIDUSDT", Bucket: model.BucketMid}
	quote := model.Quote{Bid: 10.0, Ask: 10.005, Volume24h: 1_000_000}
	depth := model.DepthSnapshot{BidDepthUSD: 60_000, AskDepthUSD: 60_000}

	ok, reason := g.EnterAllowed(meta, quote, depth)
	assert.False(t, ok)
	assert.Equal(t, RejectVolume, reason)
}

func TestEnterAllowed_UnknownBucket(t *testing.T) {
	g := New(testThresholds())
	meta := model.SymbolMeta{SymbolID: "XUSDT", Bucket: model.Bucket("exotic")}
	ok, reason := g.EnterAllowed(meta, model.Quote{}, model.DepthSnapshot{})
	assert.False(t, ok)
	assert.Equal(t, RejectUnknownBucket, reason)
}
