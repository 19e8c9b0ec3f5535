// Package universe implements the per-symbol universe gate: a pass/fail
// decision on spread, top-of-book depth, and 24h volume, parameterized by
// the symbol's bucket (major/mid/micro)
package universe

import (
	"fmt"

	"perpengine/internal/cfg"
	"perpengine/internal/model"
)

// RejectReason explains why a symbol failed the gate.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectSpread        RejectReason = "spread_too_wide"
	RejectDepth         RejectReason = "insufficient_depth"
	RejectVolume        RejectReason = "insufficient_24h_volume"
	RejectUnknownBucket RejectReason = "unknown_bucket"
)

// Gate evaluates symbols against bucketed universe thresholds.
type Gate struct {
	thresholds cfg.UniverseConfig
}

// New constructs a Gate from the engine's universe configuration.
func New(thresholds cfg.UniverseConfig) *Gate {
	return &Gate{thresholds: thresholds}
}

func (g *Gate) thresholdsFor(bucket model.Bucket) (cfg.BucketThresholds, error) {
	switch bucket {
	case model.BucketMajor:
		return g.thresholds.Major, nil
	case model.BucketMid:
		return g.thresholds.Mid, nil
	case model.BucketMicro:
		return g.thresholds.Micro, nil
	default:
		return cfg.BucketThresholds{}, fmt.Errorf("%s: %w", bucket, errUnknownBucket)
	}
}

var errUnknownBucket = fmt.Errorf("unknown universe bucket")

// EnterAllowed implements enter_allowed(symbol_metadata, quote_snapshot).
// The coordinator evaluates it on every scan of the symbol, and again
// immediately before each entry with a freshly fetched quote.
func (g *Gate) EnterAllowed(meta model.SymbolMeta, quote model.Quote, depth model.DepthSnapshot) (bool, RejectReason) {
	thresholds, err := g.thresholdsFor(meta.Bucket)
	if err != nil {
		return false, RejectUnknownBucket
	}

	if quote.SpreadBps() > thresholds.MaxSpreadBps {
		return false, RejectSpread
	}
	if depth.MinDepthUSD() < thresholds.MinTOBDepthUSD {
		return false, RejectDepth
	}
	if quote.Volume24h < thresholds.Min24hVolUSD {
		return false, RejectVolume
	}
	return true, RejectNone
}
