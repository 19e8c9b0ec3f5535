package universe

import "perpengine/internal/model"

// majorSymbols are always bucketed major regardless of printed volume.
var majorSymbols = map[string]bool{
	"BTCUSDT": true,
	"ETHUSDT": true,
	"SOLUSDT": true,
	"BNBUSDT": true,
	"XRPUSDT": true,
}

// sectorOf groups symbols for the concurrency coordinator's per-sector cap.
// The label is opaque to strategies; anything unlisted lands in "other".
var sectorOf = map[string]string{
	"BTCUSDT":  "store-of-value",
	"ETHUSDT":  "layer1",
	"SOLUSDT":  "layer1",
	"BNBUSDT":  "exchange",
	"XRPUSDT":  "payments",
	"ADAUSDT":  "layer1",
	"AVAXUSDT": "layer1",
	"DOTUSDT":  "layer1",
	"LINKUSDT": "defi",
	"UNIUSDT":  "defi",
	"AAVEUSDT": "defi",
	"DOGEUSDT": "meme",
	"SHIBUSDT": "meme",
	"PEPEUSDT": "meme",
}

// midVolumeFloorUSD splits non-major symbols into mid and micro by their 24h
// quote volume.
const midVolumeFloorUSD = 300_000_000

// Assign fills meta's Bucket and Sector from the static symbol tables plus
// the quote's 24h volume. Re-run on every hourly metadata refresh so a
// symbol whose volume decays migrates from mid to micro (and its stricter
// thresholds) without a restart.
func Assign(meta model.SymbolMeta, quote model.Quote) model.SymbolMeta {
	switch {
	case majorSymbols[meta.SymbolID]:
		meta.Bucket = model.BucketMajor
	case quote.Volume24h >= midVolumeFloorUSD:
		meta.Bucket = model.BucketMid
	default:
		meta.Bucket = model.BucketMicro
	}

	if sector, ok := sectorOf[meta.SymbolID]; ok {
		meta.Sector = sector
	} else {
		meta.Sector = "other"
	}
	return meta
}
