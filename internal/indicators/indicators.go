// Package indicators holds the engine's pure indicator functions: SMA, EMA,
// Wilder-smoothed ATR/RSI/ADX, Bollinger Bands and width percentile,
// Stochastic RSI, session-reset VWAP with sigma bands, Supertrend, session
// high/low, and rolling volume mean.
//
// Every function is deterministic on the candle slice it is given: callers
// re-pass the window on every scan rather than holding indicator state
// across calls Numerical policy is 64-bit float with an
// epsilon tolerance of 1e-9 used by this package's own tests.
package indicators

import (
	"math"
	"sort"
	"time"

	"perpengine/internal/model"
)

const epsilon = 1e-9

// AsiaSessionWindow describes the Asia trading session in UTC clock time,
// used to compute the Asia-session high/low. The window wraps if EndHour <
// StartHour (e.g. 23:00-07:00 UTC is not used here, but the type supports
// it for config-driven adjustment).
type AsiaSessionWindow struct {
	StartHour int
	EndHour   int
}

// DefaultAsiaSession approximates Tokyo/Singapore trading hours in UTC.
var DefaultAsiaSession = AsiaSessionWindow{StartHour: 0, EndHour: 8}

// SMA returns the simple moving average of the last `period` closes.
func SMA(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	window := candles[len(candles)-period:]
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average over `period`, seeded with the
// SMA of the first `period` candles in the slice.
func EMA(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	k := 2.0 / (float64(period) + 1.0)
	ema := SMA(candles[:period], period)
	for _, c := range candles[period:] {
		ema = c.Close*k + ema*(1-k)
	}
	return ema
}

// trueRange returns the true range of candle i against the prior close.
func trueRange(candles []model.Candle, i int) float64 {
	c := candles[i]
	if i == 0 {
		return c.High - c.Low
	}
	prevClose := candles[i-1].Close
	hl := c.High - c.Low
	hc := math.Abs(c.High - prevClose)
	lc := math.Abs(c.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR returns the Wilder-smoothed Average True Range over `period` bars.
func ATR(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	return wilderSmooth(trueRanges(candles), period)
}

func trueRanges(candles []model.Candle) []float64 {
	trs := make([]float64, len(candles))
	for i := range candles {
		trs[i] = trueRange(candles, i)
	}
	return trs
}

// wilderSmooth applies Wilder's smoothing method to a series: seed with the
// simple average of the first `period` values (starting at index 1, since
// index 0 has no predecessor for a true-range-like series), then roll
// forward with weight 1/period.
func wilderSmooth(series []float64, period int) float64 {
	if len(series) < period+1 {
		return 0
	}
	var seed float64
	for i := 1; i <= period; i++ {
		seed += series[i]
	}
	avg := seed / float64(period)
	for i := period + 1; i < len(series); i++ {
		avg = (avg*float64(period-1) + series[i]) / float64(period)
	}
	return avg
}

// RSI returns the Wilder-smoothed Relative Strength Index over `period`
// bars.
func RSI(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	gains := make([]float64, len(candles))
	losses := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := wilderSmooth(gains, period)
	avgLoss := wilderSmooth(losses, period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// DirectionalMovement is the ADX engine's +DI/-DI/ADX triple.
type DirectionalMovement struct {
	PlusDI  float64
	MinusDI float64
	ADX     float64
}

// ADX returns the Wilder-smoothed Average Directional Index over `period`
// bars along with +DI and -DI.
func ADX(candles []model.Candle, period int) DirectionalMovement {
	if period <= 0 || len(candles) < 2*period+1 {
		return DirectionalMovement{}
	}

	plusDM := make([]float64, len(candles))
	minusDM := make([]float64, len(candles))
	trs := trueRanges(candles)

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := wilderSmooth(trs, period)
	smoothPlusDM := wilderSmooth(plusDM, period)
	smoothMinusDM := wilderSmooth(minusDM, period)

	if smoothTR == 0 {
		return DirectionalMovement{}
	}
	plusDI := 100 * smoothPlusDM / smoothTR
	minusDI := 100 * smoothMinusDM / smoothTR

	dxSeries := make([]float64, len(candles))
	for i := 2 * period; i < len(candles); i++ {
		window := candles[:i+1]
		tr := wilderSmooth(trueRanges(window), period)
		pDM := wilderSmooth(plusDMSeries(window), period)
		mDM := wilderSmooth(minusDMSeries(window), period)
		if tr == 0 {
			continue
		}
		pdi := 100 * pDM / tr
		mdi := 100 * mDM / tr
		denom := pdi + mdi
		if denom == 0 {
			continue
		}
		dxSeries[i] = 100 * math.Abs(pdi-mdi) / denom
	}

	adx := wilderSmooth(dxSeries, period)
	return DirectionalMovement{PlusDI: plusDI, MinusDI: minusDI, ADX: adx}
}

func plusDMSeries(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			out[i] = upMove
		}
	}
	return out
}

func minusDMSeries(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if downMove > upMove && downMove > 0 {
			out[i] = downMove
		}
	}
	return out
}

// BollingerBands is the mean/upper/lower band plus width, over `period`
// bars at `mult` standard deviations.
type BollingerBands struct {
	Mean  float64
	Upper float64
	Lower float64
	Width float64
}

// Bollinger returns the Bollinger Bands (mean ± mult·stddev) over `period`
// closes.
func Bollinger(candles []model.Candle, period int, mult float64) BollingerBands {
	if period <= 0 || len(candles) < period {
		return BollingerBands{}
	}
	window := candles[len(candles)-period:]
	mean := SMA(candles, period)
	var sumSq float64
	for _, c := range window {
		d := c.Close - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(period))
	upper := mean + mult*std
	lower := mean - mult*std
	return BollingerBands{Mean: mean, Upper: upper, Lower: lower, Width: upper - lower}
}

// BollingerWidthPercentileRank returns the percentile rank (0-100) of the
// current Bollinger width among the trailing `lookback` bars' widths
// (computed with a rolling `period`-bar Bollinger calculation).
func BollingerWidthPercentileRank(candles []model.Candle, period, lookback int, mult float64) float64 {
	if len(candles) < period+1 {
		return 0
	}
	start := len(candles) - lookback
	if start < period {
		start = period
	}

	widths := make([]float64, 0, lookback)
	for i := start; i <= len(candles); i++ {
		bb := Bollinger(candles[:i], period, mult)
		widths = append(widths, bb.Width)
	}
	if len(widths) == 0 {
		return 0
	}

	current := widths[len(widths)-1]
	sorted := append([]float64(nil), widths...)
	sort.Float64s(sorted)

	rank := sort.SearchFloat64s(sorted, current)
	return 100 * float64(rank) / float64(len(sorted)-1+boolToInt(len(sorted) == 1))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// StochRSI returns the smoothed (fastK=3, slowK=3) Stochastic RSI over a
// 14-period RSI computed on a 14-period lookback window, scaled to [0,1].
func StochRSI(candles []model.Candle, rsiPeriod, stochPeriod, fastK, slowK int) float64 {
	if len(candles) < rsiPeriod+stochPeriod+slowK {
		return 0
	}

	rsiSeries := make([]float64, 0, stochPeriod+slowK+fastK)
	for i := len(candles) - (stochPeriod + slowK + fastK - 1); i <= len(candles); i++ {
		if i < rsiPeriod+1 {
			continue
		}
		rsiSeries = append(rsiSeries, RSI(candles[:i], rsiPeriod))
	}
	if len(rsiSeries) < stochPeriod {
		return 0
	}

	rawK := make([]float64, 0, len(rsiSeries)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsiSeries); i++ {
		window := rsiSeries[i-stochPeriod+1 : i+1]
		lo, hi := minMax(window)
		cur := rsiSeries[i]
		if hi-lo == 0 {
			rawK = append(rawK, 0)
		} else {
			rawK = append(rawK, (cur-lo)/(hi-lo))
		}
	}
	if len(rawK) == 0 {
		return 0
	}

	fastKSeries := smoothSeries(rawK, fastK)
	slowKSeries := smoothSeries(fastKSeries, slowK)
	if len(slowKSeries) == 0 {
		return 0
	}
	return slowKSeries[len(slowKSeries)-1]
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

func smoothSeries(xs []float64, period int) []float64 {
	if period <= 1 || len(xs) < period {
		return xs
	}
	out := make([]float64, 0, len(xs)-period+1)
	for i := period - 1; i < len(xs); i++ {
		var sum float64
		for _, x := range xs[i-period+1 : i+1] {
			sum += x
		}
		out = append(out, sum/float64(period))
	}
	return out
}

// VWAPResult is the session VWAP, its accumulated standard deviation band,
// and slope over the last bar, expressed in sigma units.
type VWAPResult struct {
	VWAP  float64
	Upper float64
	Lower float64
	Slope float64
}

// SessionVWAP computes VWAP reset at the most recent UTC-day boundary
// within the candle slice, with ±1σ bands accumulated over the same
// session window. The slope is the change in VWAP over the last bar,
// expressed in units of sigma per bar.
func SessionVWAP(candles []model.Candle) VWAPResult {
	if len(candles) == 0 {
		return VWAPResult{}
	}

	session := sessionCandles(candles, candles[len(candles)-1].OpenTime)
	if len(session) == 0 {
		return VWAPResult{}
	}

	var pv, vv float64
	for _, c := range session {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vv += c.Volume
	}
	if vv == 0 {
		return VWAPResult{}
	}
	vwap := pv / vv

	var weightedVarSum float64
	for _, c := range session {
		typical := (c.High + c.Low + c.Close) / 3
		d := typical - vwap
		weightedVarSum += c.Volume * d * d
	}
	sigma := math.Sqrt(weightedVarSum / vv)

	slope := 0.0
	if len(session) >= 2 && sigma > epsilon {
		prevSession := session[:len(session)-1]
		var pv2, vv2 float64
		for _, c := range prevSession {
			typical := (c.High + c.Low + c.Close) / 3
			pv2 += typical * c.Volume
			vv2 += c.Volume
		}
		if vv2 > 0 {
			prevVWAP := pv2 / vv2
			slope = (vwap - prevVWAP) / sigma
		}
	}

	return VWAPResult{VWAP: vwap, Upper: vwap + sigma, Lower: vwap - sigma, Slope: slope}
}

// sessionCandles returns the candles belonging to the same UTC calendar day
// as `asOf`.
func sessionCandles(candles []model.Candle, asOf time.Time) []model.Candle {
	y, m, d := asOf.UTC().Date()
	boundary := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	idx := len(candles)
	for i, c := range candles {
		if !c.OpenTime.UTC().Before(boundary) {
			idx = i
			break
		}
	}
	return candles[idx:]
}

// Supertrend returns the Supertrend line value and whether price is
// currently above it (an uptrend), using `period`-bar ATR at `mult`
// multiplier.
func Supertrend(candles []model.Candle, period int, mult float64) (value float64, up bool) {
	if len(candles) < period+2 {
		return 0, false
	}

	var finalUpper, finalLower float64
	trendUp := true

	for i := period; i < len(candles); i++ {
		window := candles[:i+1]
		atr := ATR(window, period)
		c := candles[i]
		mid := (c.High + c.Low) / 2
		basicUpper := mid + mult*atr
		basicLower := mid - mult*atr

		if i == period {
			finalUpper = basicUpper
			finalLower = basicLower
			trendUp = c.Close >= finalLower
			continue
		}

		prevClose := candles[i-1].Close
		if basicUpper < finalUpper || prevClose > finalUpper {
			finalUpper = basicUpper
		}
		if basicLower > finalLower || prevClose < finalLower {
			finalLower = basicLower
		}

		if trendUp {
			if c.Close < finalLower {
				trendUp = false
			}
		} else {
			if c.Close > finalUpper {
				trendUp = true
			}
		}
	}

	if trendUp {
		return finalLower, true
	}
	return finalUpper, false
}

// SessionHighLow returns the high/low of the prior UTC calendar day
// relative to the last candle in the slice.
func SessionHighLow(candles []model.Candle) (high, low float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	y, m, d := candles[len(candles)-1].OpenTime.UTC().Date()
	todayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	priorStart := todayStart.AddDate(0, 0, -1)

	first := true
	for _, c := range candles {
		ot := c.OpenTime.UTC()
		if ot.Before(priorStart) || !ot.Before(todayStart) {
			continue
		}
		if first {
			high, low = c.High, c.Low
			first = false
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// AsiaSessionHighLow returns the high/low of the most recent Asia-session
// window (per `win`, in UTC clock hours) that ends before the last candle.
func AsiaSessionHighLow(candles []model.Candle, win AsiaSessionWindow) (high, low float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	last := candles[len(candles)-1].OpenTime.UTC()
	y, m, d := last.Date()
	windowStart := time.Date(y, m, d, win.StartHour, 0, 0, 0, time.UTC)
	windowEnd := time.Date(y, m, d, win.EndHour, 0, 0, 0, time.UTC)
	if windowEnd.Before(windowStart) {
		// wrapping window (e.g. 23:00-07:00): it ends on the following day
		windowEnd = windowEnd.AddDate(0, 0, 1)
	}
	// step back to the most recent window that has ended by the last candle
	for windowEnd.After(last) {
		windowStart = windowStart.AddDate(0, 0, -1)
		windowEnd = windowEnd.AddDate(0, 0, -1)
	}

	first := true
	for _, c := range candles {
		ot := c.OpenTime.UTC()
		if ot.Before(windowStart) || !ot.Before(windowEnd) {
			continue
		}
		if first {
			high, low = c.High, c.Low
			first = false
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// VolumeMean returns the rolling mean volume over the last `period` bars.
func VolumeMean(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	window := candles[len(candles)-period:]
	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	return sum / float64(period)
}

// TailRatio returns the wick length of the last candle as a fraction of its
// body, used by LSVR's sweep-confirmation rule.
func TailRatio(c model.Candle) float64 {
	body := math.Abs(c.Close - c.Open)
	if body < epsilon {
		return 0
	}
	var tail float64
	if c.Close >= c.Open {
		tail = c.Open - c.Low
	} else {
		tail = c.High - c.Open
	}
	return tail / body
}

// Compute turns the last N candles of one (symbol, timeframe) into a full
// IndicatorSnapshot Candles must be ordered oldest-first,
// newest-last, and contain only closed bars.
func Compute(symbol, timeframe string, candles []model.Candle, asia AsiaSessionWindow) model.IndicatorSnapshot {
	if len(candles) == 0 {
		return model.IndicatorSnapshot{Symbol: symbol, Timeframe: timeframe}
	}

	last := candles[len(candles)-1]
	dm := ADX(candles, 14)
	bb := Bollinger(candles, 20, 2)
	vwap := SessionVWAP(candles)
	stHigh, stLow := SessionHighLow(candles)
	asiaHigh, asiaLow := AsiaSessionHighLow(candles, asia)
	supertrendVal, supertrendUp := Supertrend(candles, 10, 3)

	return model.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		AsOf:      last.OpenTime,

		SMA:  SMA(candles, 20),
		EMAs: map[int]float64{9: EMA(candles, 9), 21: EMA(candles, 21), 200: EMA(candles, 200)},

		ATR14: ATR(candles, 14),
		RSI14: RSI(candles, 14),

		ADX14:   dm.ADX,
		PlusDI:  dm.PlusDI,
		MinusDI: dm.MinusDI,

		BBMean:       bb.Mean,
		BBUpper:      bb.Upper,
		BBLower:      bb.Lower,
		BBWidth:      bb.Width,
		BBWidthPctRk: BollingerWidthPercentileRank(candles, 20, 100, 2),

		StochRSI: StochRSI(candles, 14, 14, 3, 3),

		VWAP:      vwap.VWAP,
		VWAPUpper: vwap.Upper,
		VWAPLower: vwap.Lower,
		VWAPSlope: vwap.Slope,

		Supertrend:   supertrendVal,
		SupertrendUp: supertrendUp,

		SessionHigh:     stHigh,
		SessionLow:      stLow,
		AsiaSessionHigh: asiaHigh,
		AsiaSessionLow:  asiaLow,

		VolumeMean: VolumeMean(candles, 20),

		LastClose: last.Close,
		LastTail:  TailRatio(last),
	}
}
