// Package model holds the core data types shared by every stage of the
// trading engine: indicator snapshots, symbol metadata, candidate signals,
// sizing decisions, live positions, and conditional-order descriptors.
//
// Types here carry no behavior beyond small derived-field helpers; the
// packages that own a lifecycle (risk, lifecycle, router) mutate or derive
// from these structs, but this package itself never holds state.
package model

import "time"

// Candle is an immutable OHLCV record for one closed bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// IndicatorSnapshot is every indicator value computed from the last N
// candles of one timeframe for one symbol, as of the most recently closed
// bar. Snapshots are recomputed every scan and never mutated in place.
type IndicatorSnapshot struct {
	Symbol    string
	Timeframe string
	AsOf      time.Time

	SMA  float64
	EMAs map[int]float64

	ATR14 float64
	RSI14 float64

	ADX14   float64
	PlusDI  float64
	MinusDI float64

	BBMean       float64
	BBUpper      float64
	BBLower      float64
	BBWidth      float64
	BBWidthPctRk float64 // rolling 100-bar percentile rank of BBWidth

	StochRSI float64 // smoothed (3,3) Stochastic RSI over RSI(14) on 14-period window

	VWAP      float64
	VWAPUpper float64 // VWAP + 1 sigma
	VWAPLower float64 // VWAP - 1 sigma
	VWAPSlope float64 // in units of sigma per bar

	Supertrend      float64
	SupertrendUp    bool // true when price is above the Supertrend line
	SessionHigh     float64
	SessionLow      float64
	AsiaSessionHigh float64
	AsiaSessionLow  float64

	VolumeMean float64 // rolling mean volume

	LastClose float64
	LastTail  float64 // wick length of the most recent candle as a fraction of its body
}

// Bucket parameterizes universe and regime thresholds per symbol class.
type Bucket string

const (
	BucketMajor Bucket = "major"
	BucketMid   Bucket = "mid"
	BucketMicro Bucket = "micro"
)

// SymbolMeta is exchange-declared metadata for one tradable symbol, loaded
// at startup and refreshed hourly.
type SymbolMeta struct {
	SymbolID              string
	Bucket                Bucket
	Sector                string
	PriceTick             float64
	SizeLot               float64
	PriceDecimals         int
	SizeDecimals          int
	MaxLeverage           int
	MaintenanceMarginRate float64
}

// Side is a trade direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// StrategyKind tags which evaluator produced a signal, used by the
// lifecycle manager to apply strategy-specific tripwires without dynamic
// dispatch.
type StrategyKind string

const (
	StrategyLSVR          StrategyKind = "lsvr"
	StrategyVWAPMR        StrategyKind = "vwap_mr"
	StrategyTrendFallback StrategyKind = "trend_fallback"
)

// RegimeLabel classifies a symbol/timeframe as range-bound or trending.
type RegimeLabel string

const (
	RegimeRange RegimeLabel = "range"
	RegimeTrend RegimeLabel = "trend"
)

// TPLadderEntry is one rung of a take-profit ladder: a trigger price and the
// fraction of the position closed when it is crossed.
type TPLadderEntry struct {
	TriggerPrice float64
	SizeFraction float64
}

// Signal is a candidate trade emitted by a strategy evaluator. It is either
// promoted to a Position by the risk engine and router, or discarded at a
// gate.
type Signal struct {
	Symbol          string
	Side            Side
	StrategyKind    StrategyKind
	EntryRefPrice   float64
	StopRefPrice    float64
	TPLadder        []TPLadderEntry
	TimeStopSeconds float64
	ConfluenceScore float64
	Regime          RegimeLabel

	// TripwireRef is a strategy-specific reference value consulted by the
	// lifecycle manager's tripwire check: for LSVR, the swept level a
	// re-sweep must re-cross; for VWAP-MR, the ATR at signal time used for
	// the "adverse candle >=1.7*ATR" check. Trend-Fallback has no tripwire
	// and leaves this zero.
	TripwireRef float64
}

// SizingDecision is the risk engine's output for one Signal: the contract
// count and risk reference prices, or the reason sizing failed.
type SizingDecision struct {
	Signal              Signal
	Leverage            int
	Contracts           float64
	EntryPriceReference float64
	StopPrice           float64
	LiqPrice            float64
	PassesGuards        bool
	ReasonIfFailed      string
}

// CloseReason records why a Position transitioned to Closed.
type CloseReason string

const (
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonTrailingTP  CloseReason = "trailing_tp"
	CloseReasonProfitFloor CloseReason = "min_profit_floor"
	CloseReasonTimeStop    CloseReason = "time_stop"
	CloseReasonManual      CloseReason = "manual"
	CloseReasonTripwire    CloseReason = "tripwire"
	CloseReasonExternal    CloseReason = "external"
)

// Phase is a Position's place in the lifecycle state machine.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseReconciling Phase = "reconciling"
	PhaseProtected   Phase = "protected"
	PhaseClosing     Phase = "closing"
	PhaseClosed      Phase = "closed"
	PhaseFailed      Phase = "failed"
	PhaseUnprotected Phase = "unprotected"
)

// CondKind is the kind of exchange-resident conditional order.
type CondKind string

const (
	CondKindStopLoss    CondKind = "stop_loss"
	CondKindProfitFloor CondKind = "profit_floor"
	CondKindTrailingTP  CondKind = "trailing_take_profit"
)

// TriggerRef is the price reference a conditional order's trigger is
// evaluated against.
type TriggerRef string

const (
	TriggerRefMark  TriggerRef = "mark"
	TriggerRefLast  TriggerRef = "last"
	TriggerRefIndex TriggerRef = "index"
)

// ConditionalOrder is the router's declarative descriptor for one
// exchange-resident stop-loss, profit-floor, or trailing-take-profit order.
// Lifecycle: created by the router, reconciled by the verification loop,
// deleted on position close.
type ConditionalOrder struct {
	Kind          CondKind
	Side          Side // the close side
	TriggerPrice  float64
	SizeReference float64 // absolute contracts
	CallbackRatio float64 // trailing only
	RefType       TriggerRef
	ExchangeID    string
}

// Position is owned exclusively by the lifecycle manager. RemainingContracts
// is monotonically non-increasing until terminal, and ActualFilledContracts
// is set exactly once, from the exchange's post-fill position snapshot.
type Position struct {
	// identity
	Symbol       string
	Side         Side
	StrategyKind StrategyKind
	OpenedAt     time.Time

	// sizing
	RequestedContracts    float64
	ActualFilledContracts float64
	RemainingContracts    float64
	EntryPrice            float64
	Leverage              int

	// risk refs
	StopPrice   float64
	LiqPrice    float64
	TPLadder    []TPLadderEntry
	TripwireRef float64

	// tracking
	PeakFavorablePrice float64
	TPHitCount         int
	TrailingActive     bool
	// TrailingActivation is the intended activation trigger of the live
	// trailing take-profit order: the profit-floor trigger initially, the
	// price at re-arm after TP1. The verification loop reconciles the
	// exchange-side order against this value.
	TrailingActivation float64

	// exchange refs — weak references (lookup tokens only)
	SLOrderID       string
	TPFloorOrderID  string
	TrailingOrderID string

	// lifecycle
	Phase           Phase
	TimeStopSeconds float64

	// terminal
	ClosedAt    time.Time
	CloseReason CloseReason
}

// FavorableMove returns how far price has moved in the position's favor
// relative to entry, as a signed fraction (positive is favorable).
func (p *Position) FavorableMove(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideLong {
		return (currentPrice - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - currentPrice) / p.EntryPrice
}

// UpdatePeakFavorable advances PeakFavorablePrice given a fresh price:
// highest seen for a long, lowest seen for a short.
func (p *Position) UpdatePeakFavorable(currentPrice float64) {
	if p.PeakFavorablePrice == 0 {
		p.PeakFavorablePrice = currentPrice
		return
	}
	if p.Side == SideLong && currentPrice > p.PeakFavorablePrice {
		p.PeakFavorablePrice = currentPrice
	} else if p.Side == SideShort && currentPrice < p.PeakFavorablePrice {
		p.PeakFavorablePrice = currentPrice
	}
}

// TradeJournalEvent is a structured record emitted on each Position state
// transition
type TradeJournalEvent struct {
	Timestamp          time.Time
	Symbol             string
	StrategyKind       StrategyKind
	Side               Side
	EventKind          string // Created, Reconciled-fill, Protected, Unprotected, TP-hit(i), Closing(reason), Closed
	Contracts          float64
	EntryPrice         float64
	StopPrice          float64
	TPLadder           []TPLadderEntry
	PeakFavorablePrice float64
	RealizedPnLPctROE  float64
	CloseReason        CloseReason
}

// Quote is a ticker snapshot used by the universe gate.
type Quote struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Volume24h float64
}

// SpreadBps returns the bid/ask spread in basis points of the mid price.
func (q Quote) SpreadBps() float64 {
	mid := (q.Bid + q.Ask) / 2
	if mid == 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 10000
}

// DepthSnapshot is top-of-book depth in USD notional, used by the universe
// gate alongside Quote.
type DepthSnapshot struct {
	Symbol      string
	BidDepthUSD float64
	AskDepthUSD float64
}

// MinDepthUSD returns the smaller of the two sides, the conservative
// top-of-book depth figure the gate compares against its threshold.
func (d DepthSnapshot) MinDepthUSD() float64 {
	if d.BidDepthUSD < d.AskDepthUSD {
		return d.BidDepthUSD
	}
	return d.AskDepthUSD
}
