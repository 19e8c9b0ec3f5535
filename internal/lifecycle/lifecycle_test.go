package lifecycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpengine/internal/cfg"
	"perpengine/internal/exchange/bitunix"
	"perpengine/internal/model"
	"perpengine/internal/risk"
	"perpengine/internal/router"
)

// fakeExchange implements router.ExchangeClient plus the risk engine's
// leverage source, the collaborators lifecycle.Manager reaches through.
type fakeExchange struct {
	meta model.SymbolMeta

	filledPosition *bitunix.PositionInfo

	placeConditionalErr error
	conditionalID       string
	placeCalls          int

	listed []bitunix.ConditionalInfo

	leverage    int
	submitCalls int
}

func (f *fakeExchange) SymbolMeta(symbol string) (model.SymbolMeta, error) { return f.meta, nil }
func (f *fakeExchange) MaxLeverage(symbol string) (int, error)             { return f.leverage, nil }
func (f *fakeExchange) SetLeverage(symbol string, leverage int) error      { return nil }

func (f *fakeExchange) SubmitOrder(o bitunix.OrderReq) (string, error) {
	f.submitCalls++
	return "order-1", nil
}

func (f *fakeExchange) FetchPositions() ([]bitunix.PositionInfo, error) {
	if f.filledPosition == nil {
		return nil, nil
	}
	return []bitunix.PositionInfo{*f.filledPosition}, nil
}

func (f *fakeExchange) PlaceConditional(req bitunix.ConditionalReq) (string, error) {
	f.placeCalls++
	if f.placeConditionalErr != nil {
		return "", f.placeConditionalErr
	}
	return fmt.Sprintf("%s-%d", f.conditionalID, f.placeCalls), nil
}

func (f *fakeExchange) ListConditional(symbol string) ([]bitunix.ConditionalInfo, error) {
	return f.listed, nil
}

func (f *fakeExchange) CancelConditional(exchangeID string) error { return nil }

func (f *fakeExchange) ModifyConditional(exchangeID string, newTrigger float64) error { return nil }

func testMeta() model.SymbolMeta {
	return model.SymbolMeta{
		SymbolID:              "BTCUSDT",
		Bucket:                model.BucketMajor,
		Sector:                "layer1",
		PriceTick:             0.01,
		SizeLot:               0.001,
		PriceDecimals:         2,
		SizeDecimals:          3,
		MaxLeverage:           25,
		MaintenanceMarginRate: 0.005,
	}
}

func testSettings() cfg.Settings {
	return cfg.Settings{
		Leverage:               25,
		MarginFractionPerTrade: 0.10,
		LiqGuards: cfg.LiqGuards{
			MaxStopPct:               0.028,
			MinAbsBufferPct:          0.012,
			MinFractionOfLiqDistance: 0.30,
			MaxShrinkSteps:           5,
		},
		Concurrency:      cfg.Concurrency{MaxSymbols: 3, MaxPerSector: 2},
		TPSLMaxAttempts:  1,
		TPSLBackoffBase:  time.Millisecond,
		MinProfitROE:     0.025,
		TrailingCallback: 0.003,
		SLVerifySeconds:  time.Minute,
	}
}

func testSignal() model.SizingDecision {
	return model.SizingDecision{
		Signal: model.Signal{
			Symbol:       "BTCUSDT",
			Side:         model.SideLong,
			StrategyKind: model.StrategyLSVR,
			TPLadder: []model.TPLadderEntry{
				{TriggerPrice: 100.40, SizeFraction: 0.75},
				{TriggerPrice: 101.00, SizeFraction: 0.20},
				{TriggerPrice: 102.80, SizeFraction: 0.05},
			},
			TimeStopSeconds: 1200,
		},
		Leverage:            25,
		Contracts:           25,
		EntryPriceReference: 100.00,
		StopPrice:           98.60,
		LiqPrice:            96.50,
		PassesGuards:        true,
	}
}

func newTestManager(fx *fakeExchange, settings cfg.Settings) *Manager {
	r := router.New(fx, 3, time.Millisecond)
	rk := risk.New(settings, fx)
	return NewManager(r, rk, nil, settings, nil)
}

// TestOpen_ReachesProtected covers the Created -> Reconciling -> Protected
// happy path: the fill is observed from the positions endpoint (never the
// requested size), and all three conditional orders are sized from it.
func TestOpen_ReachesProtected(t *testing.T) {
	fx := &fakeExchange{
		meta:           testMeta(),
		filledPosition: &bitunix.PositionInfo{Symbol: "BTCUSDT", Side: model.SideLong, ActualFilledContracts: 25, EntryPrice: 100.00, LiqPrice: 96.50},
		conditionalID:  "cond",
		leverage:       25,
	}
	m := newTestManager(fx, testSettings())

	err := m.Open(testSignal(), testMeta())
	require.NoError(t, err)

	pos, ok := m.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, model.PhaseProtected, pos.Phase)
	assert.Equal(t, 25.0, pos.ActualFilledContracts)
	assert.Equal(t, 25.0, pos.RemainingContracts)
	assert.NotEmpty(t, pos.SLOrderID)
	assert.NotEmpty(t, pos.TPFloorOrderID)
	assert.NotEmpty(t, pos.TrailingOrderID)
}

// TestOpen_UnprotectedFillForcesClose covers the Unprotected alarm path: a
// fill observed with every TP/SL placement attempt failing transitions to
// Unprotected and issues an immediate market close rather than leaving the
// remaining contracts exposed.
func TestOpen_UnprotectedFillForcesClose(t *testing.T) {
	fx := &fakeExchange{
		meta:                testMeta(),
		filledPosition:      &bitunix.PositionInfo{Symbol: "BTCUSDT", Side: model.SideLong, ActualFilledContracts: 25, EntryPrice: 100.00, LiqPrice: 96.50},
		placeConditionalErr: fmt.Errorf("insufficient_position: fill not visible yet"),
		leverage:            25,
	}
	settings := testSettings()
	m := newTestManager(fx, settings)

	err := m.Open(testSignal(), testMeta())
	require.Error(t, err)

	// closeLocked runs synchronously inside enterUnprotected's close attempt,
	// so the position is gone from the live map by the time Open returns.
	_, ok := m.Snapshot("BTCUSDT")
	assert.False(t, ok)
}

// TestCanOpen_ConcurrencyCaps checks a candidate is dropped once the global
// concurrency cap is reached; with the per-sector cap also full, max_symbols
// is the reason reported.
func TestCanOpen_ConcurrencyCaps(t *testing.T) {
	fx := &fakeExchange{meta: testMeta(), leverage: 25}
	settings := testSettings()
	settings.Concurrency = cfg.Concurrency{MaxSymbols: 1, MaxPerSector: 1}
	m := newTestManager(fx, settings)

	m.insert(&model.Position{Symbol: "ETHUSDT"}, "layer1")

	allowed, reason := m.CanOpen(testMeta())
	assert.False(t, allowed)
	assert.Equal(t, "max_symbols", reason)
}

// TestMonitorOne_BotSideStopCloses covers the monitor loop's bot-side stop
// check: a freshly observed price crossing stop_price closes the position
// at market even though the exchange-side stop order is still in place.
func TestMonitorOne_BotSideStopCloses(t *testing.T) {
	fx := &fakeExchange{
		meta:           testMeta(),
		filledPosition: &bitunix.PositionInfo{Symbol: "BTCUSDT", Side: model.SideLong, ActualFilledContracts: 25, EntryPrice: 100.00, LiqPrice: 96.50},
		conditionalID:  "cond",
		leverage:       25,
	}
	m := newTestManager(fx, testSettings())
	require.NoError(t, m.Open(testSignal(), testMeta()))

	m.MonitorOne("BTCUSDT", PriceSnapshot{Current: 98.50}, testMeta())

	_, ok := m.Snapshot("BTCUSDT")
	assert.False(t, ok, "position should be closed once price crosses stop_price")
}

// TestRecover_ProtectedAndUnprotected covers startup recovery: a position
// with stop-loss and trailing orders attached recovers straight into
// Protected; one with nothing attached recovers into Unprotected and is
// force-closed at market. Recovery never re-submits entries.
func TestRecover_ProtectedAndUnprotected(t *testing.T) {
	fx := &fakeExchange{meta: testMeta(), leverage: 25}
	m := newTestManager(fx, testSettings())

	snaps := []PositionSnapshot{
		{Symbol: "BTCUSDT", Side: model.SideLong, Contracts: 10, EntryPrice: 100, LiqPrice: 96.5},
		{Symbol: "ETHUSDT", Side: model.SideShort, Contracts: 5, EntryPrice: 2000, LiqPrice: 2080},
	}
	conds := map[string][]ConditionalSnapshot{
		"BTCUSDT": {
			{ExchangeID: "sl-1", Kind: "stop_loss", TriggerPrice: 98.6},
			{ExchangeID: "tr-1", Kind: "trailing_take_profit", TriggerPrice: 100.1},
		},
	}
	metaLookup := func(symbol string) (model.SymbolMeta, error) {
		meta := testMeta()
		meta.SymbolID = symbol
		return meta, nil
	}

	err := m.Recover(snaps, metaLookup, func(symbol string) ([]ConditionalSnapshot, error) {
		return conds[symbol], nil
	})
	require.NoError(t, err)

	pos, ok := m.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, model.PhaseProtected, pos.Phase)
	assert.Equal(t, "sl-1", pos.SLOrderID)
	assert.Equal(t, "tr-1", pos.TrailingOrderID)
	assert.InDelta(t, 98.6, pos.StopPrice, 1e-9)

	_, ok = m.Snapshot("ETHUSDT")
	assert.False(t, ok, "position recovered without conditional orders should be force-closed")

	// Exactly one order was submitted: the ETHUSDT close. No entries.
	assert.Equal(t, 1, fx.submitCalls)
}
