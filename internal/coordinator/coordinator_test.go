package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpengine/internal/cfg"
	"perpengine/internal/exchange/bitunix"
	"perpengine/internal/indicators"
	"perpengine/internal/model"
	"perpengine/internal/risk"
)

// fakeExchange implements the coordinator's Exchange interface plus the risk
// engine's leverage source, returning canned data.
type fakeExchange struct {
	meta      model.SymbolMeta
	quote     model.Quote
	fundingAt time.Time
}

func (f *fakeExchange) FetchTicker(symbol string) (model.Quote, error) { return f.quote, nil }
func (f *fakeExchange) FetchDepth(symbol string) (model.DepthSnapshot, error) {
	return model.DepthSnapshot{}, nil
}
func (f *fakeExchange) FetchCandles(symbol string, interval bitunix.KlineInterval, limit int) ([]model.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) SymbolMeta(symbol string) (model.SymbolMeta, error) { return f.meta, nil }
func (f *fakeExchange) FetchEquity() (float64, error)                      { return 1000, nil }
func (f *fakeExchange) FetchNextFundingTime(symbol string) (time.Time, error) {
	return f.fundingAt, nil
}
func (f *fakeExchange) FetchPositions() ([]bitunix.PositionInfo, error) { return nil, nil }
func (f *fakeExchange) ListConditional(symbol string) ([]bitunix.ConditionalInfo, error) {
	return nil, nil
}

func (f *fakeExchange) MaxLeverage(symbol string) (int, error)        { return 25, nil }
func (f *fakeExchange) SetLeverage(symbol string, leverage int) error { return nil }

func newTestCoordinator(fx *fakeExchange, settings cfg.Settings) *Coordinator {
	rk := risk.New(settings, fx)
	return New(settings, fx, nil, nil, rk, nil, indicators.DefaultAsiaSession, nil)
}

func TestInFundingBlackout_WithinWindowSuppressesEntry(t *testing.T) {
	fx := &fakeExchange{fundingAt: time.Now().Add(60 * time.Second)}
	c := newTestCoordinator(fx, cfg.Settings{FundingBlackoutSeconds: 120})

	assert.True(t, c.inFundingBlackout("BTCUSDT"))
}

func TestInFundingBlackout_OutsideWindowAllowsEntry(t *testing.T) {
	fx := &fakeExchange{fundingAt: time.Now().Add(10 * time.Minute)}
	c := newTestCoordinator(fx, cfg.Settings{FundingBlackoutSeconds: 120})

	assert.False(t, c.inFundingBlackout("BTCUSDT"))
}

func TestRefreshSymbolMeta_AssignsBucketAndSector(t *testing.T) {
	fx := &fakeExchange{
		meta:  model.SymbolMeta{SymbolID: "BTCUSDT", PriceTick: 0.01, SizeLot: 0.001},
		quote: model.Quote{Symbol: "BTCUSDT", Volume24h: 500_000_000},
	}
	c := newTestCoordinator(fx, cfg.Settings{})

	meta, err := c.RefreshSymbolMeta("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, model.BucketMajor, meta.Bucket)
	assert.Equal(t, "store-of-value", meta.Sector)
}
