package bitunix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpengine/internal/model"
)

// TestFetchTicker_PrefersFreshStreamQuote proves the monitor loop's price
// reads come from the stream cache when it is warm: the REST base URL here
// is unroutable, so any fallback attempt would surface as an error.
func TestFetchTicker_PrefersFreshStreamQuote(t *testing.T) {
	c := NewREST("k", "s", "http://127.0.0.1:0", 100*time.Millisecond)
	c.updateQuoteFromTrade(Trade{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()})

	q, err := c.FetchTicker("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, q.Last)
}

func TestFetchTicker_StaleQuoteFallsBackToREST(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]string{"last": "51000", "bid": "50990", "ask": "51010", "volume24h": "123456789"},
		})
	}))
	defer server.Close()

	c := NewREST("k", "s", server.URL, time.Second)
	c.streamMu.Lock()
	c.quoteCache["BTCUSDT"] = cachedQuote{
		quote: model.Quote{Symbol: "BTCUSDT", Last: 50000},
		at:    time.Now().Add(-time.Minute),
	}
	c.streamMu.Unlock()

	q, err := c.FetchTicker("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 51000.0, q.Last, "a stale stream quote must not be served")
	assert.Equal(t, 123456789.0, q.Volume24h)
}

func TestFetchDepth_ConvertsStreamVolumesToUSD(t *testing.T) {
	c := NewREST("k", "s", "http://127.0.0.1:0", 100*time.Millisecond)
	c.updateDepth(Depth{Symbol: "BTCUSDT", BidVol: 2, AskVol: 3, LastPrice: 50000, Ts: time.Now()})

	d, err := c.FetchDepth("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, d.BidDepthUSD)
	assert.Equal(t, 150000.0, d.AskDepthUSD)
	assert.Equal(t, 100000.0, d.MinDepthUSD())
}

func TestFreshQuote_ExpiresAfterFreshnessWindow(t *testing.T) {
	c := NewREST("k", "s", "http://127.0.0.1:0", 100*time.Millisecond)
	c.updateQuoteFromTrade(Trade{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now().Add(-streamFreshness - time.Second)})

	_, ok := c.freshQuote("BTCUSDT")
	assert.False(t, ok)
	_, ok = c.freshDepth("BTCUSDT")
	assert.False(t, ok, "no depth was ever cached")
}

// TestConsumeStream_WarmsQuoteCache drives the full path the engine relies
// on: a live WebSocket feed consumed into the client's quote cache, which
// FetchTicker then serves without a REST round-trip.
func TestConsumeStream_WarmsQuoteCache(t *testing.T) {
	server := streamServer(tradePayload("BTCUSDT", "42000.0", "0.5", 1))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := NewREST("k", "s", "http://127.0.0.1:0", 100*time.Millisecond)
	ws := NewWS(wsURL(server))
	go c.ConsumeStream(ctx, ws, []string{"BTCUSDT"}, 50*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q, ok := c.freshQuote("BTCUSDT"); ok {
			assert.Equal(t, 42000.0, q.Last)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stream never warmed the quote cache")
}
