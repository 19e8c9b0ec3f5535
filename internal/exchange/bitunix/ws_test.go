package bitunix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpengine/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// streamServer upgrades each connection, reads the subscribe message, writes
// the given payloads, then idles so the client keeps the connection open.
func streamServer(payloads ...map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, p := range payloads {
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}))
}

// The payloads use []any throughout so they parse identically whether fed
// straight into parseTrade/parseDepth or round-tripped through a WebSocket.
func tradePayload(symbol, price, qty string, seq int) map[string]any {
	return map[string]any{
		"ch": "trade", "symbol": symbol, "seq": seq,
		"data": []any{map[string]any{"p": price, "v": qty}},
	}
}

func depthPayload(symbol string, seq int) map[string]any {
	return map[string]any{
		"ch": "depth_books", "symbol": symbol, "seq": seq,
		"data": map[string]any{
			"b": []any{[]any{"49950.0", "1.5"}},
			"a": []any{[]any{"50050.0", "2.0"}},
		},
	}
}

func TestStream_DeliversTradesAndDepths(t *testing.T) {
	server := streamServer(tradePayload("BTCUSDT", "50000.0", "0.1", 1), depthPayload("BTCUSDT", 2))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws := NewWS(wsURL(server))
	trades := make(chan Trade, 10)
	depths := make(chan Depth, 10)
	errs := make(chan error, 10)
	go ws.Stream(ctx, []string{"BTCUSDT"}, trades, depths, errs, 50*time.Millisecond)

	select {
	case trade := <-trades:
		assert.Equal(t, "BTCUSDT", trade.Symbol)
		assert.Equal(t, 50000.0, trade.Price)
		assert.Equal(t, 0.1, trade.Qty)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trade")
	}

	select {
	case d := <-depths:
		assert.Equal(t, 1.5, d.BidVol)
		assert.Equal(t, 2.0, d.AskVol)
		// mid of best bid/ask, the price the depth cache converts volumes with
		assert.Equal(t, 50000.0, d.LastPrice)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for depth")
	}
}

func TestStream_ReconnectsAfterServerClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	ws := NewWS(wsURL(server))
	trades := make(chan Trade, 10)
	depths := make(chan Depth, 10)
	errs := make(chan error, 50)
	go ws.Stream(ctx, []string{"BTCUSDT"}, trades, depths, errs, 10*time.Millisecond)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case err := <-errs:
			if strings.Contains(err.Error(), "ws reconnect") {
				return
			}
		case <-deadline:
			t.Fatal("no reconnect attempt observed")
		}
	}
}

func TestParseTrade(t *testing.T) {
	trades := make(chan Trade, 1)
	require.NoError(t, parseTrade(tradePayload("BTCUSDT", "50000.0", "0.1", 1), trades, 1))
	trade := <-trades
	assert.Equal(t, 50000.0, trade.Price)
	assert.Equal(t, 0.1, trade.Qty)
	assert.Equal(t, int64(1), trade.Seq)

	assert.Error(t, parseTrade(map[string]any{"ch": "trade", "data": []any{}}, trades, 0), "missing symbol and empty data")
	assert.Error(t, parseTrade(map[string]any{"ch": "trade", "symbol": "BTCUSDT", "data": "nope"}, trades, 0))
	assert.Error(t, parseTrade(tradePayload("BTCUSDT", "-1", "0.1", 1), trades, 1), "non-positive price")
}

func TestParseDepth(t *testing.T) {
	depths := make(chan Depth, 1)
	require.NoError(t, parseDepth(depthPayload("BTCUSDT", 2), depths, 2))
	d := <-depths
	assert.Equal(t, 50000.0, d.LastPrice)

	assert.Error(t, parseDepth(map[string]any{"ch": "depth_books", "symbol": "BTCUSDT", "data": "nope"}, depths, 0))
	crossed := map[string]any{
		"ch": "depth_books", "symbol": "BTCUSDT",
		"data": map[string]any{
			"b": []any{[]any{"50100.0", "1.5"}},
			"a": []any{[]any{"49900.0", "2.0"}},
		},
	}
	assert.Error(t, parseDepth(crossed, depths, 0), "bid above ask is not a book")
}

// TestProcessMessage_RecordsMetrics verifies that a wired WS records trades,
// depths, and parse errors through the engine's metrics wrapper.
func TestProcessMessage_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	mw := metrics.NewWrapper(m)

	ws := NewWS("ws://example.com")
	ws.SetMetrics(mw)

	trades := make(chan Trade, 10)
	depths := make(chan Depth, 10)
	errs := make(chan error, 10)

	tradeMsg := []byte(`{"ch":"trade","symbol":"BTCUSDT","seq":1,"data":[{"p":"50000.0","v":"1.0"}]}`)
	depthMsg := []byte(`{"ch":"depth_books","symbol":"BTCUSDT","seq":2,"data":{"a":[["50100.0","1.5"]],"b":[["49900.0","2.0"]]}}`)
	badMsg := []byte(`not json`)

	for i := 0; i < 5; i++ {
		ws.processMessage(tradeMsg, trades, depths, errs)
	}
	for i := 0; i < 3; i++ {
		ws.processMessage(depthMsg, trades, depths, errs)
	}
	ws.processMessage(badMsg, trades, depths, errs)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.TradesReceived))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DepthsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
}
