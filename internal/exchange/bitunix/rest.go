// Package bitunix provides the exchange client implementation this engine
// drives: market data retrieval, position/order submission, and
// conditional-order management, against the Bitunix perpetual-futures REST
// and WebSocket API. It includes connection pooling, retry handling, and
// metrics integration, and implements the risk engine's LeverageSource and
// the router's ExchangeClient contracts.
package bitunix

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"perpengine/internal/model"

	"github.com/go-resty/resty/v2"
)

// Client provides REST API access to the Bitunix exchange.
// It includes HTTP connection pooling and retry mechanisms for reliable
// API communication.
type Client struct {
	key, secret, base string        // API credentials and base URL
	rest              *resty.Client // HTTP client with optimizations

	// streamMu guards quoteCache/depthCache, kept warm by ConsumeStream and
	// consulted by FetchTicker/FetchDepth before falling back to REST.
	streamMu   sync.RWMutex
	quoteCache map[string]cachedQuote
	depthCache map[string]cachedDepth
}

// NewREST creates a new REST client with optimized HTTP transport settings.
// It configures connection pooling, timeouts, and retry mechanisms for
// reliable API communication. Returns a client ready for trading operations.
func NewREST(key, secret, base string, timeout time.Duration) *Client {
	// Configure HTTP transport with connection pooling optimizations
	transport := &http.Transport{
		MaxIdleConns:        100,              // Max idle connections in total
		MaxIdleConnsPerHost: 10,               // Max idle connections per host
		IdleConnTimeout:     90 * time.Second, // Idle connection timeout
		DisableCompression:  false,            // Enable compression for bandwidth efficiency
		ForceAttemptHTTP2:   true,             // Use HTTP/2 if available for multiplexing
	}

	r := resty.New()
	r.SetTransport(transport)

	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}

	// Additional performance optimizations
	r.SetRetryCount(3)                     // Retry failed requests
	r.SetRetryWaitTime(1 * time.Second)    // Wait time between retries
	r.SetRetryMaxWaitTime(5 * time.Second) // Max wait time for retries
	r.EnableTrace()                        // Enable request tracing for performance monitoring

	return &Client{
		key:        key,
		secret:     secret,
		base:       base,
		rest:       r,
		quoteCache: make(map[string]cachedQuote),
		depthCache: make(map[string]cachedDepth),
	}
}

// OrderReq represents an order request to the Bitunix exchange.
// It contains all necessary fields for placing different types of orders
// including market orders, stop-loss, and take-profit orders.
type OrderReq struct {
	Symbol    string `json:"symbol"`              // Trading symbol (e.g., "BTCUSDT")
	Side      string `json:"side"`                // Order side: "BUY" or "SELL"
	TradeSide string `json:"tradeSide"`           // Trade side: "OPEN" or "CLOSE"
	Qty       string `json:"qty"`                 // Order quantity
	OrderType string `json:"orderType"`           // Order type: "MARKET", "STOP_LOSS", "TAKE_PROFIT"
	StopPrice string `json:"stopPrice,omitempty"` // Stop price for stop-loss/take-profit orders
}

// KlineInterval represents kline/candlestick intervals
type KlineInterval string

const (
	Interval1m  KlineInterval = "1m"
	Interval5m  KlineInterval = "5m"
	Interval15m KlineInterval = "15m"
	Interval1h  KlineInterval = "1h"
	Interval4h  KlineInterval = "4h"
	Interval1d  KlineInterval = "1d"
)

// Kline represents a candlestick data point
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// GetKlines fetches historical kline data
func (c *Client) GetKlines(symbol string, interval KlineInterval, startTime, endTime int64, limit int) ([]Kline, error) {
	path := "/api/v1/market/klines"

	params := map[string]string{
		"symbol":   symbol,
		"interval": string(interval),
		"limit":    strconv.Itoa(limit),
	}

	if startTime > 0 {
		params["startTime"] = strconv.FormatInt(startTime, 10)
	}
	if endTime > 0 {
		params["endTime"] = strconv.FormatInt(endTime, 10)
	}

	var klines []Kline
	resp, err := c.rest.R().
		SetQueryParams(params).
		SetResult(&klines).
		Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	return klines, nil
}

// GetTrades fetches recent trades
func (c *Client) GetTrades(symbol string, limit int) ([]Trade, error) {
	path := "/api/v1/market/trades"

	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	}

	var trades []Trade
	resp, err := c.rest.R().
		SetQueryParams(params).
		SetResult(&trades).
		Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode())
	}

	return trades, nil
}

// GetDepth fetches order book depth
func (c *Client) GetDepth(symbol string, limit int) (*Depth, error) {
	path := "/api/v1/market/depth"

	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	}

	var depthResp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}

	resp, err := c.rest.R().
		SetQueryParams(params).
		SetResult(&depthResp).
		Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode())
	}

	// Convert to Depth struct
	bidVol := 0.0
	askVol := 0.0
	lastPrice := 0.0

	// Sum up bid volumes
	for _, bid := range depthResp.Bids {
		if len(bid) >= 2 {
			vol, _ := strconv.ParseFloat(bid[1], 64)
			bidVol += vol
			if lastPrice == 0 && len(bid) > 0 {
				lastPrice, _ = strconv.ParseFloat(bid[0], 64)
			}
		}
	}

	// Sum up ask volumes
	for _, ask := range depthResp.Asks {
		if len(ask) >= 2 {
			vol, _ := strconv.ParseFloat(ask[1], 64)
			askVol += vol
		}
	}

	return &Depth{
		Symbol:    symbol,
		BidVol:    bidVol,
		AskVol:    askVol,
		LastPrice: lastPrice,
		Ts:        time.Now(),
	}, nil
}

// Response is the common envelope the Bitunix API wraps every response in.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign computes the Bitunix double-SHA256 request signature: sha256(nonce +
// timestamp + apiKey), then sha256(hex(that) + secret).
func sign(secret, nonce, apiKey, ts string) string {
	h1 := sha256.Sum256([]byte(nonce + ts + apiKey))
	h2 := sha256.Sum256([]byte(hex.EncodeToString(h1[:]) + secret))
	return hex.EncodeToString(h2[:])
}

// doRequest signs and issues one authenticated REST call, decoding the
// common response envelope.
func (c *Client) doRequest(method, path string, body interface{}) (*Response, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := sign(c.secret, ts, c.key, ts)

	req := c.rest.R().
		SetHeader("api-key", c.key).
		SetHeader("nonce", ts).
		SetHeader("timestamp", ts).
		SetHeader("sign", sig)

	resp := &Response{}
	var httpResp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		if m, ok := body.(map[string]string); ok {
			req.SetQueryParams(m)
		}
		httpResp, err = req.SetResult(resp).Get(c.base + path)
	default:
		httpResp, err = req.SetBody(body).SetResult(resp).Post(c.base + path)
	}
	if err != nil {
		return nil, fmt.Errorf("transient_io: %w", err)
	}
	if httpResp.StatusCode() >= 500 {
		return nil, fmt.Errorf("transient_io: status %d", httpResp.StatusCode())
	}
	if resp.Code != 0 {
		return resp, fmt.Errorf("venue_validation: %d %s", resp.Code, resp.Msg)
	}
	return resp, nil
}

// MaxLeverage returns the exchange-declared maximum leverage for symbol,
// implementing the risk engine's LeverageSource contract.
func (c *Client) MaxLeverage(symbol string) (int, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/market/symbol_leverage", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, err
	}
	var out struct {
		MaxLeverage int `json:"maxLeverage"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return 0, fmt.Errorf("venue_validation: decoding leverage response: %w", err)
	}
	return out.MaxLeverage, nil
}

// SymbolMeta returns exchange-declared tick/lot/margin metadata for symbol,
// used by the universe refresh and risk engine.
func (c *Client) SymbolMeta(symbol string) (model.SymbolMeta, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/market/instrument", map[string]string{"symbol": symbol})
	if err != nil {
		return model.SymbolMeta{}, err
	}
	var out struct {
		PriceTick             float64 `json:"priceTick,string"`
		SizeLot               float64 `json:"sizeLot,string"`
		PriceDecimals         int     `json:"priceDecimals"`
		SizeDecimals          int     `json:"sizeDecimals"`
		MaxLeverage           int     `json:"maxLeverage"`
		MaintenanceMarginRate float64 `json:"maintenanceMarginRate,string"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return model.SymbolMeta{}, fmt.Errorf("venue_validation: decoding instrument response: %w", err)
	}
	return model.SymbolMeta{
		SymbolID:              symbol,
		PriceTick:             out.PriceTick,
		SizeLot:               out.SizeLot,
		PriceDecimals:         out.PriceDecimals,
		SizeDecimals:          out.SizeDecimals,
		MaxLeverage:           out.MaxLeverage,
		MaintenanceMarginRate: out.MaintenanceMarginRate,
	}, nil
}

// FetchTicker returns the latest quote for symbol, preferring a fresh
// WebSocket-derived value
// over a REST round-trip.
func (c *Client) FetchTicker(symbol string) (model.Quote, error) {
	if q, ok := c.freshQuote(symbol); ok {
		return q, nil
	}
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/market/ticker", map[string]string{"symbol": symbol})
	if err != nil {
		return model.Quote{}, err
	}
	var out struct {
		Last      float64 `json:"last,string"`
		Bid       float64 `json:"bid,string"`
		Ask       float64 `json:"ask,string"`
		Volume24h float64 `json:"volume24h,string"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return model.Quote{}, fmt.Errorf("venue_validation: decoding ticker response: %w", err)
	}
	return model.Quote{Symbol: symbol, Last: out.Last, Bid: out.Bid, Ask: out.Ask, Volume24h: out.Volume24h}, nil
}

// FetchDepth returns top-of-book depth in USD notional for symbol, used by
// the universe gate, preferring a fresh WebSocket-derived snapshot over
// REST.
func (c *Client) FetchDepth(symbol string) (model.DepthSnapshot, error) {
	if d, ok := c.freshDepth(symbol); ok {
		return d, nil
	}
	d, err := c.GetDepth(symbol, 20)
	if err != nil {
		return model.DepthSnapshot{}, err
	}
	return model.DepthSnapshot{
		Symbol:      symbol,
		BidDepthUSD: d.BidVol * d.LastPrice,
		AskDepthUSD: d.AskVol * d.LastPrice,
	}, nil
}

// FetchCandles returns the last `limit` closed candles for symbol at the
// given interval.
func (c *Client) FetchCandles(symbol string, interval KlineInterval, limit int) ([]model.Candle, error) {
	klines, err := c.GetKlines(symbol, interval, 0, 0, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle, len(klines))
	for i, k := range klines {
		out[i] = model.Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
		}
	}
	return out, nil
}

// PositionInfo is one open position as reported by the exchange.
type PositionInfo struct {
	Symbol                string
	Side                  model.Side
	ActualFilledContracts float64
	EntryPrice            float64
	LiqPrice              float64
}

// FetchPositions returns all currently open positions on the account.
func (c *Client) FetchPositions() ([]PositionInfo, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/position/list", map[string]string{})
	if err != nil {
		return nil, err
	}
	var out []struct {
		Symbol     string  `json:"symbol"`
		Side       string  `json:"side"`
		Qty        float64 `json:"qty,string"`
		EntryPrice float64 `json:"entryPrice,string"`
		LiqPrice   float64 `json:"liqPrice,string"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("venue_validation: decoding positions response: %w", err)
	}
	positions := make([]PositionInfo, len(out))
	for i, p := range out {
		side := model.SideLong
		if p.Side == "SELL" || p.Side == "SHORT" {
			side = model.SideShort
		}
		positions[i] = PositionInfo{Symbol: p.Symbol, Side: side, ActualFilledContracts: p.Qty, EntryPrice: p.EntryPrice, LiqPrice: p.LiqPrice}
	}
	return positions, nil
}

// SubmitOrder submits a market entry order and returns the exchange's
// assigned order ID.
func (c *Client) SubmitOrder(o OrderReq) (string, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/v1/futures/trade/place_order", o)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(resp.Data, &out)
	return out.OrderID, nil
}

// ConditionalReq describes a stop-loss, profit-floor, or trailing
// take-profit order to place on the exchange.
type ConditionalReq struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Kind          string  `json:"kind"` // "stop_loss", "profit_floor", "trailing_take_profit"
	TriggerPrice  float64 `json:"triggerPrice,string"`
	Qty           string  `json:"qty"`
	CallbackRatio float64 `json:"callbackRatio,string,omitempty"`
	TriggerType   string  `json:"triggerType"` // "mark", "last", "index"
}

// PlaceConditional places one exchange-resident conditional order and
// returns its exchange ID.
func (c *Client) PlaceConditional(req ConditionalReq) (string, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/v1/futures/trade/place_tpsl_order", req)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(resp.Data, &out)
	return out.OrderID, nil
}

// ConditionalInfo is one exchange-resident conditional order as reported by
// the list endpoint, used by the verification loop to detect drift.
type ConditionalInfo struct {
	ExchangeID   string
	Symbol       string
	Kind         string
	TriggerPrice float64
	Qty          float64
}

// ListConditional returns all open conditional orders for symbol.
func (c *Client) ListConditional(symbol string) ([]ConditionalInfo, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/trade/get_pending_tpsl_order", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	var out []struct {
		OrderID      string  `json:"orderId"`
		Symbol       string  `json:"symbol"`
		Kind         string  `json:"kind"`
		TriggerPrice float64 `json:"triggerPrice,string"`
		Qty          float64 `json:"qty,string"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("venue_validation: decoding conditional list response: %w", err)
	}
	infos := make([]ConditionalInfo, len(out))
	for i, o := range out {
		infos[i] = ConditionalInfo{ExchangeID: o.OrderID, Symbol: o.Symbol, Kind: o.Kind, TriggerPrice: o.TriggerPrice, Qty: o.Qty}
	}
	return infos, nil
}

// CancelConditional cancels one exchange-resident conditional order by ID.
func (c *Client) CancelConditional(exchangeID string) error {
	_, err := c.doRequest(http.MethodPost, "/api/v1/futures/trade/cancel_tpsl_order", map[string]string{"orderId": exchangeID})
	return err
}

// ModifyConditional updates the trigger price of an existing conditional
// order in place.
func (c *Client) ModifyConditional(exchangeID string, newTrigger float64) error {
	_, err := c.doRequest(http.MethodPost, "/api/v1/futures/trade/modify_tpsl_order", map[string]interface{}{
		"orderId":      exchangeID,
		"triggerPrice": strconv.FormatFloat(newTrigger, 'f', -1, 64),
	})
	return err
}

// FetchEquity returns the account's available margin balance, the equity
// figure the sizing engine's margin_fraction_per_trade is applied against.
func (c *Client) FetchEquity() (float64, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/account", map[string]string{})
	if err != nil {
		return 0, err
	}
	var out struct {
		Equity float64 `json:"equity,string"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return 0, fmt.Errorf("venue_validation: decoding account response: %w", err)
	}
	return out.Equity, nil
}

// FetchNextFundingTime returns the next funding print timestamp for symbol,
// used by the concurrency coordinator's funding-blackout window.
func (c *Client) FetchNextFundingTime(symbol string) (time.Time, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/futures/market/funding_time", map[string]string{"symbol": symbol})
	if err != nil {
		return time.Time{}, err
	}
	var out struct {
		NextFundingTime int64 `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return time.Time{}, fmt.Errorf("venue_validation: decoding funding time response: %w", err)
	}
	return time.UnixMilli(out.NextFundingTime).UTC(), nil
}
