package bitunix

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"perpengine/internal/model"
)

// streamFreshness bounds how long a WebSocket-derived quote or depth
// snapshot is trusted before FetchTicker/FetchDepth fall back to a REST
// call.
const streamFreshness = 3 * time.Second

type cachedQuote struct {
	quote model.Quote
	at    time.Time
}

type cachedDepth struct {
	depth model.DepthSnapshot
	at    time.Time
}

// ConsumeStream subscribes to the real-time trade and depth feed for
// symbols and keeps Client's internal quote/depth cache warm until ctx is
// cancelled, reconnecting with the WS type's own exponential backoff.
// FetchTicker and FetchDepth prefer this cache whenever it is fresh,
// falling back to REST polling otherwise.
func (c *Client) ConsumeStream(ctx context.Context, ws *WS, symbols []string, ping time.Duration) {
	trades := make(chan Trade, defaultBufferSize)
	depths := make(chan Depth, defaultBufferSize)
	errs := make(chan error, defaultBufferSize)

	go func() {
		if err := ws.Stream(ctx, symbols, trades, depths, errs, ping); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("market data stream terminated")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-trades:
			c.updateQuoteFromTrade(t)
		case d := <-depths:
			c.updateDepth(d)
		case err := <-errs:
			log.Warn().Err(err).Msg("market data stream error")
		}
	}
}

func (c *Client) updateQuoteFromTrade(t Trade) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	prev := c.quoteCache[t.Symbol].quote
	c.quoteCache[t.Symbol] = cachedQuote{
		quote: model.Quote{Symbol: t.Symbol, Last: t.Price, Bid: prev.Bid, Ask: prev.Ask, Volume24h: prev.Volume24h},
		at:    t.Ts,
	}
}

func (c *Client) updateDepth(d Depth) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	c.depthCache[d.Symbol] = cachedDepth{
		depth: model.DepthSnapshot{Symbol: d.Symbol, BidDepthUSD: d.BidVol * d.LastPrice, AskDepthUSD: d.AskVol * d.LastPrice},
		at:    d.Ts,
	}
	if q, ok := c.quoteCache[d.Symbol]; ok {
		q.quote.Bid = d.LastPrice
		q.quote.Ask = d.LastPrice
		c.quoteCache[d.Symbol] = q
	}
}

func (c *Client) freshQuote(symbol string) (model.Quote, bool) {
	c.streamMu.RLock()
	defer c.streamMu.RUnlock()
	cq, ok := c.quoteCache[symbol]
	if !ok || time.Since(cq.at) > streamFreshness {
		return model.Quote{}, false
	}
	return cq.quote, true
}

func (c *Client) freshDepth(symbol string) (model.DepthSnapshot, bool) {
	c.streamMu.RLock()
	defer c.streamMu.RUnlock()
	cd, ok := c.depthCache[symbol]
	if !ok || time.Since(cd.at) > streamFreshness {
		return model.DepthSnapshot{}, false
	}
	return cd.depth, true
}
