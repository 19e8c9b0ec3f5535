// Package router submits market entries and manages exchange-resident
// conditional orders, wrapping the exchange client with a linear
// retry/backoff policy. It is the engine's single order-path chokepoint:
// market entries and exits, actual-fill reads, and conditional-order
// place/verify/cancel/modify all go through here.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"perpengine/internal/exchange/bitunix"
	"perpengine/internal/model"
)

// ExchangeClient is the subset of the exchange client the router drives.
// Implemented by internal/exchange/bitunix.Client.
type ExchangeClient interface {
	SubmitOrder(o bitunix.OrderReq) (string, error)
	FetchPositions() ([]bitunix.PositionInfo, error)
	PlaceConditional(req bitunix.ConditionalReq) (string, error)
	ListConditional(symbol string) ([]bitunix.ConditionalInfo, error)
	CancelConditional(exchangeID string) error
	ModifyConditional(exchangeID string, newTrigger float64) error
}

// Router is the only component permitted to call the exchange client for
// order and conditional-order operations.
type Router struct {
	client      ExchangeClient
	maxAttempts int
	backoffBase time.Duration
}

// New constructs a Router with the configured retry policy.
func New(client ExchangeClient, maxAttempts int, backoffBase time.Duration) *Router {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Router{client: client, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

// SubmitMarketEntry places a market order opening a new position, retrying
// transient_io failures with linear backoff up to maxAttempts.
// venue_validation errors are not retried: they indicate the order itself
// is malformed, not that the venue is unavailable.
func (r *Router) SubmitMarketEntry(symbol string, side model.Side, contracts float64) (string, error) {
	o := bitunix.OrderReq{
		Symbol:    symbol,
		Side:      sideToOrderSide(side),
		TradeSide: "OPEN",
		Qty:       formatQty(contracts),
		OrderType: "MARKET",
	}

	clientOrderID := uuid.New().String()
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		orderID, err := r.client.SubmitOrder(o)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", fmt.Errorf("venue_validation: %w", err)
		}
		delay := time.Duration(attempt+1) * r.backoffBase
		log.Warn().Str("client_order_id", clientOrderID).Str("symbol", symbol).
			Int("attempt", attempt+1).Dur("delay", delay).Err(err).
			Msg("market entry submission failed, retrying")
		time.Sleep(delay)
	}
	return "", fmt.Errorf("transient_io: market entry failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// SubmitMarketExit places a reduce-only market order closing contracts of
// an existing position, used by the lifecycle manager's bot-side stop,
// TP-ladder, tripwire, time-stop, and unprotected-fill close paths.
// closeSide is the side of the closing order itself (the opposite of the
// position's side), matching the conditional-order
// descriptor's Side field convention.
func (r *Router) SubmitMarketExit(symbol string, closeSide model.Side, contracts float64) (string, error) {
	o := bitunix.OrderReq{
		Symbol:    symbol,
		Side:      sideToOrderSide(closeSide),
		TradeSide: "CLOSE",
		Qty:       formatQty(contracts),
		OrderType: "MARKET",
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		orderID, err := r.client.SubmitOrder(o)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", fmt.Errorf("venue_validation: %w", err)
		}
		delay := time.Duration(attempt+1) * r.backoffBase
		log.Warn().Str("symbol", symbol).Int("attempt", attempt+1).Dur("delay", delay).Err(err).
			Msg("market exit submission failed, retrying")
		time.Sleep(delay)
	}
	return "", fmt.Errorf("transient_io: market exit failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// ReadActualFilled fetches the exchange's reported position for symbol/side,
// used to reconcile the requested size against what actually filled.
func (r *Router) ReadActualFilled(symbol string, side model.Side) (bitunix.PositionInfo, bool, error) {
	positions, err := r.client.FetchPositions()
	if err != nil {
		return bitunix.PositionInfo{}, false, fmt.Errorf("transient_io: %w", err)
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Side == side {
			return p, true, nil
		}
	}
	return bitunix.PositionInfo{}, false, nil
}

// PlaceConditional places one stop-loss, profit-floor, or trailing
// take-profit order described by d, retrying transient_io failures. The
// returned exchange ID goes into d's owning Position as a lookup token; the
// descriptor itself is not retained.
func (r *Router) PlaceConditional(symbol string, d model.ConditionalOrder) (string, error) {
	req := bitunix.ConditionalReq{
		Symbol:        symbol,
		Side:          sideToOrderSide(d.Side),
		Kind:          string(d.Kind),
		TriggerPrice:  d.TriggerPrice,
		Qty:           formatQty(d.SizeReference),
		CallbackRatio: d.CallbackRatio,
		TriggerType:   string(d.RefType),
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		id, err := r.client.PlaceConditional(req)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", fmt.Errorf("venue_validation: %w", err)
		}
		time.Sleep(time.Duration(attempt+1) * r.backoffBase)
	}
	return "", fmt.Errorf("transient_io: place_conditional failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// VerifyConditional compares the router's belief about a conditional order
// against what the exchange actually reports, returning false if the order
// is missing, its trigger disagrees with the intended value by more than
// one tick, or its size disagrees with the intended remaining contracts.
func (r *Router) VerifyConditional(symbol, exchangeID string, expectedTrigger, expectedQty, tick float64) (bool, error) {
	listed, err := r.client.ListConditional(symbol)
	if err != nil {
		return false, fmt.Errorf("transient_io: %w", err)
	}
	priceTolerance := tick
	if priceTolerance <= 0 {
		priceTolerance = 1e-6
	}
	for _, o := range listed {
		if o.ExchangeID != exchangeID {
			continue
		}
		const qtyTolerance = 1e-6
		driftedPrice := abs(o.TriggerPrice-expectedTrigger) > priceTolerance*1.000001
		driftedQty := abs(o.Qty-expectedQty) > qtyTolerance
		return !driftedPrice && !driftedQty, nil
	}
	return false, nil
}

// CancelConditional cancels one exchange-resident conditional order.
func (r *Router) CancelConditional(exchangeID string) error {
	if err := r.client.CancelConditional(exchangeID); err != nil {
		return fmt.Errorf("transient_io: %w", err)
	}
	return nil
}

// ModifyConditional updates a conditional order's trigger price in place,
// used by the trailing take-profit ratchet.
func (r *Router) ModifyConditional(exchangeID string, newTrigger float64) error {
	if err := r.client.ModifyConditional(exchangeID, newTrigger); err != nil {
		return fmt.Errorf("transient_io: %w", err)
	}
	return nil
}

func sideToOrderSide(side model.Side) string {
	if side == model.SideLong {
		return "BUY"
	}
	return "SELL"
}

func formatQty(qty float64) string {
	return fmt.Sprintf("%g", qty)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// isTransient classifies an exchange error as retryable network/IO failure
// versus a permanent venue rejection, the transient_io/venue_validation
// split the lifecycle manager branches on.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "transient_io") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "status 5")
}
