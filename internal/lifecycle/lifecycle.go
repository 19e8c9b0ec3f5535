// Package lifecycle owns the set of live positions exclusively and drives
// the per-position state machine: entry submission, fill reconciliation,
// TP/SL placement with retry, the monitor-tick checks (bot-side stop, TP
// ladder, tripwires, time-stop), the periodic conditional-order
// verification sub-loop, and cleanup on close.
//
// The positions map and sector counters are guarded by Manager's own lock;
// once a symbol is in the map, all further work against it is serialized
// through that entry's own mutex, so that fill -> place TP/SL -> verify
// forms a single critical section per symbol.
package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"perpengine/internal/cfg"
	"perpengine/internal/journal"
	"perpengine/internal/metrics"
	"perpengine/internal/model"
	"perpengine/internal/risk"
	"perpengine/internal/router"
)

// PriceSnapshot is the coordinator-gathered market data a single monitor
// tick needs for one symbol: a freshly fetched current price plus the
// short-timeframe candles a tripwire check consults.
type PriceSnapshot struct {
	Current float64
	Candles []model.Candle // recent 1-3m candles, newest last
	ATR     float64        // current ATR, for VWAP-MR's adverse-close tripwire
}

// entry pairs a Position with the mutex that serializes all lifecycle work
// against it.
type entry struct {
	mu         sync.Mutex
	pos        *model.Position
	lastVerify time.Time
}

// Manager owns every live Position.
type Manager struct {
	mu           sync.RWMutex
	positions    map[string]*entry
	sectorCounts map[string]int
	sectorOf     map[string]string

	router  *router.Router
	risk    *risk.Engine
	journal *journal.Journal
	cfg     cfg.Settings
	metrics *metrics.MetricsWrapper
}

// NewManager constructs a Manager with no positions; Recover populates it
// from the exchange at startup. m may be nil, in which case metrics
// recording is skipped.
func NewManager(r *router.Router, rk *risk.Engine, j *journal.Journal, settings cfg.Settings, m *metrics.MetricsWrapper) *Manager {
	return &Manager{
		positions:    make(map[string]*entry),
		sectorCounts: make(map[string]int),
		sectorOf:     make(map[string]string),
		router:       r,
		risk:         rk,
		journal:      j,
		cfg:          settings,
		metrics:      m,
	}
}

// OpenCount returns the number of currently live positions, for the
// concurrency coordinator's max_symbols cap.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// SectorCount returns the number of live positions in sector, for the
// per-sector cap.
func (m *Manager) SectorCount(sector string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sectorCounts[sector]
}

// HasPosition reports whether symbol already has a live position; duplicate
// signals for an open symbol are dropped by the caller.
func (m *Manager) HasPosition(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[symbol]
	return ok
}

// CanOpen reports whether a new position in meta's sector is admissible
// under the concurrency caps, without side effects.
func (m *Manager) CanOpen(meta model.SymbolMeta) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.positions[meta.SymbolID]; exists {
		return false, "duplicate_position"
	}
	if m.cfg.Concurrency.MaxSymbols > 0 && len(m.positions) >= m.cfg.Concurrency.MaxSymbols {
		return false, "max_symbols"
	}
	if m.cfg.Concurrency.MaxPerSector > 0 && m.sectorCounts[meta.Sector] >= m.cfg.Concurrency.MaxPerSector {
		return false, "max_per_sector"
	}
	return true, ""
}

// Symbols returns every symbol with a live position, a snapshot the
// concurrency coordinator fans monitor work out over.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// Snapshot returns a copy of symbol's current Position for reporting, or
// false if none is live.
func (m *Manager) Snapshot(symbol string) (model.Position, bool) {
	m.mu.RLock()
	e, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return model.Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.pos, true
}

func (m *Manager) insert(pos *model.Position, sector string) *entry {
	e := &entry{pos: pos}
	m.mu.Lock()
	m.positions[pos.Symbol] = e
	m.sectorCounts[sector]++
	m.sectorOf[pos.Symbol] = sector
	count := len(m.positions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActivePositions().Set(float64(count))
	}
	return e
}

func (m *Manager) remove(symbol string) {
	m.mu.Lock()
	if sector, ok := m.sectorOf[symbol]; ok {
		m.sectorCounts[sector]--
		if m.sectorCounts[sector] <= 0 {
			delete(m.sectorCounts, sector)
		}
		delete(m.sectorOf, symbol)
	}
	delete(m.positions, symbol)
	count := len(m.positions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActivePositions().Set(float64(count))
	}
}

func (m *Manager) recordEvent(pos *model.Position, kind string) {
	if m.journal == nil {
		return
	}
	ev := model.TradeJournalEvent{
		Timestamp:          time.Now(),
		Symbol:             pos.Symbol,
		StrategyKind:       pos.StrategyKind,
		Side:               pos.Side,
		EventKind:          kind,
		Contracts:          pos.RemainingContracts,
		EntryPrice:         pos.EntryPrice,
		StopPrice:          pos.StopPrice,
		TPLadder:           pos.TPLadder,
		PeakFavorablePrice: pos.PeakFavorablePrice,
		CloseReason:        pos.CloseReason,
	}
	if err := m.journal.RecordEvent(ev); err != nil {
		log.Warn().Err(err).Str("symbol", pos.Symbol).Str("event", kind).Msg("failed to record trade journal event")
	}
}

// Open runs a Position through Created -> Reconciling -> Protected (or
// Failed / Unprotected). It never returns until the position is either
// protected, failed outright, or has entered the Unprotected alarm state,
// so an entry is always followed by fill reconciliation before any
// conditional-order submission.
func (m *Manager) Open(decision model.SizingDecision, meta model.SymbolMeta) error {
	if ok, reason := m.CanOpen(meta); !ok {
		return fmt.Errorf("concurrency_cap: %s", reason)
	}

	sig := decision.Signal
	pos := &model.Position{
		Symbol:             sig.Symbol,
		Side:               sig.Side,
		StrategyKind:       sig.StrategyKind,
		OpenedAt:           time.Now(),
		RequestedContracts: decision.Contracts,
		EntryPrice:         decision.EntryPriceReference,
		Leverage:           decision.Leverage,
		StopPrice:          decision.StopPrice,
		LiqPrice:           decision.LiqPrice,
		TPLadder:           sig.TPLadder,
		TripwireRef:        sig.TripwireRef,
		TimeStopSeconds:    sig.TimeStopSeconds,
		Phase:              model.PhaseCreated,
	}
	e := m.insert(pos, meta.Sector)
	m.recordEvent(pos, "Created")

	e.mu.Lock()
	defer e.mu.Unlock()
	return m.reconcileAndProtect(e, meta)
}

func (m *Manager) reconcileAndProtect(e *entry, meta model.SymbolMeta) error {
	pos := e.pos
	pos.Phase = model.PhaseReconciling

	start := time.Now()
	_, err := m.router.SubmitMarketEntry(pos.Symbol, pos.Side, pos.RequestedContracts)
	if m.metrics != nil {
		m.metrics.OrdersTotal().Inc()
		m.metrics.OrderExecutionDuration().Observe(time.Since(start).Seconds())
	}
	if err != nil {
		pos.Phase = model.PhaseFailed
		m.remove(pos.Symbol)
		if m.metrics != nil {
			m.metrics.OrderTimeouts().Inc()
		}
		log.Error().Str("symbol", pos.Symbol).Err(err).Msg("market entry submission failed")
		return fmt.Errorf("market_fail: %w", err)
	}

	const pollInterval = 2 * time.Second
	const pollAttempts = 5
	var filled float64
	var observed bool
	for i := 0; i < pollAttempts; i++ {
		info, found, err := m.router.ReadActualFilled(pos.Symbol, pos.Side)
		if err == nil && found && info.ActualFilledContracts > 0 {
			filled = info.ActualFilledContracts
			observed = true
			break
		}
		time.Sleep(pollInterval)
	}
	if !observed {
		pos.Phase = model.PhaseFailed
		m.remove(pos.Symbol)
		log.Error().Str("symbol", pos.Symbol).Msg("fill never observed within grace window; no conditional orders placed")
		return fmt.Errorf("insufficient_position: fill not observed for %s", pos.Symbol)
	}

	// actual_filled_contracts is set exactly once, from the exchange's
	// post-fill snapshot, never the requested size.
	pos.ActualFilledContracts = filled
	pos.RemainingContracts = filled
	m.recordEvent(pos, "Reconciled-fill")

	if m.placeProtection(e, meta) {
		pos.Phase = model.PhaseProtected
		e.lastVerify = time.Now()
		m.recordEvent(pos, "Protected")
		return nil
	}
	return m.enterUnprotected(e)
}

func (m *Manager) profitFloorTrigger(pos *model.Position) float64 {
	move := risk.ROEToPriceMove(m.cfg.MinProfitROE, pos.Leverage)
	if pos.Side == model.SideLong {
		return pos.EntryPrice * (1 + move)
	}
	return pos.EntryPrice * (1 - move)
}

// trailingTrigger is the activation price the live trailing take-profit is
// expected to carry: the recorded activation, or the profit-floor trigger
// for a position that never had one (e.g. recovered without a trailing
// order attached).
func (m *Manager) trailingTrigger(pos *model.Position) float64 {
	if pos.TrailingActivation > 0 {
		return pos.TrailingActivation
	}
	return m.profitFloorTrigger(pos)
}

// placeProtection places the stop-loss, profit-floor, and trailing
// take-profit conditional orders, each with retry/backoff and a one-tick
// side-rule nudge. It returns false if any of the three could not be
// placed within tp_sl_max_attempts.
func (m *Manager) placeProtection(e *entry, meta model.SymbolMeta) bool {
	pos := e.pos
	closeSide := pos.Side.Opposite()

	slID, ok := m.placeWithRetry(pos.Symbol, closeSide, model.CondKindStopLoss, pos.StopPrice, pos.RemainingContracts, 0, meta, false)
	if !ok {
		return false
	}
	pos.SLOrderID = slID

	floorTrigger := m.profitFloorTrigger(pos)
	floorID, ok := m.placeWithRetry(pos.Symbol, closeSide, model.CondKindProfitFloor, floorTrigger, pos.RemainingContracts, 0, meta, true)
	if !ok {
		return false
	}
	pos.TPFloorOrderID = floorID

	// The trailing take-profit activates at the profit-floor trigger; the
	// floor is the activation price, it does not itself force-close.
	trailID, ok := m.placeWithRetry(pos.Symbol, closeSide, model.CondKindTrailingTP, floorTrigger, pos.RemainingContracts, m.cfg.TrailingCallback, meta, true)
	if !ok {
		return false
	}
	pos.TrailingOrderID = trailID
	pos.TrailingActive = true
	pos.TrailingActivation = floorTrigger
	return true
}

func (m *Manager) placeWithRetry(symbol string, side model.Side, kind model.CondKind, trigger, qty, callback float64, meta model.SymbolMeta, isTP bool) (string, bool) {
	attempts := m.cfg.TPSLMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	base := m.cfg.TPSLBackoffBase
	if base <= 0 {
		base = 2 * time.Second
	}

	t := risk.SnapToGrid(trigger, meta)
	nudged := false

	for attempt := 0; attempt < attempts; attempt++ {
		id, err := m.router.PlaceConditional(symbol, model.ConditionalOrder{
			Kind:          kind,
			Side:          side,
			TriggerPrice:  t,
			SizeReference: qty,
			CallbackRatio: callback,
			RefType:       model.TriggerRefMark,
		})
		if err == nil {
			return id, true
		}
		if isSideRuleError(err) && !nudged {
			// side here is the close side of the order; the venue's side
			// rules (and NudgeTick's valid direction) are stated in terms
			// of the position's own side.
			t = risk.NudgeTick(t, meta, isTP, side.Opposite())
			nudged = true
			log.Warn().Str("symbol", symbol).Str("kind", string(kind)).Float64("nudged_trigger", t).
				Msg("conditional order rejected on side-rule, nudging one tick")
			continue
		}
		if m.metrics != nil {
			m.metrics.OrderRetries().Inc()
		}
		delay := time.Duration(1<<uint(attempt)) * base
		log.Warn().Str("symbol", symbol).Str("kind", string(kind)).Int("attempt", attempt+1).
			Dur("delay", delay).Err(err).Msg("conditional order placement failed, retrying")
		time.Sleep(delay)
	}
	return "", false
}

// isSideRuleError classifies a venue rejection as the trigger-side-rule
// failure the router's venue_validation kind represents; the only
// adjustment permitted in response is the one-tick nudge above.
func isSideRuleError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "venue_validation")
}

// enterUnprotected handles the alarm path: a fill with no protection is
// never silently tolerated. It logs a critical error and attempts an
// immediate market close; if that also fails, the position stays in
// Unprotected and MonitorOne retries the close every tick.
func (m *Manager) enterUnprotected(e *entry) error {
	pos := e.pos
	pos.Phase = model.PhaseUnprotected
	if m.metrics != nil {
		m.metrics.UnprotectedFillsTotal().Inc()
	}
	log.Error().Str("symbol", pos.Symbol).Float64("remaining_contracts", pos.RemainingContracts).
		Msg("unprotected_fill: TP/SL placement exhausted all retries, position has no exchange-side protection")
	m.recordEvent(pos, "Unprotected")

	if m.attemptUnprotectedClose(e) {
		return fmt.Errorf("unprotected_fill: protection could not be placed, position closed at market")
	}
	return fmt.Errorf("unprotected_fill: close attempt failed, will retry every monitor tick")
}

func (m *Manager) attemptUnprotectedClose(e *entry) bool {
	pos := e.pos
	closeSide := pos.Side.Opposite()
	if _, err := m.router.SubmitMarketExit(pos.Symbol, closeSide, pos.RemainingContracts); err != nil {
		log.Error().Str("symbol", pos.Symbol).Err(err).Msg("unprotected-fill market close failed")
		return false
	}
	// Closest fit in the closed CloseReason set: a forced market exit
	// independent of the TP/SL ladder, same bucket as a strategy tripwire.
	m.closeLocked(e, model.CloseReasonTripwire)
	return true
}

func (m *Manager) closeLocked(e *entry, reason model.CloseReason) {
	pos := e.pos
	pos.Phase = model.PhaseClosing
	m.recordEvent(pos, fmt.Sprintf("Closing(%s)", reason))

	for _, id := range []string{pos.SLOrderID, pos.TPFloorOrderID, pos.TrailingOrderID} {
		if id == "" {
			continue
		}
		if err := m.router.CancelConditional(id); err != nil {
			log.Warn().Str("symbol", pos.Symbol).Str("exchange_id", id).Err(err).Msg("failed to cancel conditional order on close")
		}
	}

	pos.RemainingContracts = 0
	pos.ClosedAt = time.Now()
	pos.CloseReason = reason
	pos.Phase = model.PhaseClosed
	m.recordEvent(pos, "Closed")
	m.remove(pos.Symbol)
}

// closeAtMarket submits a reduce-only market close for the position's
// entire remaining size and tears it down.
func (m *Manager) closeAtMarket(e *entry, reason model.CloseReason) {
	pos := e.pos
	closeSide := pos.Side.Opposite()
	if _, err := m.router.SubmitMarketExit(pos.Symbol, closeSide, pos.RemainingContracts); err != nil {
		log.Error().Str("symbol", pos.Symbol).Str("reason", string(reason)).Err(err).
			Msg("market close failed; position remains open and will be retried next tick")
		return
	}
	m.closeLocked(e, reason)
}

// MonitorOne runs one monitor-tick's worth of checks against symbol's
// position: peak tracking, bot-side stop, bot-side TP1, strategy tripwires,
// time-stop, and (every sl_verify_seconds) conditional-order verification.
// Safe to call concurrently for different symbols; per-symbol calls are
// serialized by the entry's own mutex.
func (m *Manager) MonitorOne(symbol string, snap PriceSnapshot, meta model.SymbolMeta) {
	m.mu.RLock()
	e, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.pos
	switch pos.Phase {
	case model.PhaseUnprotected:
		m.attemptUnprotectedClose(e)
		return
	case model.PhaseProtected:
	default:
		return // Created/Reconciling are handled synchronously inside Open; Closing/Closed/Failed are terminal.
	}

	if snap.Current <= 0 {
		return
	}
	pos.UpdatePeakFavorable(snap.Current)

	if m.stopCrossed(pos, snap.Current) {
		m.closeAtMarket(e, model.CloseReasonStopLoss)
		return
	}

	if pos.RemainingContracts > 0 && pos.TimeStopSeconds > 0 &&
		time.Since(pos.OpenedAt) > time.Duration(pos.TimeStopSeconds*float64(time.Second)) {
		log.Error().Str("symbol", pos.Symbol).Dur("age", time.Since(pos.OpenedAt)).
			Msg("time_stop fired: frequent firing indicates a bug upstream, this is a last-resort safety net")
		m.closeAtMarket(e, model.CloseReasonTimeStop)
		return
	}

	if pos.TPHitCount == 0 && len(pos.TPLadder) > 0 && m.tpCrossed(pos, pos.TPLadder[0], snap.Current) {
		m.hitTP1(e, meta, snap.Current)
		if pos.Phase != model.PhaseProtected {
			return
		}
	}

	if m.tripwireHit(pos, snap) {
		m.closeAtMarket(e, model.CloseReasonTripwire)
		return
	}

	verifyEvery := m.cfg.SLVerifySeconds
	if verifyEvery <= 0 {
		verifyEvery = 60 * time.Second
	}
	if time.Since(e.lastVerify) >= verifyEvery {
		m.verifyAndReconcile(e, meta)
		e.lastVerify = time.Now()
	}
}

func (m *Manager) stopCrossed(pos *model.Position, current float64) bool {
	if pos.Side == model.SideLong {
		return current <= pos.StopPrice
	}
	return current >= pos.StopPrice
}

func (m *Manager) tpCrossed(pos *model.Position, rung model.TPLadderEntry, current float64) bool {
	if pos.Side == model.SideLong {
		return current >= rung.TriggerPrice
	}
	return current <= rung.TriggerPrice
}

// hitTP1 closes the first TP rung's size fraction at market and, for
// strategies that trail after TP1 (LSVR, Trend-Fallback), re-arms the
// trailing take-profit on the remaining size with activation at the
// current favorable price.
func (m *Manager) hitTP1(e *entry, meta model.SymbolMeta, current float64) {
	pos := e.pos
	closeQty := math.Floor(pos.TPLadder[0].SizeFraction*pos.ActualFilledContracts/meta.SizeLot) * meta.SizeLot
	if closeQty <= 0 || closeQty > pos.RemainingContracts {
		closeQty = pos.RemainingContracts
	}

	closeSide := pos.Side.Opposite()
	if _, err := m.router.SubmitMarketExit(pos.Symbol, closeSide, closeQty); err != nil {
		log.Warn().Str("symbol", pos.Symbol).Err(err).Msg("TP1 partial close failed, will retry next tick")
		return
	}

	pos.RemainingContracts -= closeQty
	pos.TPHitCount = 1
	m.recordEvent(pos, "TP-hit(1)")

	if pos.RemainingContracts <= 0 {
		m.closeLocked(e, model.CloseReasonTrailingTP)
		return
	}

	if pos.StrategyKind != model.StrategyLSVR && pos.StrategyKind != model.StrategyTrendFallback {
		return
	}
	if pos.TrailingOrderID != "" {
		if err := m.router.CancelConditional(pos.TrailingOrderID); err != nil {
			log.Warn().Str("symbol", pos.Symbol).Err(err).Msg("cancel prior trailing TP failed")
		}
	}
	activation := risk.SnapTrigger(current, meta, true, pos.Side, current)
	id, ok := m.placeWithRetry(pos.Symbol, closeSide, model.CondKindTrailingTP, activation, pos.RemainingContracts, m.cfg.TrailingCallback, meta, true)
	if !ok {
		log.Error().Str("symbol", pos.Symbol).Msg("failed to re-arm trailing take-profit after TP1, will retry on next verification pass")
		pos.TrailingOrderID = ""
		pos.TrailingActivation = activation
		return
	}
	pos.TrailingOrderID = id
	pos.TrailingActivation = activation
}

// tripwireHit applies the strategy-specific early-exit conditions: LSVR's
// re-sweep of the original level, defined as a body-close re-touch beyond
// the swept extreme on the adverse side (a wick alone is noise the sweep
// setup already tolerates); VWAP-MR's adverse 1-3m candle >=1.7*ATR against
// the position. Trend-Fallback has none.
func (m *Manager) tripwireHit(pos *model.Position, snap PriceSnapshot) bool {
	if len(snap.Candles) == 0 {
		return false
	}
	last := snap.Candles[len(snap.Candles)-1]

	switch pos.StrategyKind {
	case model.StrategyLSVR:
		if pos.TripwireRef == 0 {
			return false
		}
		if pos.Side == model.SideLong {
			return last.Close < pos.TripwireRef
		}
		return last.Close > pos.TripwireRef
	case model.StrategyVWAPMR:
		atr := snap.ATR
		if atr <= 0 {
			atr = pos.TripwireRef // ATR at signal time, when no fresh value came with the tick
		}
		if atr <= 0 {
			return false
		}
		adverse := 1.7 * atr
		if pos.Side == model.SideLong {
			return (pos.EntryPrice - last.Close) >= adverse
		}
		return (last.Close - pos.EntryPrice) >= adverse
	default:
		return false
	}
}

// verifyAndReconcile implements the periodic verification sub-loop: for
// each expected conditional kind, confirm it still exists and agrees with
// the intended trigger to within one tick; a missing or drifted order is
// cancelled and re-placed, never adopted. The declared state wins.
func (m *Manager) verifyAndReconcile(e *entry, meta model.SymbolMeta) {
	pos := e.pos
	closeSide := pos.Side.Opposite()

	checks := []struct {
		kind    model.CondKind
		idPtr   *string
		trigger float64
		isTP    bool
		cb      float64
	}{
		{model.CondKindStopLoss, &pos.SLOrderID, pos.StopPrice, false, 0},
		{model.CondKindProfitFloor, &pos.TPFloorOrderID, m.profitFloorTrigger(pos), true, 0},
		{model.CondKindTrailingTP, &pos.TrailingOrderID, m.trailingTrigger(pos), true, m.cfg.TrailingCallback},
	}

	for _, c := range checks {
		intended := risk.SnapToGrid(c.trigger, meta)
		ok, err := m.router.VerifyConditional(pos.Symbol, *c.idPtr, intended, pos.RemainingContracts, meta.PriceTick)
		if err != nil {
			log.Warn().Str("symbol", pos.Symbol).Str("kind", string(c.kind)).Err(err).Msg("conditional order verification failed")
			continue
		}
		if ok {
			continue
		}
		if m.metrics != nil {
			m.metrics.ConditionalDriftTotal().Inc()
		}
		log.Warn().Str("symbol", pos.Symbol).Str("kind", string(c.kind)).Str("exchange_id", *c.idPtr).
			Msg("conditional order missing or drifted, cancelling and re-placing")
		if *c.idPtr != "" {
			_ = m.router.CancelConditional(*c.idPtr)
		}
		id, placed := m.placeWithRetry(pos.Symbol, closeSide, c.kind, intended, pos.RemainingContracts, c.cb, meta, c.isTP)
		if placed {
			*c.idPtr = id
			if m.metrics != nil {
				m.metrics.ConditionalReplaceTotal().Inc()
			}
		} else {
			log.Error().Str("symbol", pos.Symbol).Str("kind", string(c.kind)).Msg("failed to re-place conditional order during verification")
		}
	}
}

// Recover reconstructs live Position records from the exchange's open
// positions at startup. It never re-submits entries: a position with both
// SL and trailing/floor conditional orders attached recovers into
// Protected; one with none recovers into Unprotected and is immediately
// force-closed.
func (m *Manager) Recover(openPositions []PositionSnapshot, symbolMeta func(symbol string) (model.SymbolMeta, error), listConditional func(symbol string) ([]ConditionalSnapshot, error)) error {
	for _, op := range openPositions {
		meta, err := symbolMeta(op.Symbol)
		if err != nil {
			log.Error().Str("symbol", op.Symbol).Err(err).Msg("fatal_config: symbol metadata unavailable during recovery")
			continue
		}

		pos := &model.Position{
			Symbol:                op.Symbol,
			Side:                  op.Side,
			OpenedAt:              time.Now(),
			ActualFilledContracts: op.Contracts,
			RequestedContracts:    op.Contracts,
			RemainingContracts:    op.Contracts,
			EntryPrice:            op.EntryPrice,
			LiqPrice:              op.LiqPrice,
			Phase:                 model.PhaseProtected,
		}

		conds, err := listConditional(op.Symbol)
		if err != nil {
			log.Warn().Str("symbol", op.Symbol).Err(err).Msg("failed to list conditional orders during recovery")
			conds = nil
		}

		haveSL, haveTP := false, false
		for _, c := range conds {
			switch model.CondKind(c.Kind) {
			case model.CondKindStopLoss:
				pos.SLOrderID = c.ExchangeID
				pos.StopPrice = c.TriggerPrice
				haveSL = true
			case model.CondKindProfitFloor:
				pos.TPFloorOrderID = c.ExchangeID
				haveTP = true
			case model.CondKindTrailingTP:
				pos.TrailingOrderID = c.ExchangeID
				pos.TrailingActive = true
				pos.TrailingActivation = c.TriggerPrice
				haveTP = true
			}
		}

		e := m.insert(pos, meta.Sector)
		if !haveSL || !haveTP {
			pos.Phase = model.PhaseUnprotected
			log.Error().Str("symbol", op.Symbol).Bool("has_stop_loss", haveSL).Bool("has_take_profit", haveTP).
				Msg("recovered position has no conditional orders attached, forcing immediate close")
			e.mu.Lock()
			m.attemptUnprotectedClose(e)
			e.mu.Unlock()
			continue
		}
		m.recordEvent(pos, "Protected")
	}
	return nil
}

// PositionSnapshot is the exchange's view of one open position, as
// gathered by the concurrency coordinator from fetch_positions at startup.
type PositionSnapshot struct {
	Symbol     string
	Side       model.Side
	Contracts  float64
	EntryPrice float64
	LiqPrice   float64
}

// ConditionalSnapshot is the exchange's view of one attached conditional
// order, as gathered from list_conditional at startup.
type ConditionalSnapshot struct {
	ExchangeID   string
	Kind         string
	TriggerPrice float64
}
