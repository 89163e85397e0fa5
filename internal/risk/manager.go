// Package risk implements the Risk Manager: capital ledger, the position
// store, admission gates, and position sizing. It exclusively owns the
// Position store and the TradeHistory log.
package risk

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

const (
	defaultEntryFeeRate    = 0.0005
	defaultReentryCooldown = 300 * time.Second
)

// Config is the admission/sizing knobs the engine wires from its own
// loaded configuration.
type Config struct {
	MaxPositions      int
	MaxDailyTrades    int
	MaxDrawdownPct    float64
	MaxDailyLossKRW   float64
	MaxDailyLossPct   float64
	ReentryCooldown   time.Duration
	EntryFeeRate      float64
	ExitFeeRate       float64
}

// Manager is the Risk Manager. All state is protected by mu; callers must
// never hold their own lock while calling into Manager (lock-ordering
// rule: Engine → StrategyManager → RiskManager → OrderManager →
// RateLimiter).
type Manager struct {
	mu sync.Mutex

	cfg Config

	ledger domain.CapitalLedger

	positions map[string]*domain.Position // keyed by market
	history   []domain.TradeHistory

	dailyTradeCount int
	dailyDate       time.Time
	dailyLoss       float64

	lastEntryAt map[string]time.Time // market -> last entry time, for reentry cooldown

	maxCapital      float64
	maxDrawdownSeen float64
}

// New builds a Manager seeded with initialCapital. Fee rates default to
// the exchange's standard 5bp maker/taker rate if left zero.
func New(cfg Config, initialCapital float64) *Manager {
	if cfg.EntryFeeRate == 0 {
		cfg.EntryFeeRate = defaultEntryFeeRate
	}
	if cfg.ExitFeeRate == 0 {
		cfg.ExitFeeRate = defaultEntryFeeRate
	}
	if cfg.ReentryCooldown == 0 {
		cfg.ReentryCooldown = defaultReentryCooldown
	}
	return &Manager{
		cfg: cfg,
		ledger: domain.CapitalLedger{
			CurrentCapital: initialCapital,
		},
		positions:   make(map[string]*domain.Position),
		lastEntryAt: make(map[string]time.Time),
		dailyDate:   time.Now().UTC().Truncate(24 * time.Hour),
		maxCapital:  initialCapital,
	}
}

// equityLocked is current_capital plus the unrealized P&L of every open
// position; requires mu to already be held.
func (m *Manager) equityLocked() float64 {
	equity := m.ledger.CurrentCapital
	for _, p := range m.positions {
		equity += p.UnrealizedPnL
	}
	return equity
}

// touchHighWaterMarkLocked updates maxCapital/maxDrawdownSeen from current
// equity; requires mu to already be held.
func (m *Manager) touchHighWaterMarkLocked() {
	equity := m.equityLocked()
	if equity > m.maxCapital {
		m.maxCapital = equity
	}
	if m.maxCapital > 0 {
		dd := (m.maxCapital - equity) / m.maxCapital
		if dd > m.maxDrawdownSeen {
			m.maxDrawdownSeen = dd
		}
	}
}

func (m *Manager) rolloverDailyCountersLocked(now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if today.After(m.dailyDate) {
		m.dailyDate = today
		m.dailyTradeCount = 0
		m.dailyLoss = 0
	}
}

// CanEnterPosition is the admission gate. All conditions must hold.
func (m *Manager) CanEnterPosition(market string, sizeRatio float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.rolloverDailyCountersLocked(now)

	if _, exists := m.positions[market]; exists {
		return false
	}
	if len(m.positions) >= m.cfg.MaxPositions {
		return false
	}
	if m.dailyTradeCount >= m.cfg.MaxDailyTrades {
		return false
	}
	if last, ok := m.lastEntryAt[market]; ok && now.Sub(last) < m.cfg.ReentryCooldown {
		return false
	}
	if m.currentDrawdownLocked() >= m.cfg.MaxDrawdownPct {
		return false
	}

	required := m.ledger.CurrentCapital * sizeRatio
	if required > m.ledger.Available() {
		return false
	}

	if m.dailyLoss >= m.cfg.MaxDailyLossKRW {
		return false
	}
	if m.ledger.CurrentCapital > 0 && m.dailyLoss/m.ledger.CurrentCapital >= m.cfg.MaxDailyLossPct {
		return false
	}

	return true
}

// currentDrawdownLocked is the live drawdown off the high-water mark;
// requires mu to already be held.
func (m *Manager) currentDrawdownLocked() float64 {
	if m.maxCapital <= 0 {
		return 0
	}
	equity := m.equityLocked()
	dd := (m.maxCapital - equity) / m.maxCapital
	if dd < 0 {
		return 0
	}
	return dd
}

// Enter deducts the entry fee and records a new Position. Callers must
// have already passed CanEnterPosition and the Compliance gate.
func (m *Manager) Enter(pos domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fee := pos.InvestedAmount * m.cfg.EntryFeeRate
	m.ledger.CurrentCapital -= fee
	m.ledger.InvestedCapital += pos.InvestedAmount

	p := pos
	m.positions[pos.Market] = &p
	m.lastEntryAt[pos.Market] = pos.EntryTime
	m.dailyTradeCount++

	slog.Info("risk: position entered", "market", pos.Market, "invested", pos.InvestedAmount, "fee", fee)
}

// UpdatePrice recomputes unrealized P&L and tracks highest_price without
// touching stops (those only move via partial-exit/breakeven/trailing
// logic).
func (m *Manager) UpdatePrice(market string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	if p.InvestedAmount > 0 {
		p.UnrealizedPnLPct = p.UnrealizedPnL / p.InvestedAmount * 100
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	m.touchHighWaterMarkLocked()
}

// ShouldExit reports whether a full exit should fire: stop-loss hit,
// take-profit-2 hit. TP1 is a partial-exit trigger, never a full exit.
func (m *Manager) ShouldExit(market string, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok {
		return false
	}
	return price <= p.StopLoss || price >= p.TakeProfit2
}

// ShouldPartialExit reports whether the position's TP1 has been crossed
// and it has not already been half-closed.
func (m *Manager) ShouldPartialExit(market string, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok || p.HalfClosed {
		return false
	}
	return price >= p.TakeProfit1
}

// PartialExit sells half the position at price, charges the exit fee on
// that slice, and raises the stop to breakeven.
func (m *Manager) PartialExit(market string, price float64) (domain.TradeHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok || p.HalfClosed {
		return domain.TradeHistory{}, false
	}

	sellQty := p.Quantity / 2
	exitValue := sellQty * price
	fee := exitValue * m.cfg.ExitFeeRate
	investedSlice := p.InvestedAmount / 2
	pnl := exitValue - fee - investedSlice

	m.ledger.CurrentCapital += pnl
	m.ledger.InvestedCapital -= investedSlice

	trade := domain.TradeHistory{
		Market: market, EntryPrice: p.EntryPrice, ExitPrice: price, Quantity: sellQty,
		ProfitLoss: pnl, ProfitLossPct: pnlPct(pnl, investedSlice), FeePaid: fee,
		EntryTime: p.EntryTime, ExitTime: time.Now(), StrategyName: p.StrategyName,
		ExitReason: "partial_take_profit", Signal: p.Signal,
	}
	m.history = append(m.history, trade)

	p.Quantity -= sellQty
	p.InvestedAmount -= investedSlice
	p.HalfClosed = true
	if p.StopLoss < p.EntryPrice {
		p.StopLoss = p.EntryPrice
	}

	return trade, true
}

// FullExit closes the remaining quantity at price, crediting the ledger,
// updating the max-capital high-water mark, recording a TradeHistory
// entry, and removing the Position.
func (m *Manager) FullExit(market string, price float64, reason string) (domain.TradeHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok {
		return domain.TradeHistory{}, false
	}

	exitValue := p.Quantity * price
	fee := exitValue * m.cfg.ExitFeeRate
	netProfit := (exitValue - fee) - p.InvestedAmount

	m.ledger.CurrentCapital += netProfit
	m.ledger.InvestedCapital -= p.InvestedAmount
	m.touchHighWaterMarkLocked()

	if netProfit < 0 {
		m.dailyLoss += -netProfit
	}

	trade := domain.TradeHistory{
		Market: market, EntryPrice: p.EntryPrice, ExitPrice: price, Quantity: p.Quantity,
		ProfitLoss: netProfit, ProfitLossPct: pnlPct(netProfit, p.InvestedAmount), FeePaid: fee,
		EntryTime: p.EntryTime, ExitTime: time.Now(), StrategyName: p.StrategyName,
		ExitReason: reason, Signal: p.Signal,
	}
	m.history = append(m.history, trade)
	delete(m.positions, market)

	return trade, true
}

// UpdateStopLoss raises (never lowers) the stop, per the trailing-stop
// contract; reason is logged only.
func (m *Manager) UpdateStopLoss(market string, newSL float64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[market]
	if !ok || newSL <= p.StopLoss {
		return
	}
	p.StopLoss = newSL
	slog.Debug("risk: stop raised", "market", market, "stop_loss", newSL, "reason", reason)
}

// Position returns a copy of the open position for market, if any.
func (m *Manager) Position(market string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[market]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// OpenPositions returns copies of every currently open position.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Metrics computes a RiskMetrics snapshot from current ledger/position/
// history state.
func (m *Manager) Metrics() domain.RiskMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var unrealized float64
	for _, p := range m.positions {
		unrealized += p.UnrealizedPnL
	}

	var realized float64
	var wins, losses int
	var grossWin, grossLoss float64
	for _, t := range m.history {
		realized += t.ProfitLoss
		if t.ProfitLoss >= 0 {
			wins++
			grossWin += t.ProfitLoss
		} else {
			losses++
			grossLoss += -t.ProfitLoss
		}
	}

	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}
	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	}

	return domain.RiskMetrics{
		TotalEquity:     m.ledger.Available() + m.ledger.InvestedCapital,
		AvailableCash:   m.ledger.Available(),
		InvestedCapital: m.ledger.InvestedCapital,
		UnrealizedPnL:   unrealized,
		RealizedPnL:     realized,
		TotalPnL:        realized + unrealized,
		WinCount:        wins,
		LossCount:       losses,
		WinRate:         winRate,
		CurrentDrawdown: m.currentDrawdownLocked(),
		MaxDrawdown:     m.maxDrawdownSeen,
		ProfitFactor:    profitFactor,
		ActivePositions: len(m.positions),
		MaxPositions:    m.cfg.MaxPositions,
	}
}

// ResetCapital overwrites current capital and the max-capital high-water
// mark from the exchange's reported total, resets the max drawdown seen,
// and clears pending_order_capital. This is the only way
// the ledger moves downward outside a recorded trade.
func (m *Manager) ResetCapital(total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.CurrentCapital = total
	m.ledger.PendingOrderCapital = 0
	m.maxCapital = total
	m.maxDrawdownSeen = 0
}

// ReservePendingCapital marks amount as committed to an in-flight entry
// order before it fills, so a concurrent admission check sees it as
// unavailable.
func (m *Manager) ReservePendingCapital(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.PendingOrderCapital += amount
}

// ReleasePendingCapital undoes ReservePendingCapital once an order fills
// or is cancelled.
func (m *Manager) ReleasePendingCapital(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.PendingOrderCapital -= amount
	if m.ledger.PendingOrderCapital < 0 {
		m.ledger.PendingOrderCapital = 0
	}
}

func pnlPct(pnl, invested float64) float64 {
	if invested == 0 {
		return 0
	}
	return pnl / invested * 100
}

// KellyFraction computes the capped, clamped Kelly sizing fraction from
// realized trade history: f* = (p*b - q)/b, capped at 0.25*f*, clamped to
// [0.01, 0.10].
func (m *Manager) KellyFraction() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wins, losses int
	var totalWin, totalLoss float64
	for _, t := range m.history {
		if t.ProfitLoss >= 0 {
			wins++
			totalWin += t.ProfitLoss
		} else {
			losses++
			totalLoss += -t.ProfitLoss
		}
	}

	total := wins + losses
	if total < 3 {
		return 0.05
	}

	p := float64(wins) / float64(total)
	q := 1 - p
	if p <= 0 || q <= 0 || wins == 0 || losses == 0 {
		return 0.05
	}

	avgWin := totalWin / float64(wins)
	avgLoss := totalLoss / float64(losses)
	if avgLoss <= 0 {
		return 0.05
	}

	b := avgWin / avgLoss
	kelly := (p*b - q) / b
	kelly *= 0.25

	return math.Max(0.01, math.Min(kelly, 0.10))
}

// FeeAwareSize returns a position-size fraction from the post-fee
// reward/risk ratio of a candidate entry.
func FeeAwareSize(entry, stopLoss, takeProfit, feeRate float64) float64 {
	risk := entry - stopLoss
	if risk <= 0 {
		return 0
	}
	reward := takeProfit - entry
	fees := entry * feeRate * 2
	postFeeReward := reward - fees
	rr := postFeeReward / risk

	switch {
	case rr >= 2.0:
		return 0.05
	case rr >= 1.5:
		return 0.03
	default:
		return 0
	}
}

// DynamicStop returns the tightest (highest, for a long) of a hard floor,
// an ATR-multiple stop, and a support-derived stop.
func DynamicStop(entry, atr float64, volatilityRegime domain.MarketRegime, nearestSupport float64) float64 {
	hard := entry * (1 - 0.015)

	atrMultiple := 2.0
	if volatilityRegime == domain.RegimeVolatile {
		atrMultiple = 2.5
	} else if volatilityRegime == domain.RegimeRanging {
		atrMultiple = 1.5
	}
	atrStop := entry - atr*atrMultiple

	supportStop := nearestSupport * 0.998

	return math.Max(hard, math.Max(atrStop, supportStop))
}
