package strategy

import (
	"fmt"
	"sync"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

// MomentumStrategy is an illustrative collaborator: it goes long when
// recent price momentum and volume surge both exceed a threshold, sizing
// its stop/targets off ATR-free percentage bands. It exists so the engine
// and its tests have a concrete, dependency-free ports.Strategy to
// dispatch to — the strategy's actual edge is out of scope.
type MomentumStrategy struct {
	mu    sync.Mutex
	state map[string]float64 // last seen price per market
	stats map[string]winLoss
}

type winLoss struct {
	wins, losses int
	totalPnL     float64
}

// NewMomentumStrategy builds a MomentumStrategy.
func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{
		state: make(map[string]float64),
		stats: make(map[string]winLoss),
	}
}

// Name identifies this strategy on every Signal/Position it produces.
func (s *MomentumStrategy) Name() string { return "momentum" }

// Analyze proposes a BUY when momentum and volume surge both clear 1.0,
// a STRONG_BUY when both clear 1.5.
func (s *MomentumStrategy) Analyze(metrics domain.CoinMetrics) (domain.Signal, error) {
	if metrics.CurrentPrice <= 0 {
		return domain.Signal{}, fmt.Errorf("momentum: invalid current price for %s", metrics.Market)
	}

	if metrics.PriceMomentum < 1.0 || metrics.VolumeSurgeRatio < 1.0 {
		return domain.Signal{Type: domain.SignalNone, Market: metrics.Market, StrategyName: s.Name()}, nil
	}

	sigType := domain.SignalBuy
	strength := 0.65
	if metrics.PriceMomentum >= 1.5 && metrics.VolumeSurgeRatio >= 1.5 {
		sigType = domain.SignalStrongBuy
		strength = 0.85
	}

	entry := metrics.CurrentPrice
	return domain.Signal{
		Type:         sigType,
		Market:       metrics.Market,
		Strength:     strength,
		EntryPrice:   entry,
		StopLoss:     entry * 0.985,
		TakeProfit1:  entry * 1.015,
		TakeProfit2:  entry * 1.03,
		PositionSize: 0.05,
		StrategyName: s.Name(),
		Reason:       "momentum+volume surge",
	}, nil
}

// ShouldExit triggers on a 2% adverse move held for more than 2 hours,
// independent of the Risk Manager's own stop/target levels.
func (s *MomentumStrategy) ShouldExit(market string, entry, current, holdingSeconds float64) bool {
	if entry <= 0 {
		return false
	}
	pnlPct := (current - entry) / entry
	return pnlPct < -0.02 && holdingSeconds > 7200
}

// UpdateState records the latest observed price for market.
func (s *MomentumStrategy) UpdateState(market string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[market] = price
}

// UpdateStatistics feeds back a realized trade outcome for this strategy.
func (s *MomentumStrategy) UpdateStatistics(market string, isWin bool, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.stats[market]
	if isWin {
		wl.wins++
	} else {
		wl.losses++
	}
	wl.totalPnL += pnl
	s.stats[market] = wl
}

// OnSignalAccepted never vetoes — this strategy has no additional
// pre-submission check.
func (s *MomentumStrategy) OnSignalAccepted(domain.Signal, float64) bool { return true }

// ScalpingStrategy is a second illustrative collaborator: it looks for a
// tight order-book imbalance favoring bids, targeting a quick partial exit.
type ScalpingStrategy struct {
	mu    sync.Mutex
	state map[string]float64
}

// NewScalpingStrategy builds a ScalpingStrategy.
func NewScalpingStrategy() *ScalpingStrategy {
	return &ScalpingStrategy{state: make(map[string]float64)}
}

// Name identifies this strategy.
func (s *ScalpingStrategy) Name() string { return "scalping" }

// Analyze proposes a BUY when the order book strongly favors bids and
// volatility is low enough that a tight stop is viable.
func (s *ScalpingStrategy) Analyze(metrics domain.CoinMetrics) (domain.Signal, error) {
	if metrics.CurrentPrice <= 0 {
		return domain.Signal{}, fmt.Errorf("scalping: invalid current price for %s", metrics.Market)
	}

	if metrics.OrderBookImbalance < 0.6 || metrics.Volatility > 0.02 {
		return domain.Signal{Type: domain.SignalNone, Market: metrics.Market, StrategyName: s.Name()}, nil
	}

	entry := metrics.CurrentPrice
	return domain.Signal{
		Type:         domain.SignalBuy,
		Market:       metrics.Market,
		Strength:     0.62,
		EntryPrice:   entry,
		StopLoss:     entry * 0.996,
		TakeProfit1:  entry * 1.004,
		TakeProfit2:  entry * 1.008,
		PositionSize: 0.03,
		StrategyName: s.Name(),
		BuyOrderType: "limit",
		Reason:       "bid-side orderbook imbalance",
	}, nil
}

// ShouldExit triggers once the order-book edge is long gone — this
// strategy holds for minutes, not hours.
func (s *ScalpingStrategy) ShouldExit(market string, entry, current, holdingSeconds float64) bool {
	return holdingSeconds > 900 && current <= entry
}

// UpdateState records the latest observed price for market.
func (s *ScalpingStrategy) UpdateState(market string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[market] = price
}

// UpdateStatistics is a no-op — scalping doesn't adapt its own thresholds.
func (s *ScalpingStrategy) UpdateStatistics(market string, isWin bool, pnl float64) {}

// OnSignalAccepted never vetoes.
func (s *ScalpingStrategy) OnSignalAccepted(domain.Signal, float64) bool { return true }

var (
	_ ports.Strategy = (*MomentumStrategy)(nil)
	_ ports.Strategy = (*ScalpingStrategy)(nil)
)
