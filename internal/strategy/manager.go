// Package strategy implements the Strategy Manager aggregator: it owns no
// trading logic itself, only the collect/filter/select/synthesize pipeline
// that turns each registered Strategy's opinion into the single Signal the
// engine acts on.
package strategy

import (
	"log/slog"
	"sort"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

const defaultMinStrength = 0.6

// strengthMultiplier weights a raw Signal.Strength by how committed its
// type is, before the rr_ratio multiplier is applied.
func strengthMultiplier(t domain.SignalType) float64 {
	switch t {
	case domain.SignalStrongBuy, domain.SignalStrongSell:
		return 1.5
	case domain.SignalBuy, domain.SignalSell:
		return 1.0
	default:
		return 0.5
	}
}

// rrMultiplier is min(2.0, rr_ratio/2.0) where rr_ratio is the reward
// distance over the risk distance; signals with no computable risk (stop
// at or past entry) get a neutral 1.0 so they aren't penalized for a
// strategy that doesn't set a stop.
func rrMultiplier(sig domain.Signal) float64 {
	risk := sig.EntryPrice - sig.StopLoss
	if sig.Type == domain.SignalSell || sig.Type == domain.SignalStrongSell {
		risk = sig.StopLoss - sig.EntryPrice
	}
	if risk <= 0 {
		return 1.0
	}
	reward := sig.TakeProfit2 - sig.EntryPrice
	if sig.Type == domain.SignalSell || sig.Type == domain.SignalStrongSell {
		reward = sig.EntryPrice - sig.TakeProfit2
	}
	if reward <= 0 {
		return 1.0
	}
	rr := reward / risk
	m := rr / 2.0
	if m > 2.0 {
		return 2.0
	}
	return m
}

// compositeScore is the selection key: raw strength times both multipliers.
func compositeScore(sig domain.Signal) float64 {
	return sig.Strength * strengthMultiplier(sig.Type) * rrMultiplier(sig)
}

func isActionable(t domain.SignalType) bool {
	switch t {
	case domain.SignalBuy, domain.SignalStrongBuy, domain.SignalSell, domain.SignalStrongSell:
		return true
	default:
		return false
	}
}

// Manager is the Strategy Manager: one ports.Strategy per registered name.
type Manager struct {
	strategies  []ports.Strategy
	minStrength float64
}

// New builds a Manager over strategies with the default 0.6 strength floor.
func New(strategies []ports.Strategy) *Manager {
	return &Manager{strategies: strategies, minStrength: defaultMinStrength}
}

// WithMinStrength overrides the default strength floor.
func (m *Manager) WithMinStrength(threshold float64) *Manager {
	m.minStrength = threshold
	return m
}

// Best collects one Signal per strategy for metrics, filters out anything
// below the strength floor or not actionable, and returns the
// highest-composite-score survivor. The bool is false if nothing survived.
func (m *Manager) Best(metrics domain.CoinMetrics) (domain.Signal, bool) {
	candidates := m.collect(metrics)
	if len(candidates) == 0 {
		return domain.Signal{}, false
	}

	best := candidates[0]
	bestScore := compositeScore(best)
	for _, c := range candidates[1:] {
		if s := compositeScore(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, true
}

// collect runs every strategy and returns the actionable, above-threshold
// signals, logging (not failing) on a strategy that errors.
func (m *Manager) collect(metrics domain.CoinMetrics) []domain.Signal {
	var out []domain.Signal
	for _, s := range m.strategies {
		sig, err := s.Analyze(metrics)
		if err != nil {
			slog.Warn("strategy analyze failed", "strategy", s.Name(), "market", metrics.Market, "err", err)
			continue
		}
		if !isActionable(sig.Type) || sig.Strength < m.minStrength {
			continue
		}
		if sig.StrategyName == "" {
			sig.StrategyName = s.Name()
		}
		out = append(out, sig)
	}
	return out
}

// Synthesize produces a majority-vote signal across every registered
// strategy's opinion for backtesting: the side with the most votes wins,
// ties broken toward the first candidate encountered, and entry/stop/TP
// levels are the per-field median of the signals on the winning side.
func (m *Manager) Synthesize(metrics domain.CoinMetrics) (domain.Signal, bool) {
	candidates := m.collect(metrics)
	if len(candidates) == 0 {
		return domain.Signal{}, false
	}

	votes := map[domain.SignalType][]domain.Signal{}
	for _, c := range candidates {
		votes[c.Type] = append(votes[c.Type], c)
	}

	var winningType domain.SignalType
	winningCount := -1
	for _, c := range candidates {
		if n := len(votes[c.Type]); n > winningCount {
			winningType, winningCount = c.Type, n
		}
	}
	group := votes[winningType]

	return domain.Signal{
		Type:         winningType,
		Market:       metrics.Market,
		Strength:     median(fieldOf(group, func(s domain.Signal) float64 { return s.Strength })),
		EntryPrice:   median(fieldOf(group, func(s domain.Signal) float64 { return s.EntryPrice })),
		StopLoss:     median(fieldOf(group, func(s domain.Signal) float64 { return s.StopLoss })),
		TakeProfit1:  median(fieldOf(group, func(s domain.Signal) float64 { return s.TakeProfit1 })),
		TakeProfit2:  median(fieldOf(group, func(s domain.Signal) float64 { return s.TakeProfit2 })),
		PositionSize: median(fieldOf(group, func(s domain.Signal) float64 { return s.PositionSize })),
		StrategyName: "synthesis",
		Reason:       "majority_vote",
	}, true
}

// Accept dispatches OnSignalAccepted to the strategy named by
// sig.StrategyName with the capital actually allocated to it, returning
// its veto decision. A signal whose strategy can't be found (e.g. the
// "synthesis" pseudo-strategy) is accepted by default.
func (m *Manager) Accept(sig domain.Signal, allocatedCapital float64) bool {
	for _, s := range m.strategies {
		if s.Name() == sig.StrategyName {
			return s.OnSignalAccepted(sig, allocatedCapital)
		}
	}
	return true
}

func fieldOf(signals []domain.Signal, f func(domain.Signal) float64) []float64 {
	out := make([]float64, len(signals))
	for i, s := range signals {
		out[i] = f(s)
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
