package ports

import "github.com/iljae-kwon/korbit-engine/internal/domain"

// Strategy is the contract every quantitative strategy collaborator
// implements. The Strategy Manager holds one instance per enabled strategy
// name and never reaches into a strategy's internals.
type Strategy interface {
	// Name is the strategy_name carried on every Signal, Position, and
	// TradeHistory it produces.
	Name() string

	// Analyze returns this strategy's Signal for one market given its
	// current CoinMetrics (candles, orderbook, derived scores). A
	// SignalNone/SignalHold type means "nothing to do here" and is filtered
	// out before ranking.
	Analyze(metrics domain.CoinMetrics) (domain.Signal, error)

	// ShouldExit reports whether an open Position in market should be
	// closed given entry/current price and time held, independent of the
	// Risk Manager's own stop/target checks.
	ShouldExit(market string, entry, current float64, holdingSeconds float64) bool

	// UpdateState lets a strategy track a running price series per market
	// between Analyze calls (e.g. for trailing internal indicators).
	UpdateState(market string, price float64)

	// UpdateStatistics feeds back the realized outcome of a closed trade
	// for this strategy's own win-rate bookkeeping.
	UpdateStatistics(market string, isWin bool, pnl float64)

	// OnSignalAccepted is called once a Signal clears the Risk Manager and
	// Compliance gate and is about to be submitted, with the capital
	// actually allocated to it. Returning false vetoes the submission.
	OnSignalAccepted(signal domain.Signal, allocatedCapital float64) bool
}
