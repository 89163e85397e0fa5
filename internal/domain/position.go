package domain

import "time"

// MarketRegime is the market condition recorded at signal time, carried
// through to Position/TradeHistory for later learning-state bucketing.
type MarketRegime string

const (
	RegimeUnknown    MarketRegime = "UNKNOWN"
	RegimeTrending   MarketRegime = "TRENDING"
	RegimeRanging    MarketRegime = "RANGING"
	RegimeVolatile   MarketRegime = "VOLATILE"
	RegimeBreakout   MarketRegime = "BREAKOUT"
)

// SignalMetadata is the signal-time context carried on a Position (and
// later a TradeHistory record) purely for realized-win-rate learning —
// the "dynamic filter" feedback loop named in spec.md's non-goals.
type SignalMetadata struct {
	FilterThreshold float64
	Strength        float64
	Regime          MarketRegime
	Liquidity       float64
	Volatility      float64
	ExpectedValue   float64
	RewardRisk      float64
}

// PendingExit describes an in-flight SELL submitted against a Position.
// Nothing in the engine sets or checks Position.Pending; a second exit is
// not blocked by it.
type PendingExit struct {
	OrderUUID string
	Type      string // "sell" or "partial_sell"
	Price     float64
	At        time.Time
}

// Position is exposure in one market owned by one strategy. At most one
// Position may exist per market at a time (enforced by the Risk Manager's
// store).
type Position struct {
	Market         string
	EntryPrice     float64 // volume-weighted after partial exits
	CurrentPrice   float64
	Quantity       float64
	InvestedAmount float64
	EntryTime      time.Time

	UnrealizedPnL    float64
	UnrealizedPnLPct float64

	StopLoss         float64
	TakeProfit1      float64
	TakeProfit2      float64
	HalfClosed       bool
	HighestPrice     float64
	BreakevenTrigger float64
	TrailingStart    float64

	StrategyName string
	Signal       SignalMetadata

	Pending *PendingExit
}

// Valid reports the entry-time invariant stop_loss < entry_price <=
// take_profit_1 <= take_profit_2.
func (p Position) Valid() bool {
	return p.Quantity > 0 &&
		p.StopLoss < p.EntryPrice &&
		p.EntryPrice <= p.TakeProfit1 &&
		p.TakeProfit1 <= p.TakeProfit2
}
