package domain

// SignalType is the action a strategy is proposing.
type SignalType string

const (
	SignalNone       SignalType = "NONE"
	SignalBuy        SignalType = "BUY"
	SignalStrongBuy  SignalType = "STRONG_BUY"
	SignalSell       SignalType = "SELL"
	SignalStrongSell SignalType = "STRONG_SELL"
	SignalHold       SignalType = "HOLD"
)

// Signal is one strategy's recommendation for one market on one scan pass.
// The Strategy Manager collects these across every enabled strategy, drops
// anything below the minimum strength, and ranks what survives by its own
// signal score (strength weighted by signal type and reward/risk) before
// handing the winner to the engine's signal execution policy.
type Signal struct {
	Type     SignalType
	Market   string
	Strength float64 // 0..1, strategy's own confidence

	EntryPrice  float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64

	// PositionSize is a fraction of deployable capital (0..1); the Risk
	// Manager's sizing still has the final say.
	PositionSize float64

	StrategyName string

	// BuyOrderType/SellOrderType are "limit" or "market", recording the
	// order type the strategy prefers. The engine does not read them: it
	// always submits a limit order on the limit-chase path.
	BuyOrderType  string
	SellOrderType string

	MaxRetries  int
	RetryWaitMs int

	Reason string

	Meta SignalMetadata
}
