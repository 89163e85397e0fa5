package domain

// Candle is one OHLCV bar. Sequences are time-ascending.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp int64 // ms since epoch
}

// CoinMetrics is what the market scanner collaborator produces for one
// market on each scan pass: the raw candle/orderbook material plus the
// derived scores the Strategy Manager and composite ranking consume.
type CoinMetrics struct {
	Market       string
	CurrentPrice float64
	Volume24h    float64

	LiquidityScore     float64
	VolumeSurgeRatio   float64
	PriceMomentum      float64
	OrderBookImbalance float64
	Volatility         float64
	CompositeScore     float64

	// Candles is the scanner's default timeframe series; CandlesByTF maps a
	// timeframe key ("1", "3", "5", "15", "60", "240", "D") to its series.
	// The scanner fills only the key of its own candle unit.
	Candles     []Candle
	CandlesByTF map[string][]Candle

	Orderbook OrderBook
}
