package ports

import "github.com/iljae-kwon/korbit-engine/internal/domain"

// Indicators is the pure-function technical-indicator surface strategies
// are written against. Every method is a pure function of its candle
// argument — no internal state, no I/O.
type Indicators interface {
	RSI(candles []domain.Candle, period int) []float64
	MACD(candles []domain.Candle, fast, slow, signal int) (macd, signalLine, hist []float64)
	Bollinger(candles []domain.Candle, period int, numStdDev float64) (upper, middle, lower []float64)
	ATR(candles []domain.Candle, period int) []float64
	ADX(candles []domain.Candle, period int) []float64
	EMA(candles []domain.Candle, period int) []float64
	SMA(candles []domain.Candle, period int) []float64
	Stochastic(candles []domain.Candle, kPeriod, kSlow, dPeriod int) (k, d []float64)
	VWAP(candles []domain.Candle) []float64

	// SupportResistance returns price levels derived from local
	// swing highs/lows over the given lookback.
	SupportResistance(candles []domain.Candle, lookback int) (support, resistance []float64)

	// Fibonacci returns the standard retracement levels (0.236, 0.382,
	// 0.5, 0.618, 0.786) between the lowest low and highest high in
	// candles.
	Fibonacci(candles []domain.Candle) map[string]float64
}
