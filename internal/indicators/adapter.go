// Package indicators adapts github.com/markcheno/go-talib's slice-oriented
// functions to the ports.Indicators surface strategies consume.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// TALib is the ports.Indicators implementation.
type TALib struct{}

// New builds a TALib adapter.
func New() *TALib { return &TALib{} }

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highs(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lows(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// RSI is the relative strength index over period.
func (TALib) RSI(candles []domain.Candle, period int) []float64 {
	return talib.Rsi(closes(candles), period)
}

// MACD returns the MACD line, signal line, and histogram.
func (TALib) MACD(candles []domain.Candle, fast, slow, signal int) (macd, signalLine, hist []float64) {
	return talib.Macd(closes(candles), fast, slow, signal)
}

// Bollinger returns the upper, middle, and lower bands.
func (TALib) Bollinger(candles []domain.Candle, period int, numStdDev float64) (upper, middle, lower []float64) {
	return talib.BBands(closes(candles), period, numStdDev, numStdDev, talib.SMA)
}

// ATR is the average true range over period.
func (TALib) ATR(candles []domain.Candle, period int) []float64 {
	return talib.Atr(highs(candles), lows(candles), closes(candles), period)
}

// ADX is the average directional index over period.
func (TALib) ADX(candles []domain.Candle, period int) []float64 {
	return talib.Adx(highs(candles), lows(candles), closes(candles), period)
}

// EMA is the exponential moving average over period.
func (TALib) EMA(candles []domain.Candle, period int) []float64 {
	return talib.Ema(closes(candles), period)
}

// SMA is the simple moving average over period.
func (TALib) SMA(candles []domain.Candle, period int) []float64 {
	return talib.Sma(closes(candles), period)
}

// Stochastic returns the slow %K and %D lines.
func (TALib) Stochastic(candles []domain.Candle, kPeriod, kSlow, dPeriod int) (k, d []float64) {
	return talib.Stoch(highs(candles), lows(candles), closes(candles), kPeriod, kSlow, talib.SMA, dPeriod, talib.SMA)
}

// VWAP is the cumulative volume-weighted average price. go-talib has no
// native VWAP, so it is computed directly from the candle series —
// typical price weighted by volume, cumulative over the whole window.
func (TALib) VWAP(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	var cumPV, cumVol float64
	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		cumPV += typical * c.Volume
		cumVol += c.Volume
		if cumVol == 0 {
			out[i] = typical
			continue
		}
		out[i] = cumPV / cumVol
	}
	return out
}

// SupportResistance finds local swing lows/highs over lookback bars on
// each side — a price is a swing low/high if it is the minimum/maximum of
// the window centered on it.
func (TALib) SupportResistance(candles []domain.Candle, lookback int) (support, resistance []float64) {
	n := len(candles)
	for i := lookback; i < n-lookback; i++ {
		isLow, isHigh := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
		}
		if isLow {
			support = append(support, candles[i].Low)
		}
		if isHigh {
			resistance = append(resistance, candles[i].High)
		}
	}
	return support, resistance
}

// Fibonacci returns the standard retracement levels between the lowest
// low and highest high across candles.
func (TALib) Fibonacci(candles []domain.Candle) map[string]float64 {
	if len(candles) == 0 {
		return map[string]float64{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	diff := hi - lo
	return map[string]float64{
		"0.0":   hi,
		"0.236": hi - 0.236*diff,
		"0.382": hi - 0.382*diff,
		"0.5":   hi - 0.5*diff,
		"0.618": hi - 0.618*diff,
		"0.786": hi - 0.786*diff,
		"1.0":   lo,
	}
}
