// Package scanner implements ports.MarketScanner: on every Scan it pulls
// the exchange's market list, order books, and recent candles, then derives
// the CoinMetrics the Strategy Manager ranks on. Grounded on the teacher's
// scan orchestrator, with its market/book fetch followed by a concurrent
// per-market analysis pass.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

// Config controls the candle window and concurrency of one Scan pass.
type Config struct {
	CandleUnit   int // minute-candle unit, e.g. 5
	CandleCount  int // candles fetched per market
	SurgeWindow  int // trailing candles averaged for VolumeSurgeRatio
	Workers      int // 0 = runtime.NumCPU() * 2
}

// DefaultConfig matches the teacher's 5-minute/48-candle default scan window.
func DefaultConfig() Config {
	return Config{CandleUnit: 5, CandleCount: 48, SurgeWindow: 12, Workers: 0}
}

// Scanner is the MarketScanner implementation.
type Scanner struct {
	cfg      Config
	exchange ports.ExchangeClient
}

// New builds a Scanner over exchange with the given Config.
func New(cfg Config, exchange ports.ExchangeClient) *Scanner {
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = DefaultConfig().CandleCount
	}
	if cfg.CandleUnit <= 0 {
		cfg.CandleUnit = DefaultConfig().CandleUnit
	}
	if cfg.SurgeWindow <= 0 {
		cfg.SurgeWindow = DefaultConfig().SurgeWindow
	}
	return &Scanner{cfg: cfg, exchange: exchange}
}

// Scan fetches markets, tickers, and order books in one batch, then
// analyzes each market's candles concurrently via a worker pool — the
// teacher's fetch-then-fan-out shape, generalized from opportunity
// analysis to CoinMetrics derivation.
func (s *Scanner) Scan(ctx context.Context) ([]domain.CoinMetrics, error) {
	markets, err := s.exchange.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner.Scan: markets: %w", err)
	}
	if len(markets) == 0 {
		return nil, nil
	}

	tickers, err := s.exchange.Ticker(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("scanner.Scan: ticker: %w", err)
	}
	books, err := s.exchange.Orderbook(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("scanner.Scan: orderbook: %w", err)
	}

	return s.analyzeConcurrent(ctx, markets, tickers, books), nil
}

func (s *Scanner) analyzeConcurrent(
	ctx context.Context,
	markets []string,
	tickers map[string]float64,
	books map[string]domain.OrderBook,
) []domain.CoinMetrics {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	type work struct {
		market string
		price  float64
		book   domain.OrderBook
	}

	workCh := make(chan work, len(markets))
	resultCh := make(chan domain.CoinMetrics, len(markets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				m, err := s.analyzeOne(ctx, w.market, w.price, w.book)
				if err != nil {
					slog.Debug("scanner: analyze failed", "market", w.market, "err", err)
					continue
				}
				resultCh <- m
			}
		}()
	}

	queued := 0
	for _, market := range markets {
		price, ok := tickers[market]
		if !ok || price <= 0 {
			continue
		}
		workCh <- work{market: market, price: price, book: books[market]}
		queued++
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make([]domain.CoinMetrics, 0, queued)
	for m := range resultCh {
		out = append(out, m)
	}
	return out
}

// analyzeOne fetches one market's candle series and derives its CoinMetrics.
func (s *Scanner) analyzeOne(ctx context.Context, market string, price float64, book domain.OrderBook) (domain.CoinMetrics, error) {
	candles, err := s.exchange.MinuteCandles(ctx, market, s.cfg.CandleUnit, s.cfg.CandleCount)
	if err != nil {
		return domain.CoinMetrics{}, fmt.Errorf("scanner.analyzeOne: candles for %s: %w", market, err)
	}
	dayCandles, err := s.exchange.DayCandles(ctx, market, 1)
	if err != nil {
		return domain.CoinMetrics{}, fmt.Errorf("scanner.analyzeOne: day candle for %s: %w", market, err)
	}

	var volume24h float64
	if len(dayCandles) > 0 {
		volume24h = dayCandles[len(dayCandles)-1].Volume
	}

	m := domain.CoinMetrics{
		Market:             market,
		CurrentPrice:       price,
		Volume24h:          volume24h,
		LiquidityScore:     liquidityScore(book, price),
		VolumeSurgeRatio:   volumeSurgeRatio(candles, s.cfg.SurgeWindow),
		PriceMomentum:      priceMomentum(candles),
		OrderBookImbalance: book.Imbalance(),
		Volatility:         volatility(candles),
		Candles:            candles,
		CandlesByTF:        map[string][]domain.Candle{fmt.Sprintf("%d", s.cfg.CandleUnit): candles},
		Orderbook:          book,
	}
	m.CompositeScore = compositeScore(m)
	return m, nil
}

// liquidityScore is the combined bid+ask depth within 1% of price, scaled
// by price so it's comparable in KRW terms, then log-compressed into a
// roughly [0, 2] range so thin and deep markets don't swamp the composite.
func liquidityScore(book domain.OrderBook, price float64) float64 {
	if price <= 0 {
		return 0
	}
	band := price * 0.01
	var depth float64
	for _, b := range book.Bids {
		if price-b.Price <= band {
			depth += b.Size * b.Price
		}
	}
	for _, a := range book.Asks {
		if a.Price-price <= band {
			depth += a.Size * a.Price
		}
	}
	if depth <= 0 {
		return 0
	}
	return math.Log10(1 + depth/1_000_000)
}

// volumeSurgeRatio is the most recent candle's volume over the mean volume
// of the trailing window candles before it.
func volumeSurgeRatio(candles []domain.Candle, window int) float64 {
	if len(candles) < 2 {
		return 1.0
	}
	latest := candles[len(candles)-1]
	start := len(candles) - 1 - window
	if start < 0 {
		start = 0
	}
	trailing := candles[start : len(candles)-1]
	if len(trailing) == 0 {
		return 1.0
	}
	var sum float64
	for _, c := range trailing {
		sum += c.Volume
	}
	avg := sum / float64(len(trailing))
	if avg <= 0 {
		return 1.0
	}
	return latest.Volume / avg
}

// priceMomentum is 1.0 plus the fractional return from the window's first
// close to its last close, so "no momentum" reads as 1.0, matching the
// strategies' >= 1.0 thresholds.
func priceMomentum(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 1.0
	}
	first, last := candles[0].Close, candles[len(candles)-1].Close
	if first <= 0 {
		return 1.0
	}
	return 1.0 + (last-first)/first
}

// volatility is the standard deviation of bar-over-bar returns.
func volatility(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// compositeScore blends the derived signals into the single ranking value
// the engine truncates to its top-20 candidates by.
func compositeScore(m domain.CoinMetrics) float64 {
	volatilityPenalty := 1.0 / (1.0 + m.Volatility*10)
	return m.PriceMomentum*0.35 +
		m.VolumeSurgeRatio*0.25 +
		m.LiquidityScore*0.2 +
		(1+m.OrderBookImbalance)*0.1 +
		volatilityPenalty*0.1
}

var _ ports.MarketScanner = (*Scanner)(nil)
