package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

type fakeExchange struct {
	markets  []string
	tickers  map[string]float64
	books    map[string]domain.OrderBook
	minute   []domain.Candle
	day      []domain.Candle
}

func (f *fakeExchange) Markets(ctx context.Context) ([]string, error) { return f.markets, nil }
func (f *fakeExchange) Ticker(ctx context.Context, markets []string) (map[string]float64, error) {
	return f.tickers, nil
}
func (f *fakeExchange) Orderbook(ctx context.Context, markets []string) (map[string]domain.OrderBook, error) {
	return f.books, nil
}
func (f *fakeExchange) MinuteCandles(ctx context.Context, market string, unit, count int) ([]domain.Candle, error) {
	return f.minute, nil
}
func (f *fakeExchange) DayCandles(ctx context.Context, market string, count int) ([]domain.Candle, error) {
	return f.day, nil
}
func (f *fakeExchange) Accounts(ctx context.Context) ([]domain.Account, error) { return nil, nil }
func (f *fakeExchange) Chance(ctx context.Context, market string) (domain.InstrumentRule, error) {
	return domain.InstrumentRule{}, nil
}
func (f *fakeExchange) TickSize(ctx context.Context, markets []string) (map[string][]domain.TickSizeRule, error) {
	return nil, nil
}
func (f *fakeExchange) Order(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	return domain.Order{}, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error { return nil }

func makeCandles(closes []float64, volume float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{Open: c, High: c, Low: c, Close: c, Volume: volume}
	}
	return out
}

func TestScan_FiltersMarketsWithNoTicker(t *testing.T) {
	ex := &fakeExchange{
		markets: []string{"KRW-BTC", "KRW-ETH"},
		tickers: map[string]float64{"KRW-BTC": 100_000_000},
		books:   map[string]domain.OrderBook{"KRW-BTC": {Bids: []domain.BookEntry{{Price: 99_900_000, Size: 1}}, Asks: []domain.BookEntry{{Price: 100_100_000, Size: 1}}}},
		minute:  makeCandles([]float64{99_000_000, 100_000_000}, 10),
		day:     makeCandles([]float64{100_000_000}, 500_000_000),
	}
	s := New(DefaultConfig(), ex)

	metrics, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "KRW-BTC", metrics[0].Market)
	assert.Equal(t, 500_000_000.0, metrics[0].Volume24h)
}

func TestScan_NoMarketsReturnsEmpty(t *testing.T) {
	s := New(DefaultConfig(), &fakeExchange{})
	metrics, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestPriceMomentum_RisingSeriesAboveOne(t *testing.T) {
	candles := makeCandles([]float64{100, 105, 110}, 1)
	assert.Greater(t, priceMomentum(candles), 1.0)
}

func TestPriceMomentum_FlatSeriesIsOne(t *testing.T) {
	candles := makeCandles([]float64{100, 100, 100}, 1)
	assert.Equal(t, 1.0, priceMomentum(candles))
}

func TestVolumeSurgeRatio_SpikeAboveOne(t *testing.T) {
	candles := []domain.Candle{
		{Volume: 10}, {Volume: 10}, {Volume: 10}, {Volume: 50},
	}
	assert.Greater(t, volumeSurgeRatio(candles, 3), 1.0)
}

func TestVolatility_ZeroForFlatSeries(t *testing.T) {
	candles := makeCandles([]float64{100, 100, 100}, 1)
	assert.Equal(t, 0.0, volatility(candles))
}

func TestLiquidityScore_ZeroForEmptyBook(t *testing.T) {
	assert.Equal(t, 0.0, liquidityScore(domain.OrderBook{}, 100_000_000))
}
