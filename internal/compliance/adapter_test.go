package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

type stubExchange struct {
	chance       domain.InstrumentRule
	chanceErr    error
	tickRules    map[string][]domain.TickSizeRule
	tickErr      error
	chanceCalls  int
	tickCalls    int
}

func (s *stubExchange) Markets(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubExchange) Ticker(ctx context.Context, markets []string) (map[string]float64, error) {
	return nil, nil
}
func (s *stubExchange) Orderbook(ctx context.Context, markets []string) (map[string]domain.OrderBook, error) {
	return nil, nil
}
func (s *stubExchange) MinuteCandles(ctx context.Context, market string, unit, count int) ([]domain.Candle, error) {
	return nil, nil
}
func (s *stubExchange) DayCandles(ctx context.Context, market string, count int) ([]domain.Candle, error) {
	return nil, nil
}
func (s *stubExchange) Accounts(ctx context.Context) ([]domain.Account, error) { return nil, nil }
func (s *stubExchange) Chance(ctx context.Context, market string) (domain.InstrumentRule, error) {
	s.chanceCalls++
	return s.chance, s.chanceErr
}
func (s *stubExchange) TickSize(ctx context.Context, markets []string) (map[string][]domain.TickSizeRule, error) {
	s.tickCalls++
	return s.tickRules, s.tickErr
}
func (s *stubExchange) Order(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (s *stubExchange) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	return domain.Order{}, nil
}
func (s *stubExchange) CancelOrder(ctx context.Context, orderID string) error { return nil }

type alwaysAdmit struct{}

func (alwaysAdmit) CanEnterPosition(market string, sizeRatio float64) bool { return true }

func newValidExchange() *stubExchange {
	return &stubExchange{
		chance: domain.InstrumentRule{Market: "KRW-BTC", State: "active", MinTotal: 5000},
		tickRules: map[string][]domain.TickSizeRule{
			"KRW-BTC": {{MinPrice: 0, MaxPrice: 0, TickSize: 1000}},
		},
	}
}

func TestValidate_PassThroughWhenNotLive(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, false)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.01)
	assert.NoError(t, err)
}

func TestValidate_PassesWithValidOrder(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1)
	assert.NoError(t, err)
}

func TestValidate_RejectsBelowMinNotional(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 100, 0.01)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below_min_notional")
}

func TestValidate_RejectsInactiveMarket(t *testing.T) {
	ex := newValidExchange()
	ex.chance.State = "delisted"
	a := New(ex, alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market_not_active")
}

func TestValidate_RejectsUnsupportedOrderTypeForSide(t *testing.T) {
	ex := newValidExchange()
	ex.chance.BidTypes = []string{"price"}
	a := New(ex, alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_type_not_supported")
}

func TestValidate_PassesWhenOrderTypeSupported(t *testing.T) {
	ex := newValidExchange()
	ex.chance.BidTypes = []string{"limit", "price"}
	ex.chance.AskTypes = []string{"limit", "market"}
	a := New(ex, alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1)
	assert.NoError(t, err)
}

func TestValidate_RejectsMisalignedTick(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)
	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000.5, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick_size_misaligned")
}

func TestValidate_UsesStaleChanceCacheOnNetworkFailure(t *testing.T) {
	ex := newValidExchange()
	a := New(ex, alwaysAdmit{}, true)

	require.NoError(t, a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1))
	assert.Equal(t, 1, ex.chanceCalls)

	a.mu.Lock()
	entry := a.chanceCache["KRW-BTC"]
	entry.fetchedAt = time.Now().Add(-chanceTTL - time.Second)
	a.chanceCache["KRW-BTC"] = entry
	a.mu.Unlock()
	ex.chanceErr = assertErr{}

	err := a.Validate(context.Background(), "KRW-BTC", domain.Buy, 101000, 0.1)
	assert.NoError(t, err)
}

func TestNoTradeDegrade_ExponentialBackoffNeverShrinks(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)

	a.triggerNoTradeDegrade("reason1", degradeBase)
	a.mu.Lock()
	first := a.noTradeUntil
	a.mu.Unlock()

	a.triggerNoTradeDegrade("reason2", degradeBase)
	a.mu.Lock()
	second := a.noTradeUntil
	a.mu.Unlock()

	assert.True(t, second.After(first) || second.Equal(first))
}

func TestIsNoTradeDegraded_ClearsAfterExpiry(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)
	a.mu.Lock()
	a.noTradeUntil = time.Now().Add(-time.Second)
	a.mu.Unlock()

	_, degraded := a.isNoTradeDegraded()
	assert.False(t, degraded)
}

func TestObserveRateLimit_TriggersDegradeWhenLow(t *testing.T) {
	a := New(newValidExchange(), alwaysAdmit{}, true)
	a.ObserveRateLimit(domain.GroupOrder, 1)

	_, degraded := a.isNoTradeDegraded()
	assert.True(t, degraded)
}

type assertErr struct{}

func (assertErr) Error() string { return "network failure" }
