package execution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

type fakeExchange struct {
	nextID    int
	orders    map[string]domain.Order
	orderbook domain.OrderBook
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{orders: make(map[string]domain.Order)}
}

func (f *fakeExchange) Markets(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeExchange) Ticker(ctx context.Context, markets []string) (map[string]float64, error) {
	return nil, nil
}
func (f *fakeExchange) Orderbook(ctx context.Context, markets []string) (map[string]domain.OrderBook, error) {
	out := make(map[string]domain.OrderBook)
	for _, m := range markets {
		out[m] = f.orderbook
	}
	return out, nil
}
func (f *fakeExchange) MinuteCandles(ctx context.Context, market string, unit, count int) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) DayCandles(ctx context.Context, market string, count int) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) Accounts(ctx context.Context) ([]domain.Account, error) { return nil, nil }
func (f *fakeExchange) Chance(ctx context.Context, market string) (domain.InstrumentRule, error) {
	return domain.InstrumentRule{}, nil
}
func (f *fakeExchange) TickSize(ctx context.Context, markets []string) (map[string][]domain.TickSizeRule, error) {
	return nil, nil
}
func (f *fakeExchange) Order(ctx context.Context, orderID string) (domain.Order, error) {
	return f.orders[orderID], nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	f.nextID++
	id := string(rune('A' + f.nextID))
	o := domain.Order{ID: id, Market: req.Market, Side: req.Side, Price: req.Price, Volume: req.Volume, Status: domain.StatusSubmitted}
	f.orders[id] = o
	return o, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	o := f.orders[orderID]
	o.Status = domain.StatusCancelled
	f.orders[orderID] = o
	return nil
}

func newTestManager(t *testing.T, client ports.ExchangeClient) *Manager {
	t.Helper()
	dir := t.TempDir()
	w, err := NewUpdateWriter(filepath.Join(dir, "updates.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return NewManager(client, nil, w)
}

func TestSubmit_TracksOrderAsActive(t *testing.T) {
	client := newFakeExchange()
	m := newTestManager(t, client)

	o, err := m.Submit(context.Background(), "KRW-BTC", domain.Buy, 100000, 0.01, "scalper", domain.ExitParams{})
	require.NoError(t, err)
	assert.True(t, m.HasActiveOrder("KRW-BTC"))
	assert.Equal(t, domain.StatusSubmitted, o.Status)
}

func TestDrainFilledOrders_RemovesFullyFilled(t *testing.T) {
	client := newFakeExchange()
	m := newTestManager(t, client)

	o, err := m.Submit(context.Background(), "KRW-BTC", domain.Buy, 100000, 0.01, "scalper", domain.ExitParams{})
	require.NoError(t, err)

	m.mu.Lock()
	m.orders[o.ID].FilledVolume = o.Volume
	m.orders[o.ID].Status = domain.StatusFilled
	m.mu.Unlock()

	drained := m.DrainFilledOrders()
	require.Len(t, drained, 1)
	assert.Equal(t, o.ID, drained[0].ID)
	assert.False(t, m.HasActiveOrder("KRW-BTC"))
}

func TestDrainFilledOrders_DropsZeroFillTerminal(t *testing.T) {
	client := newFakeExchange()
	m := newTestManager(t, client)

	o, err := m.Submit(context.Background(), "KRW-BTC", domain.Sell, 100000, 0.01, "scalper", domain.ExitParams{})
	require.NoError(t, err)

	m.mu.Lock()
	m.orders[o.ID].Status = domain.StatusRejected
	m.mu.Unlock()

	drained := m.DrainFilledOrders()
	assert.Empty(t, drained)
	m.mu.Lock()
	_, stillTracked := m.orders[o.ID]
	m.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestCancel_UnknownOrder(t *testing.T) {
	client := newFakeExchange()
	m := newTestManager(t, client)

	err := m.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoActiveOrder)
}

func TestCancel_AlreadyTerminal(t *testing.T) {
	client := newFakeExchange()
	m := newTestManager(t, client)

	o, err := m.Submit(context.Background(), "KRW-BTC", domain.Buy, 100000, 0.01, "scalper", domain.ExitParams{})
	require.NoError(t, err)

	m.mu.Lock()
	m.orders[o.ID].Status = domain.StatusFilled
	m.mu.Unlock()

	err = m.Cancel(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestUpdateWriter_AppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updates.jsonl")
	w, err := NewUpdateWriter(path)
	require.NoError(t, err)
	defer w.Close()

	w.Write(ExecutionUpdate{TsMs: 1, Source: "live_submit", Event: "submitted", OrderID: "A", Market: "KRW-BTC", Side: "BUY", Status: "SUBMITTED"})
	w.Write(ExecutionUpdate{TsMs: 2, Source: "live_cancel", Event: "cancelled", OrderID: "A", Market: "KRW-BTC", Side: "BUY", Status: "CANCELLED", Terminal: true})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"order_id":"A"`)
	assert.Equal(t, 2, countLines(string(data)))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
