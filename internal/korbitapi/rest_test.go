package korbitapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

func decodeJSONBody(r *http.Request, out any) {
	_ = json.NewDecoder(r.Body).Decode(out)
}

func placeOrderReq() ports.PlaceOrderRequest {
	return ports.PlaceOrderRequest{
		Market: "KRW-BTC",
		Side:   domain.Buy,
		Type:   ports.OrderTypeLimit,
		Price:  100,
		Volume: 1,
	}
}

func TestMinuteCandles_ReversesToAscendingOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"opening_price":102,"high_price":103,"low_price":101,"trade_price":102.5,"candle_acc_trade_volume":10,"timestamp":3000},
			{"opening_price":100,"high_price":101,"low_price":99,"trade_price":100.5,"candle_acc_trade_volume":5,"timestamp":2000}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	candles, err := c.MinuteCandles(context.Background(), "KRW-BTC", 1, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(2000), candles[0].Timestamp)
	assert.Equal(t, int64(3000), candles[1].Timestamp)
}

func TestAccounts_ParsesStringBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"currency":"KRW","balance":"100000.0","locked":"5000.0","avg_buy_price":"0"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	accts, err := c.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, 100000.0, accts[0].Balance)
	assert.Equal(t, 5000.0, accts[0].Locked)
}

func TestChance_TakesMaxOfBidAskMinTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market":{"id":"KRW-BTC","state":"active","bid":{"min_total":"5000","fee":"0.0005"},"ask":{"min_total":"5500","fee":"0.0005"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	rule, err := c.Chance(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, "active", rule.State)
	assert.Equal(t, 5500.0, rule.MinTotal)
}

func TestChance_CarriesSupportedOrderTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market":{"id":"KRW-BTC","state":"active","ask_types":["limit","market"],"bid_types":["limit","price"],"bid":{"min_total":"5000","fee":"0.0005"},"ask":{"min_total":"5000","fee":"0.0005"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	rule, err := c.Chance(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, []string{"limit", "market"}, rule.AskTypes)
	assert.Equal(t, []string{"limit", "price"}, rule.BidTypes)
}

func TestPlaceOrder_LimitIncludesPriceAndVolume(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(r, &gotBody)
		w.Write([]byte(`{"uuid":"o-1","market":"KRW-BTC","side":"bid","price":"100","volume":"1","executed_volume":"0","state":"wait"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	order, err := c.PlaceOrder(context.Background(), placeOrderReq())
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, domain.StatusSubmitted, order.Status)
	assert.Contains(t, gotBody, "price")
	assert.Contains(t, gotBody, "volume")
}

func TestOrderFromDTO_MapsDoneAndCancelStates(t *testing.T) {
	done := orderFromDTO(orderDTO{UUID: "1", State: "done", Side: "ask"})
	assert.Equal(t, domain.StatusFilled, done.Status)
	assert.Equal(t, domain.Sell, done.Side)

	cancelled := orderFromDTO(orderDTO{UUID: "2", State: "cancel", Side: "bid"})
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, domain.Buy, cancelled.Side)
}
