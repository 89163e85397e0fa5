package ports

import (
	"context"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// OrderType is the ord_type accepted by the place-order endpoint.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market" // volume-denominated, sell only
	OrderTypePrice  OrderType = "price"  // notional-denominated, buy only
)

// PlaceOrderRequest is everything the Order Manager needs to submit one
// order. Price is ignored for OrderTypeMarket; Volume is ignored for
// OrderTypePrice (the exchange infers volume from Price/notional).
type PlaceOrderRequest struct {
	Market string
	Side   domain.OrderSide
	Type   OrderType
	Price  float64
	Volume float64
}

// ExchangeClient is the signed REST surface the rest of the engine talks
// to. Every implementation must acquire from the Rate Limiter by the
// endpoint's limiter group before issuing the HTTP call.
type ExchangeClient interface {
	Markets(ctx context.Context) ([]string, error)
	Ticker(ctx context.Context, markets []string) (map[string]float64, error)
	Orderbook(ctx context.Context, markets []string) (map[string]domain.OrderBook, error)
	MinuteCandles(ctx context.Context, market string, unit int, count int) ([]domain.Candle, error)
	DayCandles(ctx context.Context, market string, count int) ([]domain.Candle, error)

	Accounts(ctx context.Context) ([]domain.Account, error)

	// Chance returns the raw pre-trade constraints payload for market,
	// consumed only by the Compliance Adapter.
	Chance(ctx context.Context, market string) (domain.InstrumentRule, error)
	TickSize(ctx context.Context, markets []string) (map[string][]domain.TickSizeRule, error)

	Order(ctx context.Context, orderID string) (domain.Order, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}
