package korbitapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

// marketDTO/tickerDTO/etc mirror the exchange's wire shapes; conversion to
// domain types happens at the boundary so the rest of the engine never
// sees raw JSON tags.

type marketDTO struct {
	Market string `json:"market"`
}

type tickerDTO struct {
	Market      string  `json:"market"`
	TradePrice  float64 `json:"trade_price"`
}

type orderbookUnitDTO struct {
	AskPrice float64 `json:"ask_price"`
	BidPrice float64 `json:"bid_price"`
	AskSize  float64 `json:"ask_size"`
	BidSize  float64 `json:"bid_size"`
}

type orderbookDTO struct {
	Market         string             `json:"market"`
	OrderbookUnits []orderbookUnitDTO `json:"orderbook_units"`
}

type candleDTO struct {
	OpeningPrice    float64 `json:"opening_price"`
	HighPrice       float64 `json:"high_price"`
	LowPrice        float64 `json:"low_price"`
	TradePrice      float64 `json:"trade_price"`
	CandleAccVolume float64 `json:"candle_acc_trade_volume"`
	TimestampMs     int64   `json:"timestamp"`
}

type accountDTO struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
	AvgPrice string `json:"avg_buy_price"`
}

type chanceDTO struct {
	Market struct {
		ID       string   `json:"id"`
		State    string   `json:"state"`
		AskTypes []string `json:"ask_types"`
		BidTypes []string `json:"bid_types"`
		Bid      struct {
			MinTotal string `json:"min_total"`
			FeeRate  string `json:"fee"`
		} `json:"bid"`
		Ask struct {
			MinTotal string `json:"min_total"`
			FeeRate  string `json:"fee"`
		} `json:"ask"`
	} `json:"market"`
}

type orderDTO struct {
	UUID            string `json:"uuid"`
	Market          string `json:"market"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Volume          string `json:"volume"`
	ExecutedVolume  string `json:"executed_volume"`
	RemainingVolume string `json:"remaining_volume"`
	State           string `json:"state"`
}

// Markets lists every tradable market symbol.
func (c *Client) Markets(ctx context.Context) ([]string, error) {
	var dtos []marketDTO
	if err := c.do(ctx, domain.GroupMarket, http.MethodGet, "/market/all", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]string, len(dtos))
	for i, d := range dtos {
		out[i] = d.Market
	}
	return out, nil
}

// Ticker fetches current trade price for each requested market.
func (c *Client) Ticker(ctx context.Context, markets []string) (map[string]float64, error) {
	q := url.Values{"markets": {strings.Join(markets, ",")}}
	var dtos []tickerDTO
	if err := c.do(ctx, domain.GroupMarket, http.MethodGet, "/ticker", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(dtos))
	for _, d := range dtos {
		out[d.Market] = d.TradePrice
	}
	return out, nil
}

// Orderbook fetches the current book snapshot for each requested market.
func (c *Client) Orderbook(ctx context.Context, markets []string) (map[string]domain.OrderBook, error) {
	q := url.Values{"markets": {strings.Join(markets, ",")}}
	var dtos []orderbookDTO
	if err := c.do(ctx, domain.GroupMarket, http.MethodGet, "/orderbook", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make(map[string]domain.OrderBook, len(dtos))
	for _, d := range dtos {
		ob := domain.OrderBook{Market: d.Market}
		for _, u := range d.OrderbookUnits {
			ob.Bids = append(ob.Bids, domain.BookEntry{Price: u.BidPrice, Size: u.BidSize})
			ob.Asks = append(ob.Asks, domain.BookEntry{Price: u.AskPrice, Size: u.AskSize})
		}
		out[d.Market] = ob
	}
	return out, nil
}

// MinuteCandles fetches count candles of the given minute unit, oldest first.
func (c *Client) MinuteCandles(ctx context.Context, market string, unit int, count int) ([]domain.Candle, error) {
	q := url.Values{"market": {market}, "count": {strconv.Itoa(count)}}
	var dtos []candleDTO
	path := fmt.Sprintf("/candles/minutes/%d", unit)
	if err := c.do(ctx, domain.GroupMarket, http.MethodGet, path, q, nil, &dtos); err != nil {
		return nil, err
	}
	return candlesFromDTO(dtos), nil
}

// DayCandles fetches count daily candles, oldest first.
func (c *Client) DayCandles(ctx context.Context, market string, count int) ([]domain.Candle, error) {
	q := url.Values{"market": {market}, "count": {strconv.Itoa(count)}}
	var dtos []candleDTO
	if err := c.do(ctx, domain.GroupMarket, http.MethodGet, "/candles/days", q, nil, &dtos); err != nil {
		return nil, err
	}
	return candlesFromDTO(dtos), nil
}

// candlesFromDTO reverses the exchange's newest-first ordering into the
// time-ascending order the rest of the engine expects.
func candlesFromDTO(dtos []candleDTO) []domain.Candle {
	out := make([]domain.Candle, len(dtos))
	for i, d := range dtos {
		out[len(dtos)-1-i] = domain.Candle{
			Open:      d.OpeningPrice,
			High:      d.HighPrice,
			Low:       d.LowPrice,
			Close:     d.TradePrice,
			Volume:    d.CandleAccVolume,
			Timestamp: d.TimestampMs,
		}
	}
	return out
}

// Accounts lists every currency balance on the account.
func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	var dtos []accountDTO
	if err := c.do(ctx, domain.GroupQuery, http.MethodGet, "/accounts", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Account, len(dtos))
	for i, d := range dtos {
		out[i] = domain.Account{
			Currency: d.Currency,
			Balance:  parseFloat(d.Balance),
			Locked:   parseFloat(d.Locked),
			AvgPrice: parseFloat(d.AvgPrice),
		}
	}
	return out, nil
}

// Chance fetches the pre-trade constraints payload for market.
func (c *Client) Chance(ctx context.Context, market string) (domain.InstrumentRule, error) {
	q := url.Values{"market": {market}}
	var dto chanceDTO
	if err := c.do(ctx, domain.GroupQuery, http.MethodGet, "/orders/chance", q, nil, &dto); err != nil {
		return domain.InstrumentRule{}, err
	}
	return domain.InstrumentRule{
		Market:     dto.Market.ID,
		State:      dto.Market.State,
		MinTotal:   max(parseFloat(dto.Market.Bid.MinTotal), parseFloat(dto.Market.Ask.MinTotal)),
		BidFeeRate: parseFloat(dto.Market.Bid.FeeRate),
		AskFeeRate: parseFloat(dto.Market.Ask.FeeRate),
		AskTypes:   dto.Market.AskTypes,
		BidTypes:   dto.Market.BidTypes,
		FetchedAt:  time.Now(),
	}, nil
}

// TickSize fetches the tick-size ladder for each requested market. The
// exchange does not publish a dedicated endpoint for this in every
// deployment, so callers should treat a not-found response the same as a
// network failure and fall back to the built-in ladder.
func (c *Client) TickSize(ctx context.Context, markets []string) (map[string][]domain.TickSizeRule, error) {
	q := url.Values{"markets": {strings.Join(markets, ",")}}
	var dtos []struct {
		Market string                `json:"market"`
		Ticks  []domain.TickSizeRule `json:"tick_sizes"`
	}
	if err := c.do(ctx, domain.GroupQuery, http.MethodGet, "/orderbook/instruments", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make(map[string][]domain.TickSizeRule, len(dtos))
	for _, d := range dtos {
		out[d.Market] = d.Ticks
	}
	return out, nil
}

// Order fetches the current state of a single order by exchange ID.
func (c *Client) Order(ctx context.Context, orderID string) (domain.Order, error) {
	q := url.Values{"uuid": {orderID}}
	var dto orderDTO
	if err := c.do(ctx, domain.GroupQuery, http.MethodGet, "/order", q, nil, &dto); err != nil {
		return domain.Order{}, err
	}
	return orderFromDTO(dto), nil
}

// PlaceOrder submits a new order and returns its initial exchange state.
func (c *Client) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	body := map[string]any{
		"market":   req.Market,
		"side":     sideWire(req.Side),
		"ord_type": string(req.Type),
	}
	switch req.Type {
	case ports.OrderTypeLimit:
		body["price"] = fmt.Sprintf("%.8f", req.Price)
		body["volume"] = fmt.Sprintf("%.8f", req.Volume)
	case ports.OrderTypePrice:
		body["price"] = fmt.Sprintf("%.8f", req.Price)
	case ports.OrderTypeMarket:
		body["volume"] = fmt.Sprintf("%.8f", req.Volume)
	}

	var dto orderDTO
	if err := c.do(ctx, domain.GroupOrder, http.MethodPost, "/orders", nil, body, &dto); err != nil {
		return domain.Order{}, err
	}
	return orderFromDTO(dto), nil
}

// CancelOrder requests cancellation of a live order by exchange ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	q := url.Values{"uuid": {orderID}}
	return c.do(ctx, domain.GroupOrder, http.MethodDelete, "/order", q, nil, nil)
}

func sideWire(side domain.OrderSide) string {
	if side == domain.Buy {
		return "bid"
	}
	return "ask"
}

func orderFromDTO(d orderDTO) domain.Order {
	side := domain.Buy
	if d.Side == "ask" {
		side = domain.Sell
	}
	return domain.Order{
		ID:           d.UUID,
		Market:       d.Market,
		Side:         side,
		Price:        parseFloat(d.Price),
		Volume:       parseFloat(d.Volume),
		FilledVolume: parseFloat(d.ExecutedVolume),
		Status:       statusFromWire(d.State),
	}
}

func statusFromWire(state string) domain.OrderStatus {
	switch strings.ToLower(state) {
	case "done":
		return domain.StatusFilled
	case "cancel":
		return domain.StatusCancelled
	case "wait", "watch":
		return domain.StatusSubmitted
	default:
		return domain.StatusSubmitted
	}
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
