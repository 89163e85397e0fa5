package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

const (
	chaseInterval      = 5 * time.Second
	maxChaseAttempts   = 5
	restSyncInterval   = 15 * time.Second
	wsStaleThreshold   = 45 * time.Second
)

// ErrNoActiveOrder is returned by Cancel when no order with that id is
// currently tracked.
var ErrNoActiveOrder = errors.New("execution: no active order")

// ErrOrderTerminal is returned by Cancel when the order has already
// reached a terminal status.
var ErrOrderTerminal = errors.New("execution: order already terminal")

// Manager owns every live order from submission through terminal
// reconciliation. It exclusively holds the active-orders map and the
// private-order stream client, matching the ownership rule that no other
// component ever reaches into either directly.
type Manager struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	client ports.ExchangeClient
	stream ports.PrivateOrderStream
	writer *UpdateWriter

	wsConnected     bool
	wsLastMessageMs int64
}

// NewManager wires an ExchangeClient for REST calls and an UpdateWriter for
// the execution-update JSONL artifact. stream may be nil to run REST-only
// (e.g. in tests or PAPER/BACKTEST modes).
func NewManager(client ports.ExchangeClient, stream ports.PrivateOrderStream, writer *UpdateWriter) *Manager {
	return &Manager{
		orders: make(map[string]*domain.Order),
		client: client,
		stream: stream,
		writer: writer,
	}
}

// Run starts the private-order stream dispatch loop; it blocks until ctx
// is cancelled. Callers with stream == nil should not call Run.
func (m *Manager) Run(ctx context.Context) error {
	if m.stream == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.stream.Connect(ctx, m.onMyOrderEvent)
}

func (m *Manager) onMyOrderEvent(ev ports.MyOrderEvent) {
	m.mu.Lock()
	m.wsConnected = true
	m.wsLastMessageMs = time.Now().UnixMilli()
	m.mu.Unlock()

	m.applyExchangeOrderState(ev.OrderID, ev.State, ev.ExecutedVolume, ev.RemainingVol, "live_ws")
}

// Submit builds an Order, issues a signed LIMIT order, and on success
// stores it under status SUBMITTED with chasing enabled.
func (m *Manager) Submit(ctx context.Context, market string, side domain.OrderSide, price, volume float64, strategyName string, exit domain.ExitParams) (domain.Order, error) {
	req := ports.PlaceOrderRequest{Market: market, Side: side, Type: ports.OrderTypeLimit, Price: price, Volume: volume}
	placed, err := m.client.PlaceOrder(ctx, req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution.Submit: %w", err)
	}

	now := time.Now()
	order := &domain.Order{
		ID:              placed.ID,
		Market:          market,
		Side:            side,
		Price:           price,
		Volume:          volume,
		CreatedAt:       now,
		Status:          domain.StatusSubmitted,
		StrategyName:    strategyName,
		Exit:            exit,
		Chase:           domain.ChaseState{IsChasing: true},
		LastStateSyncMs: now.UnixMilli(),
	}

	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()

	m.writer.Write(ExecutionUpdate{
		TsMs: now.UnixMilli(), Source: "live_submit", Event: "submitted",
		OrderID: order.ID, Market: market, Side: string(side),
		Status: string(domain.StatusSubmitted), FilledVolume: 0, OrderVolume: volume,
		StrategyName: strategyName, Terminal: false,
	})

	return *order, nil
}

// Cancel cancels an order by id. It is safe to call from within Monitor.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return ErrNoActiveOrder
	}
	if order.Status.IsTerminal() {
		m.mu.Unlock()
		return ErrOrderTerminal
	}
	m.mu.Unlock()

	if err := m.client.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("execution.Cancel: %w", err)
	}

	m.mu.Lock()
	order.Status = domain.StatusCancelled
	m.mu.Unlock()

	m.writer.Write(ExecutionUpdate{
		TsMs: time.Now().UnixMilli(), Source: "live_cancel", Event: "cancelled",
		OrderID: orderID, Market: order.Market, Side: string(order.Side),
		Status: string(domain.StatusCancelled), FilledVolume: order.FilledVolume, OrderVolume: order.Volume,
		StrategyName: order.StrategyName, Terminal: true,
	})
	return nil
}

// HasActiveOrder reports whether a non-terminal order exists for market.
func (m *Manager) HasActiveOrder(market string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Market == market && !o.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// DrainFilledOrders returns and removes every order whose fill volume has
// crossed the fill threshold or whose status is terminal with a positive
// fill. A terminal order with zero fill is silently dropped. This is the
// only way fills become visible to the Risk Manager.
func (m *Manager) DrainFilledOrders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var drained []domain.Order
	for id, o := range m.orders {
		fullyFilled := o.FilledVolume >= o.Volume-1e-8
		terminalWithFill := o.Status.IsTerminal() && o.FilledVolume > 0
		if fullyFilled || terminalWithFill {
			drained = append(drained, *o)
			delete(m.orders, id)
			continue
		}
		if o.Status.IsTerminal() {
			delete(m.orders, id) // zero-fill terminal order, silently dropped
		}
	}
	return drained
}

// Monitor runs one pass of REST reconciliation plus limit-chase logic
// over every non-terminal order. The engine's fast path calls it on every
// tick; checkLimitChase re-quotes a given order at most once per
// chaseInterval.
func (m *Manager) Monitor(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.Status.IsTerminal() {
			snapshot = append(snapshot, o)
		}
	}
	m.mu.Unlock()

	for _, o := range snapshot {
		if m.shouldUseRestSync(o) {
			m.syncOrderFromExchange(ctx, o.ID)
		}

		m.mu.Lock()
		refreshed, ok := m.orders[o.ID]
		terminal := !ok || refreshed.Status.IsTerminal()
		chasing := ok && refreshed.Chase.IsChasing
		m.mu.Unlock()

		if terminal || !chasing {
			continue
		}
		m.checkLimitChase(ctx, o.ID)
	}
}

// shouldUseRestSync implements the WS-is-fast-path / REST-is-authoritative
// rule: suppress REST sync only while the WS is connected and fresh, and
// only until the per-order REST_SYNC_INTERVAL_MS has elapsed.
func (m *Manager) shouldUseRestSync(o *domain.Order) bool {
	m.mu.Lock()
	wsConnected := m.wsConnected
	wsLast := m.wsLastMessageMs
	m.mu.Unlock()

	now := time.Now().UnixMilli()
	wsFresh := wsConnected && now-wsLast <= wsStaleThreshold.Milliseconds()
	if wsFresh && now-o.LastStateSyncMs < restSyncInterval.Milliseconds() {
		return false
	}
	return true
}

func (m *Manager) syncOrderFromExchange(ctx context.Context, orderID string) {
	ex, err := m.client.Order(ctx, orderID)
	if err != nil {
		slog.Warn("execution: order sync failed", "order_id", orderID, "err", err)
		return
	}
	m.applyExchangeOrderState(orderID, string(ex.Status), ex.FilledVolume, ex.Remaining(), "live_rest")
}

// applyExchangeOrderState is the single routine both REST responses and WS
// messages are dispatched through, so the two sources can never diverge
// on which transition rule applies.
func (m *Manager) applyExchangeOrderState(orderID, event string, executed, remaining float64, source string) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return
	}

	prevStatus := o.Status
	result := transition(event, o.FilledVolume, o.Volume, executed, remaining)
	o.Status = result.Status
	o.FilledVolume = result.Filled
	o.LastStateSyncMs = time.Now().UnixMilli()
	changed := prevStatus != o.Status
	snapshot := *o
	m.mu.Unlock()

	if !changed {
		return
	}
	m.writer.Write(ExecutionUpdate{
		TsMs: snapshot.LastStateSyncMs, Source: source, Event: event,
		OrderID: snapshot.ID, Market: snapshot.Market, Side: string(snapshot.Side),
		Status: string(snapshot.Status), FilledVolume: snapshot.FilledVolume, OrderVolume: snapshot.Volume,
		StrategyName: snapshot.StrategyName, Terminal: snapshot.Status.IsTerminal(),
	})
}

// checkLimitChase re-quotes an order at the current best same-side price,
// or falls back to a market order once retry_count hits maxChaseAttempts.
func (m *Manager) checkLimitChase(ctx context.Context, orderID string) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok || o.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	snapshot := *o
	m.mu.Unlock()

	// Paced off the order's placement time: every chase replaces the order,
	// so CreatedAt is the time of the last re-quote.
	if time.Since(snapshot.CreatedAt) < chaseInterval {
		return
	}

	book, err := m.client.Orderbook(ctx, []string{snapshot.Market})
	if err != nil {
		slog.Warn("execution: chase orderbook fetch failed", "market", snapshot.Market, "err", err)
		return
	}
	ob := book[snapshot.Market]

	var bestSamePrice float64
	if snapshot.Side == domain.Buy {
		bestSamePrice = ob.BestBid()
	} else {
		bestSamePrice = ob.BestAsk()
	}
	if bestSamePrice == 0 || math.Abs(bestSamePrice-snapshot.Price) < 1e-8 {
		return
	}

	if snapshot.Chase.RetryCount >= maxChaseAttempts {
		m.submitMarketFallback(ctx, snapshot)
		return
	}

	m.replaceOrder(ctx, snapshot, bestSamePrice)
}

func (m *Manager) replaceOrder(ctx context.Context, o domain.Order, newPrice float64) {
	if err := m.Cancel(ctx, o.ID); err != nil && !errors.Is(err, ErrOrderTerminal) {
		slog.Warn("execution: chase cancel failed", "order_id", o.ID, "err", err)
		return
	}

	remaining := o.Remaining()
	replaced, err := m.Submit(ctx, o.Market, o.Side, newPrice, remaining, o.StrategyName, o.Exit)
	if err != nil {
		slog.Warn("execution: chase resubmit failed", "market", o.Market, "err", err)
		return
	}

	m.mu.Lock()
	r := m.orders[replaced.ID]
	r.Chase = domain.ChaseState{IsChasing: true, LastChasePrice: newPrice, RetryCount: o.Chase.RetryCount + 1}
	m.mu.Unlock()
}

// submitMarketFallback cancels the chasing order and submits a market
// order for the remaining volume: notional-denominated for BUY, volume-
// denominated for SELL. The fallback inherits strategy/stop fields but has
// no chase state.
func (m *Manager) submitMarketFallback(ctx context.Context, o domain.Order) {
	if err := m.Cancel(ctx, o.ID); err != nil && !errors.Is(err, ErrOrderTerminal) {
		slog.Warn("execution: fallback cancel failed", "order_id", o.ID, "err", err)
		return
	}

	remaining := o.Remaining()
	req := ports.PlaceOrderRequest{Market: o.Market, Side: o.Side, Type: ports.OrderTypeMarket, Volume: remaining}
	if o.Side == domain.Buy {
		req.Type = ports.OrderTypePrice
		req.Price = o.Price * remaining
	}

	placed, err := m.client.PlaceOrder(ctx, req)
	if err != nil {
		slog.Error("execution: market fallback failed", "market", o.Market, "err", err)
		return
	}

	now := time.Now()
	fallback := &domain.Order{
		ID: placed.ID, Market: o.Market, Side: o.Side, Price: o.Price, Volume: remaining,
		CreatedAt: now, Status: domain.StatusSubmitted, StrategyName: o.StrategyName, Exit: o.Exit,
		LastStateSyncMs: now.UnixMilli(),
	}
	m.mu.Lock()
	m.orders[fallback.ID] = fallback
	m.mu.Unlock()

	m.writer.Write(ExecutionUpdate{
		TsMs: now.UnixMilli(), Source: "live_fallback", Event: "submitted",
		OrderID: fallback.ID, Market: o.Market, Side: string(o.Side),
		Status: string(domain.StatusSubmitted), FilledVolume: 0, OrderVolume: remaining,
		StrategyName: o.StrategyName, Terminal: false,
	})
}
