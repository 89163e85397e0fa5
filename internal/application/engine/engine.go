// Package engine implements the Trading Engine control loop: a
// dual-cadence scheduler interleaving sub-second position monitoring
// with periodic market scanning and signal dispatch. Grounded on the
// teacher's one-shot scan-cycle ordering (protect → scan → sync →
// maintain → place → report), generalized here into a persistent
// goroutine driven by one fast-path ticker that also checks whether the
// slow-path scan interval has elapsed, instead of a single RunOnce call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/compliance"
	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/execution"
	"github.com/iljae-kwon/korbit-engine/internal/metrics"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
	"github.com/iljae-kwon/korbit-engine/internal/risk"
	"github.com/iljae-kwon/korbit-engine/internal/strategy"
)

const (
	monitorInterval  = 500 * time.Millisecond
	accountSyncEvery = 300 * time.Second
	dustThresholdKRW = 5000.0
	recoveredFloorKRW = 5100.0
)

// Mode is the engine's run mode.
type Mode string

const (
	ModeLive     Mode = "LIVE"
	ModePaper    Mode = "PAPER"
	ModeBacktest Mode = "BACKTEST"
)

// Settings is everything the engine needs from configuration.
type Settings struct {
	Mode                Mode
	ScanInterval        time.Duration
	MinVolumeKRW        float64
	MaxOrderKRW         float64
	MinOrderKRW         float64
	OrderFeeReservePct  float64
	MaxNewOrdersPerScan int
	DryRun              bool
}

// Engine drives the Risk Manager, Order Manager, Strategy Manager, and
// Scanner it is built with. The caller that builds them keeps its own
// references: cmd/engine restores and persists positions through the Risk
// Manager directly, and the Compliance Adapter holds the Risk Manager for
// its admission re-check.
type Engine struct {
	settings Settings

	exchange ports.ExchangeClient
	scanner  ports.MarketScanner
	strat    *strategy.Manager
	riskMgr  *risk.Manager
	orders   *execution.Manager
	gate     *compliance.Adapter
	notifier ports.Notifier

	running   atomic.Bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	mu           sync.Mutex
	lastScan     time.Time
	lastAcctSync time.Time
}

// New wires an Engine from its collaborators. notifier may be nil.
func New(
	settings Settings,
	exchange ports.ExchangeClient,
	scanner ports.MarketScanner,
	strat *strategy.Manager,
	riskMgr *risk.Manager,
	orders *execution.Manager,
	gate *compliance.Adapter,
	notifier ports.Notifier,
) *Engine {
	return &Engine{
		settings: settings,
		exchange: exchange,
		scanner:  scanner,
		strat:    strat,
		riskMgr:  riskMgr,
		orders:   orders,
		gate:     gate,
		notifier: notifier,
	}
}

// Start spawns the worker goroutine. Idempotent: calling Start while
// already running is a no-op. In LIVE mode it synchronizes account state
// once before the first tick.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.settings.Mode == ModeLive {
		if err := e.syncAccountState(runCtx); err != nil {
			slog.Error("engine: initial account sync failed", "err", err)
		}
	}

	e.wg.Add(1)
	go e.loop(runCtx)
}

// Stop signals shutdown, joins the worker, and writes the final
// performance report.
func (e *Engine) Stop(ctx context.Context) {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if e.notifier != nil {
		metricsSnap := e.riskMgr.Metrics()
		if err := e.notifier.ReportPerformance(ctx, metricsSnap, nil); err != nil {
			slog.Error("engine: performance report failed", "err", err)
		}
	}
}

// loop runs the fast-path ticker for the lifetime of ctx. Each fast tick
// also checks whether the slow-path scan and the account-sync intervals
// have elapsed. Any error inside a tick is logged and the loop sleeps 1s
// rather than exiting — shutdown is cooperative via ctx/running only.
func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.running.Load() {
				return
			}
			if err := e.tick(ctx); err != nil {
				slog.Error("engine: tick failed", "err", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// tick runs one fast-path pass, and the slow-path pass if its interval
// has elapsed.
func (e *Engine) tick(ctx context.Context) error {
	if err := e.monitorPositions(ctx); err != nil {
		return fmt.Errorf("engine.tick: monitor: %w", err)
	}

	e.orders.Monitor(ctx)
	e.reconcileFilledOrders()

	if e.settings.Mode == ModeLive {
		e.mu.Lock()
		needSync := time.Since(e.lastAcctSync) >= accountSyncEvery
		e.mu.Unlock()
		if needSync {
			if err := e.syncAccountState(ctx); err != nil {
				slog.Warn("engine: periodic account sync failed", "err", err)
			}
		}
	}

	e.mu.Lock()
	needScan := time.Since(e.lastScan) >= e.settings.ScanInterval
	e.mu.Unlock()
	if needScan {
		if err := e.ManualScan(ctx); err != nil {
			return fmt.Errorf("engine.tick: scan: %w", err)
		}
		e.mu.Lock()
		e.lastScan = time.Now()
		e.mu.Unlock()
	}

	return nil
}

// monitorPositions batch-fetches current prices for every open market in
// one call, updates each Position, and applies partial/full exits. A
// market missing from the price batch is skipped, never sold blind.
func (e *Engine) monitorPositions(ctx context.Context) error {
	open := e.riskMgr.OpenPositions()
	if len(open) == 0 {
		return nil
	}

	markets := make([]string, len(open))
	for i, p := range open {
		markets[i] = p.Market
	}

	prices, err := e.exchange.Ticker(ctx, markets)
	if err != nil {
		return fmt.Errorf("monitorPositions: ticker: %w", err)
	}

	for _, pos := range open {
		price, ok := prices[pos.Market]
		if !ok {
			continue
		}
		e.riskMgr.UpdatePrice(pos.Market, price)

		if e.riskMgr.ShouldPartialExit(pos.Market, price) {
			sellQty := pos.Quantity / 2
			if trade, ok := e.riskMgr.PartialExit(pos.Market, price); ok {
				e.closePositionOrder(ctx, pos.Market, price, sellQty, "partial_take_profit")
				metrics.RecordOrderFilled(pos.Market)
				slog.Info("engine: partial exit", "market", pos.Market, "pnl", trade.ProfitLoss)
			}
			continue
		}

		if e.riskMgr.ShouldExit(pos.Market, price) {
			e.fullExit(ctx, pos.Market, price, pos.Quantity, "risk_exit")
			continue
		}
	}

	metrics.OpenPositions.Set(float64(len(e.riskMgr.OpenPositions())))
	metrics.CurrentDrawdown.Set(e.riskMgr.Metrics().CurrentDrawdown)
	return nil
}

// reconcileFilledOrders drains every order the Order Manager has confirmed
// filled — via WS event, REST reconciliation, limit-chase replacement, or
// market fallback — and registers each BUY fill as a Position through the
// Risk Manager. This is the only path a chased or fallback-filled entry
// order ever becomes a Position. SELL fills are exit orders whose ledger
// effect was already applied when the exit decision fired (monitorPositions
// / ManualClosePosition); draining them here only clears the Order
// Manager's tracking and records the fill metric.
func (e *Engine) reconcileFilledOrders() {
	for _, o := range e.orders.DrainFilledOrders() {
		metrics.RecordOrderFilled(o.Market)
		if o.Side != domain.Buy {
			continue
		}

		e.riskMgr.Enter(domain.Position{
			Market:         o.Market,
			EntryPrice:     o.Price,
			CurrentPrice:   o.Price,
			Quantity:       o.FilledVolume,
			InvestedAmount: o.FilledVolume * o.Price,
			EntryTime:      time.Now(),
			StopLoss:       o.Exit.StopLoss,
			TakeProfit1:    o.Exit.TakeProfit1,
			TakeProfit2:    o.Exit.TakeProfit2,
			HighestPrice:   o.Price,
			StrategyName:   o.StrategyName,
		})
		slog.Info("engine: buy order filled, position opened", "market", o.Market, "quantity", o.FilledVolume, "price", o.Price)
	}
}

func (e *Engine) fullExit(ctx context.Context, market string, price, quantity float64, reason string) {
	trade, ok := e.riskMgr.FullExit(market, price, reason)
	if !ok {
		return
	}
	e.closePositionOrder(ctx, market, price, quantity, reason)
	metrics.RecordOrderFilled(market)
	slog.Info("engine: full exit", "market", market, "reason", reason, "pnl", trade.ProfitLoss)
}

// closePositionOrder submits the SELL order implementing a Position exit.
// In DryRun mode no order is actually sent to the exchange.
func (e *Engine) closePositionOrder(ctx context.Context, market string, price, quantity float64, reason string) {
	if e.settings.DryRun {
		return
	}
	if _, err := e.orders.Submit(ctx, market, domain.Sell, price, quantity, "exit:"+reason, domain.ExitParams{}); err != nil {
		slog.Error("engine: exit order submit failed", "market", market, "err", err)
	}
}

// ManualScan runs one scan → signal generation → signal execution pass.
// Exposed for manual/test invocation outside the scheduled cadence,
// sharing the same validation path as the loop.
func (e *Engine) ManualScan(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	allMetrics, err := e.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("ManualScan: scan: %w", err)
	}

	filtered := make([]domain.CoinMetrics, 0, len(allMetrics))
	for _, m := range allMetrics {
		if m.Volume24h >= e.settings.MinVolumeKRW {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CompositeScore > filtered[j].CompositeScore
	})
	if len(filtered) > 20 {
		filtered = filtered[:20]
	}

	signals := make([]domain.Signal, 0, len(filtered))
	for _, m := range filtered {
		if sig, ok := e.strat.Best(m); ok {
			signals = append(signals, sig)
		}
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].Strength > signals[j].Strength })

	e.executeSignals(ctx, signals, filtered)
	return nil
}

// executeSignals implements the signal execution policy: best-ask entry
// pricing, invest-amount sizing with min/max clamping and small-seed
// correction, the Compliance gate, and LIMIT_WITH_FALLBACK submission.
func (e *Engine) executeSignals(ctx context.Context, signals []domain.Signal, metricsByMarket []domain.CoinMetrics) {
	books := make(map[string]domain.OrderBook, len(metricsByMarket))
	for _, m := range metricsByMarket {
		books[m.Market] = m.Orderbook
	}

	submitted := 0
	for _, sig := range signals {
		if submitted >= e.settings.MaxNewOrdersPerScan {
			break
		}
		if sig.Type != domain.SignalBuy && sig.Type != domain.SignalStrongBuy {
			continue
		}

		book := books[sig.Market]
		entryPrice := book.BestAsk()
		if entryPrice <= 0 {
			slog.Warn("engine: skipping signal, empty book", "market", sig.Market)
			continue
		}

		if !e.riskMgr.CanEnterPosition(sig.Market, sig.PositionSize) {
			continue
		}

		metricsSnap := e.riskMgr.Metrics()
		sizeRatio := sig.PositionSize
		investAmount := metricsSnap.AvailableCash * sizeRatio
		investAmount, ok := e.applyOrderSizeBounds(investAmount, metricsSnap.AvailableCash, sizeRatio)
		if !ok {
			slog.Info("engine: signal rejected, order size out of bounds", "market", sig.Market)
			continue
		}

		volume := investAmount / entryPrice
		if err := e.gate.Validate(ctx, sig.Market, domain.Buy, entryPrice, volume); err != nil {
			slog.Info("engine: signal rejected by compliance", "market", sig.Market, "err", err)
			continue
		}

		if !e.strat.Accept(sig, investAmount) {
			slog.Info("engine: signal vetoed by owning strategy", "market", sig.Market, "strategy", sig.StrategyName)
			continue
		}

		if e.settings.DryRun {
			submitted++
			continue
		}

		e.riskMgr.ReservePendingCapital(investAmount)
		_, err := e.orders.Submit(ctx, sig.Market, domain.Buy, entryPrice, volume, sig.StrategyName, domain.ExitParams{
			StopLoss:    sig.StopLoss,
			TakeProfit1: sig.TakeProfit1,
			TakeProfit2: sig.TakeProfit2,
		})
		e.riskMgr.ReleasePendingCapital(investAmount)
		if err != nil {
			slog.Error("engine: order submit failed", "market", sig.Market, "err", err)
			continue
		}
		metrics.RecordOrderSubmitted(sig.Market, "buy")

		// The order now lives under the Order Manager's tracking; whether
		// it fills immediately, after a limit-chase replacement, or via
		// market fallback, reconcileFilledOrders picks up the fill on the
		// next tick and opens the Position then.
		submitted++
	}
}

// applyOrderSizeBounds enforces min_order_krw ≤ invest_amount ≤
// max_order_krw. If below minimum, it bumps sizeRatio to the smallest
// ratio clearing the minimum plus the configured fee reserve; it rejects
// outright if that would exceed the maximum.
func (e *Engine) applyOrderSizeBounds(investAmount, availableCash, sizeRatio float64) (float64, bool) {
	if investAmount > e.settings.MaxOrderKRW {
		return 0, false
	}
	if investAmount >= e.settings.MinOrderKRW {
		return investAmount, true
	}

	needed := e.settings.MinOrderKRW * (1 + e.settings.OrderFeeReservePct)
	if needed > e.settings.MaxOrderKRW || needed > availableCash {
		return 0, false
	}
	return needed, true
}

// ManualClosePosition submits a market-sell instruction for one open
// position, sharing the same exit path the loop uses.
func (e *Engine) ManualClosePosition(ctx context.Context, market string) error {
	pos, ok := e.riskMgr.Position(market)
	if !ok {
		return fmt.Errorf("ManualClosePosition: no open position in %q", market)
	}
	e.fullExit(ctx, market, pos.CurrentPrice, pos.Quantity, "manual_close")
	return nil
}

// ManualCloseAll closes every open position.
func (e *Engine) ManualCloseAll(ctx context.Context) error {
	for _, p := range e.riskMgr.OpenPositions() {
		if err := e.ManualClosePosition(ctx, p.Market); err != nil {
			slog.Error("engine: manual close failed", "market", p.Market, "err", err)
		}
	}
	return nil
}

// syncAccountState fetches exchange balances, rebases the capital ledger
// off the KRW balance, and recovers any untracked non-KRW holding above
// the dust threshold as a conservatively-stopped Position.
func (e *Engine) syncAccountState(ctx context.Context) error {
	accounts, err := e.exchange.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("syncAccountState: accounts: %w", err)
	}

	var krwTotal float64
	for _, a := range accounts {
		if a.Currency == "KRW" {
			krwTotal = a.Total()
			break
		}
	}
	e.riskMgr.ResetCapital(krwTotal)
	metrics.AvailableCapital.Set(e.riskMgr.Metrics().AvailableCash)

	for _, a := range accounts {
		if a.Currency == "KRW" || a.Total() <= 0 {
			continue
		}
		market := "KRW-" + a.Currency
		if _, ok := e.riskMgr.Position(market); ok {
			continue
		}
		notional := a.Total() * a.AvgPrice
		if notional < dustThresholdKRW {
			continue
		}

		stopLoss := a.AvgPrice * 0.97
		floor := recoveredFloorKRW / a.Total()
		if floor > stopLoss {
			stopLoss = floor
		}

		e.riskMgr.Enter(domain.Position{
			Market:         market,
			EntryPrice:     a.AvgPrice,
			CurrentPrice:   a.AvgPrice,
			Quantity:       a.Total(),
			InvestedAmount: notional,
			EntryTime:      time.Now(),
			StopLoss:       stopLoss,
			TakeProfit1:    a.AvgPrice * 1.02,
			TakeProfit2:    a.AvgPrice * 1.04,
			HighestPrice:   a.AvgPrice,
			StrategyName:   "RECOVERED",
		})
		slog.Info("engine: recovered untracked holding", "market", market, "quantity", a.Total())
	}

	e.mu.Lock()
	e.lastAcctSync = time.Now()
	e.mu.Unlock()
	return nil
}
