// Package compliance implements the gate between the Risk Manager's
// admission decision and the Order Manager's submission: exchange
// pre-trade validation, tick-size alignment, and the no-trade degrade
// state machine.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

const (
	chanceTTL        = 30 * time.Second
	chanceStaleGrace = 3 * time.Minute
	tickSizeTTL      = 10 * time.Minute
	degradeBase      = 3 * time.Second
	degradeCap       = 5 * time.Minute
)

// builtinKRWTickLadder is the fallback tick table used when the
// instrument endpoint is unavailable, mirroring the exchange's published
// KRW price-bracket schedule.
var builtinKRWTickLadder = []domain.TickSizeRule{
	{MinPrice: 0, MaxPrice: 1, TickSize: 0.0001},
	{MinPrice: 1, MaxPrice: 10, TickSize: 0.001},
	{MinPrice: 10, MaxPrice: 100, TickSize: 0.01},
	{MinPrice: 100, MaxPrice: 1000, TickSize: 0.1},
	{MinPrice: 1000, MaxPrice: 10000, TickSize: 1},
	{MinPrice: 10000, MaxPrice: 100000, TickSize: 5},
	{MinPrice: 100000, MaxPrice: 500000, TickSize: 10},
	{MinPrice: 500000, MaxPrice: 1000000, TickSize: 50},
	{MinPrice: 1000000, MaxPrice: 2000000, TickSize: 100},
	{MinPrice: 2000000, MaxPrice: 0, TickSize: 1000},
}

type chanceEntry struct {
	rule      domain.InstrumentRule
	fetchedAt time.Time
}

type tickEntry struct {
	rules         []domain.TickSizeRule
	fromExchange  bool
	fetchedAt     time.Time
}

// RiskAdmitter is the slice of the Risk Manager the Compliance Adapter
// needs: the admission gate only.
type RiskAdmitter interface {
	CanEnterPosition(market string, sizeRatio float64) bool
}

// Adapter is the ComplianceGate implementation. In LIVE mode it performs
// the full validation pipeline; in any other mode it is a pass-through.
type Adapter struct {
	client ports.ExchangeClient
	risk   RiskAdmitter
	live   bool

	mu                    sync.Mutex
	chanceCache           map[string]chanceEntry
	tickCache             map[string]tickEntry
	consecutiveViolations int
	noTradeUntil          time.Time
	noTradeReason         string
}

// New builds an Adapter. live controls whether validation actually runs
// (false makes every call a pass-through, matching PAPER/BACKTEST modes).
// risk may be nil, in which case the risk-admission re-check is skipped.
func New(client ports.ExchangeClient, risk RiskAdmitter, live bool) *Adapter {
	return &Adapter{
		client:      client,
		risk:        risk,
		live:        live,
		chanceCache: make(map[string]chanceEntry),
		tickCache:   make(map[string]tickEntry),
	}
}

// Validate runs the entry validation pipeline for a candidate LIMIT order.
func (a *Adapter) Validate(ctx context.Context, market string, side domain.OrderSide, price, volume float64) error {
	if !a.live {
		return nil
	}

	if reason, degraded := a.isNoTradeDegraded(); degraded {
		return fmt.Errorf("no_trade_degrade:%s", reason)
	}

	// The capital-sufficiency part of admission was already checked by the
	// engine against the actual size_ratio; re-check here with a 0 ratio
	// so this only re-validates position-count/cooldown/drawdown/daily
	// limits, never capital math, avoiding a duplicate computation.
	if a.risk != nil && !a.risk.CanEnterPosition(market, 0) {
		return fmt.Errorf("risk_admission_rejected:%s", market)
	}

	rule, err := a.getChanceCachedOrFetch(ctx, market)
	if err != nil {
		a.triggerNoTradeDegrade(fmt.Sprintf("chance_fetch_failed:%v", err), degradeBase)
		return fmt.Errorf("compliance: chance fetch failed: %w", err)
	}

	if err := a.validateChanceConstraints(rule, side, price, volume); err != nil {
		a.triggerNoTradeDegrade(err.Error(), degradeBase)
		return err
	}

	tickSize, err := a.getInstrumentTickSize(ctx, market, price)
	if err != nil {
		a.triggerNoTradeDegrade(fmt.Sprintf("tick_size_fetch_failed:%v", err), degradeBase)
		return fmt.Errorf("compliance: tick size fetch failed: %w", err)
	}
	if !isTickAligned(price, tickSize) {
		reason := fmt.Sprintf("tick_size_misaligned:price=%.8f,tick=%.8f", price, tickSize)
		a.triggerNoTradeDegrade(reason, degradeBase)
		return fmt.Errorf("%s", reason)
	}

	a.mu.Lock()
	if a.consecutiveViolations > 0 {
		a.consecutiveViolations--
	}
	a.mu.Unlock()

	return nil
}

func (a *Adapter) getChanceCachedOrFetch(ctx context.Context, market string) (domain.InstrumentRule, error) {
	a.mu.Lock()
	entry, ok := a.chanceCache[market]
	a.mu.Unlock()

	now := time.Now()
	if ok && now.Sub(entry.fetchedAt) < chanceTTL {
		return entry.rule, nil
	}

	rule, err := a.client.Chance(ctx, market)
	if err != nil {
		if ok && now.Sub(entry.fetchedAt) < chanceStaleGrace {
			slog.Warn("compliance: chance fetch failed, using stale cache", "market", market, "age", now.Sub(entry.fetchedAt))
			return entry.rule, nil
		}
		return domain.InstrumentRule{}, err
	}

	a.mu.Lock()
	a.chanceCache[market] = chanceEntry{rule: rule, fetchedAt: now}
	a.mu.Unlock()
	return rule, nil
}

func (a *Adapter) validateChanceConstraints(rule domain.InstrumentRule, side domain.OrderSide, price, volume float64) error {
	if rule.State != "" && rule.State != "active" {
		return fmt.Errorf("market_not_active:%s", rule.State)
	}
	notional := price * volume
	if rule.MinTotal > 0 && notional < rule.MinTotal {
		return fmt.Errorf("below_min_notional:%.2f<%.2f", notional, rule.MinTotal)
	}

	types := rule.AskTypes
	if side == domain.Buy {
		types = rule.BidTypes
	}
	if len(types) > 0 && !containsOrderType(types, "limit") {
		return fmt.Errorf("order_type_not_supported:side=%s,supported=%v", side, types)
	}
	return nil
}

func containsOrderType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func (a *Adapter) getInstrumentTickSize(ctx context.Context, market string, referencePrice float64) (float64, error) {
	a.mu.Lock()
	entry, ok := a.tickCache[market]
	a.mu.Unlock()

	now := time.Now()
	if ok && now.Sub(entry.fetchedAt) < tickSizeTTL {
		return tickForPrice(entry.rules, referencePrice), nil
	}

	rules, err := a.client.TickSize(ctx, []string{market})
	if err != nil {
		slog.Warn("compliance: tick size fetch failed, using builtin ladder", "market", market, "err", err)
		a.mu.Lock()
		a.tickCache[market] = tickEntry{rules: builtinKRWTickLadder, fromExchange: false, fetchedAt: now}
		a.mu.Unlock()
		return tickForPrice(builtinKRWTickLadder, referencePrice), nil
	}

	marketRules := rules[market]
	if len(marketRules) == 0 {
		marketRules = builtinKRWTickLadder
	}
	a.mu.Lock()
	a.tickCache[market] = tickEntry{rules: marketRules, fromExchange: true, fetchedAt: now}
	a.mu.Unlock()
	return tickForPrice(marketRules, referencePrice), nil
}

func tickForPrice(rules []domain.TickSizeRule, price float64) float64 {
	for _, r := range rules {
		if price >= r.MinPrice && (r.MaxPrice == 0 || price < r.MaxPrice) {
			return r.TickSize
		}
	}
	if len(rules) > 0 {
		return rules[len(rules)-1].TickSize
	}
	return 0
}

func isTickAligned(price, tickSize float64) bool {
	if tickSize <= 0 {
		return true
	}
	ratio := price / tickSize
	return math.Abs(ratio-math.Round(ratio)) < 1e-8
}

// triggerNoTradeDegrade widens the exponential backoff: duration =
// base * 2^min(consecutive-1, 5), capped at degradeCap. no_trade_until is
// the maximum of its current value and now+duration — a weaker
// subsequent trigger never shrinks an existing degrade window.
func (a *Adapter) triggerNoTradeDegrade(reason string, base time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveViolations++
	shift := a.consecutiveViolations - 1
	if shift > 5 {
		shift = 5
	}
	dur := base * time.Duration(math.Pow(2, float64(shift)))
	if dur > degradeCap {
		dur = degradeCap
	}

	until := time.Now().Add(dur)
	if until.After(a.noTradeUntil) {
		a.noTradeUntil = until
		a.noTradeReason = reason
	}

	slog.Warn("compliance: no-trade degrade triggered", "reason", reason, "until", a.noTradeUntil)
}

// isNoTradeDegraded reports whether a degrade window is currently active,
// lazily clearing it once expired.
func (a *Adapter) isNoTradeDegraded() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if time.Now().Before(a.noTradeUntil) {
		return a.noTradeReason, true
	}
	a.noTradeReason = ""
	return "", false
}

// ObserveRateLimit parses a Remaining-Req header value and, when the
// remaining quota for group has dropped to 1 or fewer, triggers a short
// 3-second degrade.
func (a *Adapter) ObserveRateLimit(group domain.RateLimitGroup, secRemaining int) {
	if secRemaining > 1 {
		return
	}
	a.triggerNoTradeDegrade(fmt.Sprintf("remaining_req_low:%s", group), degradeBase)
}
