package domain

import "time"

// TickSizeRule is one price-bracket row of an exchange instrument's tick
// table: prices in [MinPrice, MaxPrice) must be a multiple of TickSize.
type TickSizeRule struct {
	MinPrice float64
	MaxPrice float64 // 0 means unbounded
	TickSize float64
}

// InstrumentRule is the per-market trading constraints the compliance
// adapter caches from the exchange's chance/market endpoints: tick table,
// minimum notional, and whether the market currently accepts orders at all.
type InstrumentRule struct {
	Market     string
	TickSizes  []TickSizeRule
	MinTotal   float64 // minimum order value (price * volume)
	AskFeeRate float64
	BidFeeRate float64
	State      string // e.g. "active", "delisted"
	// AskTypes and BidTypes are the order types the exchange currently
	// accepts on the sell/buy side of this market (e.g. "limit", "price",
	// "market"). Empty means the exchange didn't report a restriction.
	AskTypes  []string
	BidTypes  []string
	FetchedAt time.Time
}

// ComplianceSnapshot is a value snapshot of no-trade degrade state: while
// DegradeUntil is in the future, new entries are refused. The compliance
// adapter keeps its own degrade fields and does not use this type.
type ComplianceSnapshot struct {
	ConsecutiveFailures int
	DegradeUntil        time.Time
	LastRefreshedAt      time.Time
}

// Degraded reports whether new entries should be refused outright.
func (c ComplianceSnapshot) Degraded(now time.Time) bool {
	return now.Before(c.DegradeUntil)
}
