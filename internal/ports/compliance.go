package ports

import (
	"context"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// ComplianceGate sits between the Risk Manager's admission decision and
// the Order Manager's submission. In non-LIVE modes an implementation may
// pass every candidate through unchecked.
type ComplianceGate interface {
	// Validate checks market state, side/type support, minimum notional,
	// and tick-size alignment for a candidate LIMIT order. It returns a
	// non-nil error describing the rejection reason (including
	// "no_trade_degrade:<reason>" when already degraded) and never
	// mutates Risk Manager state itself.
	Validate(ctx context.Context, market string, side domain.OrderSide, price, volume float64) error
}
