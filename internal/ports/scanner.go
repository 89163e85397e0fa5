package ports

import (
	"context"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// MarketScanner produces per-market CoinMetrics on each engine scan pass.
// Named MarketScanner rather than Scanner to avoid clashing with the
// engine's own scanMarkets step.
type MarketScanner interface {
	// Scan returns CoinMetrics for every market currently tradeable on the
	// exchange. The engine filters the result by min_volume_krw and
	// truncates to the top 20 by CompositeScore before generating signals.
	Scan(ctx context.Context) ([]domain.CoinMetrics, error)
}
