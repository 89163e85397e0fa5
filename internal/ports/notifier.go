package ports

import (
	"context"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// Notifier renders the engine's shutdown performance report. The console
// implementation prints a tablewriter table; other implementations could
// fan this out elsewhere without the engine knowing the difference.
type Notifier interface {
	ReportPerformance(ctx context.Context, metrics domain.RiskMetrics, recent []domain.TradeHistory) error
}
