package ports

import (
	"context"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// TradeStore persists closed trades and open positions beyond the process
// lifetime, a supplemented durability layer alongside the policy snapshot
// in LearningStateStore.
type TradeStore interface {
	ApplySchema(ctx context.Context) error

	SaveTrade(ctx context.Context, trade domain.TradeHistory) error
	GetTrades(ctx context.Context, from, to time.Time) ([]domain.TradeHistory, error)

	SavePosition(ctx context.Context, pos domain.Position) error
	DeletePosition(ctx context.Context, market string) error
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)

	Close() error
}

// LearningStateStore persists the strategy-selection policy snapshot
// (schema_version, saved_at_ms, policy_params, bucket_stats,
// rollback_point) atomically between process runs.
type LearningStateStore interface {
	Save(ctx context.Context, snapshot domain.LearningState) error
	// Load returns (zero-value, false, nil) if no snapshot file exists yet.
	Load(ctx context.Context) (domain.LearningState, bool, error)
}
