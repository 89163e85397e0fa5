package ports

import (
	"context"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// RateLimiter gates every outbound HTTP call by endpoint group.
type RateLimiter interface {
	// Acquire blocks until a token for group is available or ctx is
	// cancelled. Waits are bounded to the next window edge or, during a
	// degrade, to block_end_time.
	Acquire(ctx context.Context, group domain.RateLimitGroup) error

	// TryAcquire is the non-blocking variant: it returns false instead of
	// waiting when no token is currently available.
	TryAcquire(group domain.RateLimitGroup) bool

	// Reconcile applies a parsed `Remaining-Req` header value, advancing
	// (never relaxing) the group's current_count.
	Reconcile(group domain.RateLimitGroup, max, remaining int)

	// Throttled reports a 429 (short, 1s) or 418 (long, 60s) response for
	// group, arming the corresponding global block.
	Throttled(group domain.RateLimitGroup, status int)
}
