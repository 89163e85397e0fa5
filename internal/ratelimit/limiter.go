// Package ratelimit implements the per-group token-bucket guard every
// outbound exchange call passes through.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// Default per-second caps by group, matching the exchange's own quotas.
var defaultCaps = map[domain.RateLimitGroup]int{
	domain.GroupMarket:  10,
	domain.GroupQuery:   30,
	domain.GroupOrder:   8,
	domain.GroupDefault: 30,
}

const windowSize = time.Second

// Limiter is the RateLimiter port implementation: one token bucket per
// group plus a single global degrade window shared by every group, mirroring
// the teacher's mutex-guarded bucket shape generalized to a per-group map
// with a shared condition variable for the global block.
type Limiter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[domain.RateLimitGroup]*domain.RateLimitBucket

	blockUntil time.Time
}

// New builds a Limiter with the default per-group caps. Any group not in
// the default map falls back to GroupDefault's cap on first use.
func New() *Limiter {
	l := &Limiter{
		buckets: make(map[domain.RateLimitGroup]*domain.RateLimitBucket),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Limiter) bucket(group domain.RateLimitGroup) *domain.RateLimitBucket {
	b, ok := l.buckets[group]
	if !ok {
		cap, ok := defaultCaps[group]
		if !ok {
			cap = defaultCaps[domain.GroupDefault]
		}
		b = &domain.RateLimitBucket{Group: group, Capacity: cap, ResetAt: time.Now().Add(windowSize)}
		l.buckets[group] = b
	}
	return b
}

// resetIfElapsed zeroes the bucket's remaining count once the 1s window has
// elapsed and broadcasts on cond. Acquire's waiters sleep on timers, not on
// cond, and re-check when their timer fires.
func (l *Limiter) resetIfElapsed(b *domain.RateLimitBucket, now time.Time) {
	if !now.Before(b.ResetAt) {
		b.Remaining = 0
		b.ResetAt = now.Add(windowSize)
		l.cond.Broadcast()
	}
}

// Acquire blocks until a token for group is available or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, group domain.RateLimitGroup) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := time.Now()
		if now.Before(l.blockUntil) {
			if err := l.waitUntilLocked(ctx, l.blockUntil); err != nil {
				return err
			}
			continue
		}

		b := l.bucket(group)
		l.resetIfElapsed(b, now)

		if b.Remaining < b.Capacity {
			b.Remaining++
			return nil
		}

		wake := b.ResetAt.Add(time.Millisecond)
		if err := l.waitUntilLocked(ctx, wake); err != nil {
			return err
		}
	}
}

// waitUntilLocked blocks the caller (with l.mu held) until deadline passes
// or ctx is cancelled, re-acquiring l.mu before returning.
func (l *Limiter) waitUntilLocked(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	l.mu.Unlock()
	defer l.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire is the non-blocking variant.
func (l *Limiter) TryAcquire(group domain.RateLimitGroup) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Before(l.blockUntil) {
		return false
	}

	b := l.bucket(group)
	l.resetIfElapsed(b, now)
	if b.Remaining < b.Capacity {
		b.Remaining++
		return true
	}
	return false
}

// Reconcile advances (never relaxes) the group's current count from a
// parsed Remaining-Req header: if max-remaining exceeds the locally
// tracked count, the exchange has seen more usage than we have (e.g. from
// a prior process or a missed response), so we bring our count up to match.
func (l *Limiter) Reconcile(group domain.RateLimitGroup, max, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	used := max - remaining
	b := l.bucket(group)
	if used > b.Remaining {
		b.Remaining = used
	}
}

// Throttled arms the global block on a 429 (1s) or 418 (60s) response and
// broadcasts on cond. Acquire callers already waiting sleep on timers and
// see the new block when their timer fires.
func (l *Limiter) Throttled(group domain.RateLimitGroup, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var dur time.Duration
	switch status {
	case 429:
		dur = time.Second
	case 418:
		dur = 60 * time.Second
	default:
		return
	}

	until := time.Now().Add(dur)
	if until.After(l.blockUntil) {
		l.blockUntil = until
	}

	b := l.bucket(group)
	b.ConsecutiveThrottles++

	l.cond.Broadcast()
}
