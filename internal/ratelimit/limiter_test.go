package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

func TestTryAcquire_RespectsCapacity(t *testing.T) {
	l := New()
	cap := defaultCaps[domain.GroupOrder]
	for i := 0; i < cap; i++ {
		assert.True(t, l.TryAcquire(domain.GroupOrder))
	}
	assert.False(t, l.TryAcquire(domain.GroupOrder))
}

func TestTryAcquire_ResetsAfterWindow(t *testing.T) {
	l := New()
	for i := 0; i < defaultCaps[domain.GroupOrder]; i++ {
		require.True(t, l.TryAcquire(domain.GroupOrder))
	}
	require.False(t, l.TryAcquire(domain.GroupOrder))

	l.mu.Lock()
	l.buckets[domain.GroupOrder].ResetAt = time.Now().Add(-time.Millisecond)
	l.mu.Unlock()

	assert.True(t, l.TryAcquire(domain.GroupOrder))
}

func TestAcquire_BlocksThenSucceedsAfterReset(t *testing.T) {
	l := New()
	for i := 0; i < defaultCaps[domain.GroupOrder]; i++ {
		require.True(t, l.TryAcquire(domain.GroupOrder))
	}

	l.mu.Lock()
	l.buckets[domain.GroupOrder].ResetAt = time.Now().Add(20 * time.Millisecond)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.Acquire(ctx, domain.GroupOrder)
	assert.NoError(t, err)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New()
	for i := 0; i < defaultCaps[domain.GroupOrder]; i++ {
		require.True(t, l.TryAcquire(domain.GroupOrder))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, domain.GroupOrder)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReconcile_AdvancesNeverRelaxes(t *testing.T) {
	l := New()
	require.True(t, l.TryAcquire(domain.GroupMarket))

	l.Reconcile(domain.GroupMarket, 10, 3) // used = 7, higher than our local count of 1
	l.mu.Lock()
	got := l.buckets[domain.GroupMarket].Remaining
	l.mu.Unlock()
	assert.Equal(t, 7, got)

	l.Reconcile(domain.GroupMarket, 10, 9) // used = 1, lower than 7 -- must not relax
	l.mu.Lock()
	got = l.buckets[domain.GroupMarket].Remaining
	l.mu.Unlock()
	assert.Equal(t, 7, got)
}

func TestThrottled_429BlocksOneSecond(t *testing.T) {
	l := New()
	l.Throttled(domain.GroupOrder, 429)

	l.mu.Lock()
	until := l.blockUntil
	l.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(time.Second), until, 50*time.Millisecond)
}

func TestThrottled_418BlocksSixtySeconds(t *testing.T) {
	l := New()
	l.Throttled(domain.GroupOrder, 418)

	l.mu.Lock()
	until := l.blockUntil
	l.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(60*time.Second), until, 50*time.Millisecond)
}

func TestThrottled_NeverShrinksExistingBlock(t *testing.T) {
	l := New()
	l.Throttled(domain.GroupOrder, 418)
	l.mu.Lock()
	long := l.blockUntil
	l.mu.Unlock()

	l.Throttled(domain.GroupOrder, 429)
	l.mu.Lock()
	after := l.blockUntil
	l.mu.Unlock()
	assert.Equal(t, long, after)
}
