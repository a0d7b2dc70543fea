package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(points int, window, block time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(map[Pool]PoolSettings{
		PoolGeneral: {Points: points, Window: window, Block: block},
	})
	l.SetClock(clock.Now)
	return l, clock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestConsumeUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute, time.Minute)

	for i := 0; i < 5; i++ {
		res := l.TryConsume(PoolGeneral, "alice")
		require.True(t, res.Allowed, "request %d should be admitted", i+1)
		assert.Zero(t, res.RetryAfterSeconds())
	}

	res := l.TryConsume(PoolGeneral, "alice")
	require.False(t, res.Allowed, "request over the limit must be rejected")
	assert.Greater(t, res.RetryAfterSeconds(), 0)
	assert.LessOrEqual(t, res.RetryAfterSeconds(), 60)
}

func TestRejectionsDoNotConsumePoints(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute, 30*time.Second)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	// Once the block lapses the key starts a fresh window with full
	// capacity, regardless of how many rejected attempts happened.
	clock.Advance(31 * time.Second)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
}

func TestBlockDuration(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute, 5*time.Minute)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	res := l.TryConsume(PoolGeneral, "alice")
	require.False(t, res.Allowed)
	assert.Equal(t, 300, res.RetryAfterSeconds())

	// Still blocked shortly before expiry; the reported wait shrinks.
	clock.Advance(4 * time.Minute)
	res = l.TryConsume(PoolGeneral, "alice")
	require.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfterSeconds())

	clock.Advance(time.Minute + time.Second)
	assert.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
}

func TestWindowResetWithoutExhaustion(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute, time.Minute)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	clock.Advance(time.Minute)

	// A fresh window grants full capacity again.
	for i := 0; i < 3; i++ {
		require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	}
	assert.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)
}

func TestBlockShorterThanWindowStillResets(t *testing.T) {
	l, clock := newTestLimiter(1, time.Hour, time.Second)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	clock.Advance(2 * time.Second)
	assert.True(t, l.TryConsume(PoolGeneral, "alice").Allowed,
		"an expired block must start a fresh window even inside the old one")
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute, time.Minute)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	assert.True(t, l.TryConsume(PoolGeneral, "bob").Allowed,
		"one key's block must not affect another key")
}

func TestPoolsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	l := New(map[Pool]PoolSettings{
		PoolGeneral: {Points: 100, Window: time.Minute, Block: time.Minute},
		PoolCode:    {Points: 2, Window: time.Minute, Block: 5 * time.Minute},
	})
	l.SetClock(clock.Now)

	require.True(t, l.TryConsume(PoolCode, "alice").Allowed)
	require.True(t, l.TryConsume(PoolCode, "alice").Allowed)
	require.False(t, l.TryConsume(PoolCode, "alice").Allowed)

	// Exhausting the code pool leaves the general pool untouched.
	assert.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
}

func TestUnknownPoolAdmits(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute, time.Minute)

	for i := 0; i < 10; i++ {
		assert.True(t, l.TryConsume(Pool("missing"), "alice").Allowed)
	}
}

func TestRetryAfterAtLeastOneSecond(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute, time.Second)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	clock.Advance(999 * time.Millisecond)
	res := l.TryConsume(PoolGeneral, "alice")
	require.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfterSeconds(),
		"sub-second waits round up, never down to zero")
}

func TestUpdatePool(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute, time.Minute)

	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	l.UpdatePool(PoolGeneral, PoolSettings{Points: 5, Window: time.Minute, Block: time.Minute})

	// Consumed points survive the update; the new ceiling applies.
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	require.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
	assert.False(t, l.TryConsume(PoolGeneral, "alice").Allowed)

	clock.Advance(2 * time.Minute)
	assert.True(t, l.TryConsume(PoolGeneral, "alice").Allowed)
}

func TestCleanup(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute, time.Minute)

	for i := 0; i < 10; i++ {
		l.TryConsume(PoolGeneral, fmt.Sprintf("key-%d", i))
	}
	require.Equal(t, 10, l.BucketCount(PoolGeneral))

	l.Cleanup()
	assert.Equal(t, 10, l.BucketCount(PoolGeneral), "recent buckets survive cleanup")

	clock.Advance(6 * time.Minute)
	l.TryConsume(PoolGeneral, "key-0")
	l.Cleanup()
	assert.Equal(t, 1, l.BucketCount(PoolGeneral), "only the refreshed bucket remains")
}

func TestConcurrentConsume(t *testing.T) {
	l := New(map[Pool]PoolSettings{
		PoolGeneral: {Points: 100, Window: time.Minute, Block: time.Minute},
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryConsume(PoolGeneral, "shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed, "exactly the configured points are admitted")
}
