package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := New(cfg)
	l.now = clock.Now
	return l, clock
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(Config{RPS: 10, Burst: 2})
	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	clock.Advance(100 * time.Millisecond)
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(Config{RPS: 1, Burst: 1})
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_DisabledAlwaysAllows(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	assert.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("same"))
	}
	assert.Zero(t, l.Len())
}

func TestLimiter_IdleBucketsAreDropped(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(Config{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	require.True(t, l.Allow("old"))
	clock.Advance(30 * time.Second)
	require.True(t, l.Allow("recent"))
	assert.Equal(t, 2, l.Len())

	clock.Advance(45 * time.Second)
	require.True(t, l.Allow("new"))
	assert.Equal(t, 2, l.Len(), "old should be swept, recent kept")
}

func TestLimiter_ReserveReportsWait(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(Config{RPS: 0.5, Burst: 1})
	ok, wait := l.Reserve("10.0.0.1")
	require.True(t, ok)
	require.Zero(t, wait)

	ok, wait = l.Reserve("10.0.0.1")
	require.False(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	clock.Advance(time.Second)
	ok, wait = l.Reserve("10.0.0.1")
	require.False(t, ok)
	assert.Equal(t, time.Second, wait, "a rejected reservation must not consume a token")

	clock.Advance(time.Second)
	ok, _ = l.Reserve("10.0.0.1")
	require.True(t, ok)
}
