package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestBucket_CapacityBound(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(5, 5, clock.Now)

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAcquire(), "request %d", i)
	}
	for i := 0; i < 3; i++ {
		assert.False(t, b.TryAcquire())
	}
	assert.Equal(t, 0.0, b.Tokens())
}

func TestBucket_Refill(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(2, 4, clock.Now)

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())

	// 125ms at 4/s is half a token.
	clock.Advance(125 * time.Millisecond)
	assert.False(t, b.TryAcquire())
	assert.Equal(t, 0.5, b.Tokens())

	clock.Advance(125 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
}

func TestBucket_RejectLeavesBalance(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(1, 4, clock.Now)

	require.True(t, b.TryAcquire())
	clock.Advance(125 * time.Millisecond)
	require.False(t, b.TryAcquire())
	require.False(t, b.TryAcquire())
	assert.Equal(t, 0.5, b.Tokens())
}

func TestBucket_Clamp(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(5, 5, clock.Now)

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAcquire())
	}
	clock.Advance(10 * time.Second)
	assert.Equal(t, 5.0, b.Tokens())

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAcquire())
	}
	assert.False(t, b.TryAcquire())
}

func TestBucket_ClockGoingBackwards(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(1, 1, clock.Now)
	start := b.last

	require.True(t, b.TryAcquire())
	clock.Advance(-time.Hour)
	assert.False(t, b.TryAcquire())
	assert.Equal(t, start, b.last)
	assert.Equal(t, 0.0, b.Tokens())
}

func TestBucket_RealClock(t *testing.T) {
	b := NewBucket(1, 10, nil)

	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())

	time.Sleep(150 * time.Millisecond)
	assert.True(t, b.TryAcquire())
}

func TestBucket_ConcurrentAcquire(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(100, 1, clock.Now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	wg.Add(200)
	for i := 0; i < 200; i++ {
		go func() {
			defer wg.Done()
			if b.TryAcquire() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, granted)
}

func TestBucket_TokensDoesNotRefill(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(2, 4, clock.Now)
	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	last := b.last

	clock.Advance(125 * time.Millisecond)
	assert.Equal(t, 0.5, b.Tokens())
	assert.Equal(t, last, b.last)
	assert.Equal(t, 0.0, b.tokens)
}

func TestBucket_NonPositiveParameters(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(0, -3, clock.Now)

	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
	clock.Advance(time.Second)
	assert.True(t, b.TryAcquire())
}
