package ratelimit

import (
	"sync"
	"time"
)

// Clock returns the current instant. time.Now carries a monotonic reading,
// so differences between two instants are immune to wall-clock adjustments.
type Clock func() time.Time

// Bucket is a continuously refilling token bucket.
// Refill happens lazily on every TryAcquire; nothing runs in the background.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	last       time.Time
	now        Clock
	evicted    bool
}

// NewBucket returns a full bucket. Non-positive capacity or refillRate are
// replaced with 1.
func NewBucket(capacity, refillRate float64, now Clock) *Bucket {
	capacity, refillRate = normalize(capacity, refillRate)
	if now == nil {
		now = time.Now
	}
	return &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		last:       now(),
		now:        now,
	}
}

// TryAcquire refills the bucket for the time elapsed since the last call and
// consumes one token if available.
func (b *Bucket) TryAcquire() bool {
	allowed, _ := b.acquire()
	return allowed
}

// acquire reports live=false without touching the balance when the bucket has
// been evicted from its limiter.
func (b *Bucket) acquire() (allowed, live bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.evicted {
		return false, false
	}
	b.refill()
	if b.tokens >= 1 {
		b.tokens -= 1
		return true, true
	}
	return false, true
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// Tokens returns the balance the bucket would hold if refilled now. It does
// not modify the bucket.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	tokens := b.tokens
	if elapsed := b.now().Sub(b.last).Seconds(); elapsed > 0 {
		tokens = min(tokens+elapsed*b.refillRate, b.capacity)
	}
	return tokens
}

// evictIfIdle marks the bucket evicted when it has not been refilled for at
// least idle. Once evicted a bucket never admits again.
func (b *Bucket) evictIfIdle(idle time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.evicted {
		return true
	}
	if b.now().Sub(b.last) < idle {
		return false
	}
	b.evicted = true
	return true
}

func normalize(capacity, refillRate float64) (float64, float64) {
	if !(capacity > 0) {
		capacity = 1
	}
	if !(refillRate > 0) {
		refillRate = 1
	}
	return capacity, refillRate
}
