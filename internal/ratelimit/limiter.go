package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Observer is notified of every admission decision.
type Observer interface {
	Observe(key string, allowed bool)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source used by new buckets.
func WithClock(now Clock) Option {
	return func(l *Limiter) { l.now = now }
}

// WithObserver registers an observer for admission decisions.
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// Limiter keeps one token bucket per caller key.
//
// Buckets are created lazily on the first request for a key. The map is a
// sync.Map so that lookups for existing keys take no shared lock and
// insertion is an atomic LoadOrStore; each bucket then guards its own state.
type Limiter struct {
	capacity   float64
	refillRate float64
	now        Clock
	observer   Observer

	buckets sync.Map // string -> *Bucket
}

// New returns a Limiter whose buckets hold at most capacity tokens and refill
// at refillRate tokens per second. Non-positive values are replaced with 1.
func New(capacity, refillRate float64, opts ...Option) *Limiter {
	capacity, refillRate = normalize(capacity, refillRate)
	l := &Limiter{
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsAllowed reports whether a request from key may proceed, consuming one
// token from the key's bucket when it does.
func (l *Limiter) IsAllowed(key string) bool {
	for {
		b := l.bucket(key)
		allowed, live := b.acquire()
		if !live {
			// Evicted between lookup and acquire. Drop it here too so the
			// next lookup inserts a fresh bucket instead of finding it again.
			l.buckets.CompareAndDelete(key, b)
			continue
		}
		if l.observer != nil {
			l.observer.Observe(key, allowed)
		}
		return allowed
	}
}

func (l *Limiter) bucket(key string) *Bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*Bucket)
	}
	actual, _ := l.buckets.LoadOrStore(key, NewBucket(l.capacity, l.refillRate, l.now))
	return actual.(*Bucket)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// MinIdle is the shortest idle period after which any bucket is guaranteed
// to be full again. Evicting earlier would hand the key a fresh full bucket
// it had not yet earned.
func (l *Limiter) MinIdle() time.Duration {
	return time.Duration(l.capacity / l.refillRate * float64(time.Second))
}

// Sweep removes buckets that have been idle for at least idle and returns how
// many were removed. idle is raised to MinIdle when shorter.
func (l *Limiter) Sweep(idle time.Duration) int {
	if floor := l.MinIdle(); idle < floor {
		idle = floor
	}
	removed := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*Bucket)
		if b.evictIfIdle(idle) && l.buckets.CompareAndDelete(k, b) {
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}
