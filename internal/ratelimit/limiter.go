// Package ratelimit admits or rejects calls per client key using a token
// bucket that refills to full at fixed intervals.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults match one bucket of 100 calls per minute.
const (
	DefaultCapacity = 100
	DefaultInterval = time.Minute
)

// Limiter is the admission contract the HTTP layer depends on.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// TryConsume deducts n tokens from key's bucket if at least n are
	// available. A rejected call deducts nothing.
	TryConsume(key string, n int) Decision
}

// Decision carries the outcome of TryConsume plus the bucket state needed
// for rate limit response headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time     // next refill boundary
	RetryAfter time.Duration // zero when allowed
}

type bucket struct {
	mu          sync.Mutex
	available   int
	windowStart time.Time
	lastSeen    time.Time
	evicted     bool
}

// MemoryLimiter keeps one bucket per key in process memory. Buckets are
// locked individually, so different keys never contend.
type MemoryLimiter struct {
	capacity int
	interval time.Duration
	now      func() time.Time
	buckets  sync.Map // string -> *bucket
}

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a limiter whose buckets hold capacity tokens and
// refill to full once per interval. Non-positive values select the defaults.
func NewMemoryLimiter(capacity int, interval time.Duration, opts ...Option) *MemoryLimiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &MemoryLimiter{
		capacity: capacity,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryConsume implements Limiter. n below 1 is treated as 1.
func (l *MemoryLimiter) TryConsume(key string, n int) Decision {
	if n < 1 {
		n = 1
	}
	for {
		now := l.now()
		b := l.bucketFor(key, now)

		b.mu.Lock()
		if b.evicted {
			// Swept between lookup and lock; the map no longer holds it.
			b.mu.Unlock()
			continue
		}
		d := l.consume(b, now, n)
		b.mu.Unlock()
		return d
	}
}

func (l *MemoryLimiter) bucketFor(key string, now time.Time) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	v, _ := l.buckets.LoadOrStore(key, &bucket{
		available:   l.capacity,
		windowStart: now,
		lastSeen:    now,
	})
	return v.(*bucket)
}

// consume runs with b.mu held.
func (l *MemoryLimiter) consume(b *bucket, now time.Time, n int) Decision {
	if elapsed := now.Sub(b.windowStart); elapsed >= l.interval {
		periods := elapsed / l.interval
		b.windowStart = b.windowStart.Add(periods * l.interval)
		b.available = l.capacity
	}
	b.lastSeen = now

	resetAt := b.windowStart.Add(l.interval)
	d := Decision{Limit: l.capacity, ResetAt: resetAt}
	if b.available >= n {
		b.available -= n
		d.Allowed = true
	} else {
		d.RetryAfter = resetAt.Sub(now)
	}
	d.Remaining = b.available
	return d
}

// Sweep removes buckets untouched for at least idle and reports how many
// were removed. idle is raised to one refill interval if shorter: any bucket
// idle that long would have refilled to full on its next access anyway, so
// recreating it admits nothing extra.
func (l *MemoryLimiter) Sweep(idle time.Duration) int {
	if idle < l.interval {
		idle = l.interval
	}
	now := l.now()
	removed := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastSeen) >= idle {
			b.evicted = true
			if l.buckets.CompareAndDelete(k, b) {
				removed++
			}
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// RunSweeper calls Sweep(idle) every period until ctx is done. onSweep, if
// non-nil, receives the number of buckets removed by each pass.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, period, idle time.Duration, onSweep func(removed int)) {
	if period <= 0 {
		period = l.interval
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := l.Sweep(idle)
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Len reports the number of live buckets.
func (l *MemoryLimiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Capacity reports the bucket size.
func (l *MemoryLimiter) Capacity() int { return l.capacity }

// Interval reports the refill period.
func (l *MemoryLimiter) Interval() time.Duration { return l.interval }
