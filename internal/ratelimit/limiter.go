package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter is a sliding-window rate limiter keyed by an arbitrary string,
// typically a remote peer address. A key may make at most max requests per
// window; the window resets once it has fully elapsed.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter creates a limiter allowing max events per window for each key.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether the key may proceed, consuming one slot if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}

// Remaining returns how many slots are left for key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || l.now().Sub(b.windowStart) >= l.window {
		return l.max
	}
	if b.count >= l.max {
		return 0
	}
	return l.max - b.count
}

// Prune drops buckets whose window has elapsed, bounding memory growth from
// one-shot peers. Callers run it periodically.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
