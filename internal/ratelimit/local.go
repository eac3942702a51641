// Package ratelimit throttles login attempts per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(key string) bool
}

// Resetter is implemented by limiters that forget a key's history, used
// after a successful login.
type Resetter interface {
	Reset(key string)
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. Idle keys
// are pruned lazily when new keys arrive.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	r       rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func NewLocalLimiter(perMinute float64, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		entries: make(map[string]*entry),
		r:       rate.Limit(perMinute / 60),
		burst:   burst,
		idle:    3 * time.Minute,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		l.pruneLocked(now)
		e = &entry{lim: rate.NewLimiter(l.r, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *LocalLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *LocalLimiter) pruneLocked(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.seen) > l.idle {
			delete(l.entries, k)
		}
	}
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }
