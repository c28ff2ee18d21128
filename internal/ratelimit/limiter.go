package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sweepInterval = time.Minute
	sweepGrace    = 5 * time.Minute
)

// Decision is the outcome of a fixed-window check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in discrete, non-overlapping windows. It is
// an explicitly owned component: construct one per process (or per test) and
// inject it; there is no package-level singleton.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLimiter constructs a limiter and starts a background sweep that reaps
// buckets whose window lapsed long ago, so memory stays bounded by the set of
// recently active keys. Call Close to stop the sweep.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.sweepLoop()
	return l
}

// Close stops the sweep goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Check records one request for the key and decides whether it is allowed.
// A fresh or lapsed window restarts at count=1. Denied requests still count
// but never move ResetAt, so hammering a closed window does not extend it.
func (l *Limiter) Check(key string, window time.Duration, max int) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		l.buckets[key] = b
		return Decision{Allowed: true, Remaining: max - 1, ResetAt: b.resetAt}
	}

	b.count++
	if b.count > max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.resetAt}
	}
	return Decision{Allowed: true, Remaining: max - b.count, ResetAt: b.resetAt}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.resetAt) > sweepGrace {
			delete(l.buckets, key)
		}
	}
}

// ClientIP derives the limiter key from the caller: first X-Forwarded-For
// entry, else X-Real-Ip, else "unknown" so all unidentifiable callers share
// one conservative bucket.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return strings.TrimSpace(real)
	}
	return "unknown"
}
