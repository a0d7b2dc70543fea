// Package ratelimit implements fixed-window admission control with
// independent quota pools. A pool admits up to Points consumptions per
// Window for each key; exhausting a window blocks the key for Block.
//
// The counter is a fixed window, not a sliding window or token bucket: a
// burst straddling a window boundary can admit up to twice the nominal
// rate. That trade keeps checks and memory O(1) per key.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Pool identifies an independent quota namespace
type Pool string

const (
	// PoolGeneral covers ordinary API operations
	PoolGeneral Pool = "general"
	// PoolAI covers AI-completion requests
	PoolAI Pool = "ai"
	// PoolCode covers code-execution requests
	PoolCode Pool = "code"
)

// PoolSettings defines one pool's window
type PoolSettings struct {
	Points int
	Window time.Duration
	Block  time.Duration
}

// Result reports the outcome of a consumption attempt
type Result struct {
	Allowed bool
	// RetryAfter is the wait before the key is admitted again, rounded
	// up to at least one second. Zero when Allowed.
	RetryAfter time.Duration
}

type bucket struct {
	points       int
	windowStart  time.Time
	blockedUntil time.Time
}

type pool struct {
	settings PoolSettings
	mu       sync.Mutex
	buckets  map[string]*bucket
}

// Limiter holds a set of independent admission pools
type Limiter struct {
	pools map[Pool]*pool
	now   func() time.Time
}

// New creates a Limiter with the given pools
func New(settings map[Pool]PoolSettings) *Limiter {
	l := &Limiter{
		pools: make(map[Pool]*pool, len(settings)),
		now:   time.Now,
	}
	for name, s := range settings {
		l.pools[name] = &pool{
			settings: s,
			buckets:  make(map[string]*bucket),
		}
	}
	return l
}

// SetClock overrides the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// UpdatePool replaces one pool's settings. Existing buckets keep their
// consumed points; the new limits apply from the next window.
func (l *Limiter) UpdatePool(name Pool, s PoolSettings) {
	p, ok := l.pools[name]
	if !ok {
		return
	}
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
}

// TryConsume attempts to consume one point from the named pool for key.
// An unknown pool admits everything; misconfiguration must not turn into
// a denial of service.
func (l *Limiter) TryConsume(name Pool, key string) Result {
	p, ok := l.pools[name]
	if !ok {
		return Result{Allowed: true}
	}

	now := l.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[key]
	if !ok {
		p.buckets[key] = &bucket{points: 1, windowStart: now}
		return Result{Allowed: true}
	}

	if now.Before(b.blockedUntil) {
		return Result{Allowed: false, RetryAfter: retryAfter(b.blockedUntil.Sub(now))}
	}

	// An expired block always resets the window, even if the block was
	// shorter than the window. A key is never stuck blocked.
	if !b.blockedUntil.IsZero() || now.Sub(b.windowStart) >= p.settings.Window {
		b.points = 1
		b.windowStart = now
		b.blockedUntil = time.Time{}
		return Result{Allowed: true}
	}

	if b.points >= p.settings.Points {
		b.blockedUntil = now.Add(p.settings.Block)
		return Result{Allowed: false, RetryAfter: retryAfter(p.settings.Block)}
	}

	b.points++
	return Result{Allowed: true}
}

// Cleanup drops buckets idle past their window and block period. Buckets
// are small, so this is about bounding growth over very long uptimes,
// not reclaiming memory urgently.
func (l *Limiter) Cleanup() {
	now := l.now()
	for _, p := range l.pools {
		p.mu.Lock()
		for key, b := range p.buckets {
			if now.After(b.blockedUntil) && now.Sub(b.windowStart) > 5*p.settings.Window {
				delete(p.buckets, key)
			}
		}
		p.mu.Unlock()
	}
}

// BucketCount returns the number of live buckets in a pool, for
// observability.
func (l *Limiter) BucketCount(name Pool) int {
	p, ok := l.pools[name]
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// RetryAfterSeconds converts a Result's delay to whole seconds for wire
// payloads and Retry-After headers.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int(r.RetryAfter / time.Second)
	if time.Duration(secs)*time.Second < r.RetryAfter {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func retryAfter(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}

// String implements fmt.Stringer for log lines
func (r Result) String() string {
	if r.Allowed {
		return "allowed"
	}
	return fmt.Sprintf("rejected (retry after %s)", r.RetryAfter)
}
