// Package ratelimit implements the per-session token bucket guarding the
// hot receive path (spec component C).
package ratelimit

import "time"

// TokenBucket is a lazily-refilling token bucket. It is not safe for
// concurrent use: one bucket per session, touched only from that session's
// I/O goroutine.
type TokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// New creates a TokenBucket starting full, with the given capacity and
// per-second refill rate.
func New(capacity, refillRate float64) *TokenBucket {
	return newWithClock(capacity, refillRate, time.Now)
}

func newWithClock(capacity, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now(),
		now:        now,
	}
}

// TryConsume attempts to deduct n tokens. It first refills based on elapsed
// time since the last call, clamped to capacity, then deducts if enough
// tokens are available. Returns false (without deducting) if insufficient.
func (b *TokenBucket) TryConsume(n float64) bool {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Tokens reports the current token count, for tests and diagnostics.
func (b *TokenBucket) Tokens() float64 { return b.tokens }
