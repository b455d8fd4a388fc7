package ratelimit

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTryConsumeWithinCapacity(t *testing.T) {
	cur := epoch
	clock := func() time.Time { return cur }
	b := newWithClock(10, 100, clock)

	for i := 0; i < 10; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("consume %d should succeed (bucket starts full)", i)
		}
	}
	if b.TryConsume(1) {
		t.Fatal("11th consume should fail, bucket is empty")
	}

	cur = cur.Add(25 * time.Millisecond) // 100 tok/s * 0.025s = 2.5 tokens
	if !b.TryConsume(1) {
		t.Fatal("consume after refill should succeed")
	}
	if !b.TryConsume(1) {
		t.Fatal("second consume after refill should succeed")
	}
	if b.TryConsume(1) {
		t.Fatal("third consume after 2.5-token refill should fail")
	}
}

func TestTokensNeverExceedCapacity(t *testing.T) {
	cur := epoch
	clock := func() time.Time { return cur }
	b := newWithClock(5, 1000, clock)

	cur = cur.Add(10 * time.Second) // would add 10000 tokens without clamping
	b.TryConsume(0)                 // force a refill computation with n=0
	if b.Tokens() > 5 {
		t.Fatalf("tokens = %v, want <= capacity 5", b.Tokens())
	}
}

func TestConstantRateBound(t *testing.T) {
	// For a constant-rate producer at rate R over time T, TryConsume should
	// succeed at most capacity + R*T times.
	const capacity = 10.0
	const rate = 100.0 // tokens/sec
	const steps = 1000
	const stepDur = time.Millisecond // total T = 1s

	cur := epoch
	clock := func() time.Time { return cur }
	b := newWithClock(capacity, rate, clock)

	successes := 0
	for i := 0; i < steps; i++ {
		cur = cur.Add(stepDur)
		if b.TryConsume(1) {
			successes++
		}
	}
	maxAllowed := int(capacity + rate*float64(steps)*stepDur.Seconds())
	if successes > maxAllowed {
		t.Fatalf("successes = %d, want <= %d", successes, maxAllowed)
	}
}
