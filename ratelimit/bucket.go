// Package ratelimit implements the Scheduler's per-task-definition token
// bucket (spec §4.3): fill-rate and burst capacity, O(1) try-acquire with
// lazy refill based on elapsed time.
//
// golang.org/x/time/rate (the idiom learned from
// _examples/r3e-network-service_layer/infrastructure/ratelimit/ratelimit.go)
// was considered and rejected: its Limiter.Allow models a slightly
// different admission curve than the exact fill-rate*W+burst bound the
// spec requires (Testable Property 5), and doesn't expose the
// lazy-refill-then-decrement sequencing this package needs to test
// directly. A small hand-rolled bucket, in the teacher's struct+mutex
// idiom, is used instead.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a single token bucket (spec §3 Task definition
// rate-limit spec, spec §4.3 Rate limiter).
type Config struct {
	FillRatePerSecond float64
	Burst             int
}

// Bucket is a lazily-refilled token bucket. Strictly serializable per
// spec §5 ("Rate-limit token bucket is per task-def and its try-acquire is
// strictly serializable").
type Bucket struct {
	mu         sync.Mutex
	fillRate   float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// New creates a bucket starting full (burst tokens available).
func New(cfg Config) *Bucket {
	return &Bucket{
		fillRate:   cfg.FillRatePerSecond,
		burst:      float64(cfg.Burst),
		tokens:     float64(cfg.Burst),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// TryAcquire attempts to remove n tokens, refilling lazily first. Returns
// true if the tokens were available and have been deducted, false
// otherwise (no partial deduction on failure). O(1).
func (b *Bucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	need := float64(n)
	if b.tokens < need {
		return false
	}
	b.tokens -= need
	return true
}

// Tokens returns the current token count after a lazy refill, for
// observability and testing.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.fillRate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}
