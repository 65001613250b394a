package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireWithinBurst(t *testing.T) {
	b := New(Config{FillRatePerSecond: 1, Burst: 3})
	require.True(t, b.TryAcquire(1))
	require.True(t, b.TryAcquire(1))
	require.True(t, b.TryAcquire(1))
	assert.False(t, b.TryAcquire(1)) // burst exhausted
}

func TestLazyRefillOverElapsedTime(t *testing.T) {
	start := time.Now()
	b := New(Config{FillRatePerSecond: 10, Burst: 5})
	clock := start
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	require.True(t, b.TryAcquire(5)) // drain to zero
	assert.False(t, b.TryAcquire(1))

	clock = clock.Add(200 * time.Millisecond) // 10/s * 0.2s = 2 tokens
	assert.True(t, b.TryAcquire(2))
	assert.False(t, b.TryAcquire(1))
}

func TestRefillNeverExceedsBurst(t *testing.T) {
	start := time.Now()
	b := New(Config{FillRatePerSecond: 100, Burst: 5})
	clock := start
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	clock = clock.Add(10 * time.Second) // would be 1000 tokens without cap
	assert.InDelta(t, 5, b.Tokens(), 0.001)
}

// TestAdmissionBound covers Testable Property 5: over any window
// W >= 2*bucket-refill-period, accepted submissions <= fill-rate*W + burst.
func TestAdmissionBound(t *testing.T) {
	start := time.Now()
	fillRate := 5.0
	burst := 3
	b := New(Config{FillRatePerSecond: fillRate, Burst: burst})
	clock := start
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	window := 2 * time.Second
	step := 10 * time.Millisecond
	accepted := 0
	for elapsed := time.Duration(0); elapsed < window; elapsed += step {
		clock = start.Add(elapsed)
		if b.TryAcquire(1) {
			accepted++
		}
	}

	bound := fillRate*window.Seconds() + float64(burst)
	assert.LessOrEqual(t, float64(accepted), bound+1e-9)
}
