package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	e := New(KindTask)
	require.NotEmpty(t, e.ID)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, 1, e.MaxAttempts)
	assert.Equal(t, 1, e.ResourceAsk.Slots)
	assert.False(t, e.State.Terminal())
}

// TestTerminalStatesAreMutuallyExclusive covers Testable Property 1: every
// envelope reaches exactly one terminal state.
func TestTerminalStatesAreMutuallyExclusive(t *testing.T) {
	terminal := []State{StateSuccess, StateFailed, StateDeadLettered, StateExpired, StateRevoked}
	nonTerminal := []State{StatePending, StateReady, StateRunning}

	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestRetryBackoffDelayFormula(t *testing.T) {
	b := RetryBackoff{Initial: time.Second, Multiplier: 2, Cap: 10 * time.Second, Jitter: 0}
	assert.Equal(t, time.Second, b.Delay(1, 0))
	assert.Equal(t, 2*time.Second, b.Delay(2, 0))
	assert.Equal(t, 4*time.Second, b.Delay(3, 0))
	// capped
	assert.Equal(t, 10*time.Second, b.Delay(10, 0))
}

func TestRetryBackoffJitterBounds(t *testing.T) {
	b := RetryBackoff{Initial: time.Second, Multiplier: 1, Cap: 0, Jitter: 0.5}
	lo := b.Delay(1, 0)
	hi := b.Delay(1, 1)
	assert.Equal(t, 500*time.Millisecond, lo)
	assert.Equal(t, 1500*time.Millisecond, hi)
}

func TestDeadLetterPreservesOriginalID(t *testing.T) {
	e := New(KindMessage)
	e.Payload = []byte("hello")
	e.RoutingKey = "a.b.c"

	dl := e.DeadLetter("max-attempts")
	assert.Equal(t, e.ID, dl.OriginalID)
	assert.Equal(t, e.Payload, dl.Payload)
	assert.Equal(t, e.RoutingKey, dl.RoutingKey)
	assert.Equal(t, "max-attempts", dl.Reason)
	assert.Equal(t, StateDeadLettered, dl.State)
}

func TestCancelIsHonoredAtPollingPoint(t *testing.T) {
	e := New(KindTask)
	assert.False(t, e.Cancelled())
	e.Cancel()
	assert.True(t, e.Cancelled())
}

func TestReadyAndExpired(t *testing.T) {
	now := time.Now()
	e := New(KindTask)
	e.NotBefore = now.Add(time.Hour)
	assert.False(t, e.Ready(now))
	assert.True(t, e.Ready(now.Add(2*time.Hour)))

	e.ExpiresAt = now.Add(time.Minute)
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(2*time.Minute)))
}
