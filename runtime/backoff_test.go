package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dispatch.evalgo.org/envelope"
)

// TestRetryBackoffFormulaBound covers Testable Property 4: each retry's
// NotBefore falls within [min(cap,initial*mult^(n-1))*(1-jitter),
// min(cap,...)*(1+jitter)] of the attempt time.
func TestRetryBackoffFormulaBound(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{name: "fail", handles: func(*Action) bool { return true }, result: &Result{Status: StatusFailed}, err: &Error{Message: "x"}})

	fixedNow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	cfg := Config{Now: func() time.Time { return fixedNow }, Rand01: func() float64 { return 0.5 }}
	rt := New(reg, cfg)

	e := envelope.New(envelope.KindTask)
	e.MaxAttempts = 5
	e.Backoff = envelope.RetryBackoff{Initial: time.Second, Multiplier: 2, Cap: 30 * time.Second, Jitter: 0.1}

	out := rt.Execute(context.Background(), e)
	// attempt 1: raw = 1s, jitter factor at rand01=0.5 is exactly 1.0
	assert.Equal(t, fixedNow.Add(time.Second), out.NotBefore)
}

// TestScenarioS2RetryBackoffCapped mirrors spec scenario S2: a task with
// initial=100ms, multiplier=2, cap=2s, jitter=0 retried 6 times never
// exceeds the cap.
func TestScenarioS2RetryBackoffCapped(t *testing.T) {
	backoff := envelope.RetryBackoff{Initial: 100 * time.Millisecond, Multiplier: 2, Cap: 2 * time.Second, Jitter: 0}
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoff.Delay(attempt, 0)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
	assert.Equal(t, 2*time.Second, backoff.Delay(6, 0))
}
