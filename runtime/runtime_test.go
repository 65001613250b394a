package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch.evalgo.org/envelope"
)

type stubExecutor struct {
	name    string
	handles func(*Action) bool
	result  *Result
	err     error
}

func (s *stubExecutor) Name() string                { return s.name }
func (s *stubExecutor) CanHandle(a *Action) bool     { return s.handles(a) }
func (s *stubExecutor) Execute(ctx context.Context, a *Action) (*Result, error) {
	return s.result, s.err
}

func TestExecuteSuccessTransitionsToSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{name: "ok", handles: func(*Action) bool { return true }, result: &Result{Status: StatusCompleted}})

	rt := New(reg, DefaultConfig())
	e := envelope.New(envelope.KindTask)
	e.MaxAttempts = 3

	out := rt.Execute(context.Background(), e)
	assert.Equal(t, envelope.StateSuccess, out.State)
	assert.Equal(t, 1, out.Attempt)
}

// TestFIFOAcksUnderManualAckNoRetries covers Testable Property 2: under
// manual ack with no retries needed, envelopes complete in submission
// order without being requeued.
func TestFIFOAcksUnderManualAckNoRetries(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{name: "ok", handles: func(*Action) bool { return true }, result: &Result{Status: StatusCompleted}})
	rt := New(reg, DefaultConfig())

	var completions []string
	for i := 0; i < 5; i++ {
		e := envelope.New(envelope.KindTask)
		e.ID = string(rune('a' + i))
		e.AckMode = envelope.AckManual
		e.MaxAttempts = 1
		out := rt.Execute(context.Background(), e)
		require.Equal(t, envelope.StateSuccess, out.State)
		completions = append(completions, out.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, completions)
}

func TestExecuteFailureRetriesUntilMaxAttempts(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{name: "fail", handles: func(*Action) bool { return true }, result: &Result{Status: StatusFailed}, err: &Error{Message: "boom"}})

	rt := New(reg, DefaultConfig())
	e := envelope.New(envelope.KindTask)
	e.MaxAttempts = 2
	e.Backoff = envelope.RetryBackoff{Initial: time.Millisecond, Multiplier: 1, Cap: time.Second}

	out := rt.Execute(context.Background(), e)
	assert.Equal(t, envelope.StatePending, out.State)
	assert.Equal(t, 1, out.Attempt)
	assert.True(t, out.NotBefore.After(time.Now().Add(-time.Second)))

	out2 := rt.Execute(context.Background(), out)
	assert.Equal(t, envelope.StateDeadLettered, out2.State)
}

func TestExecuteHonorsCancellation(t *testing.T) {
	reg := NewRegistry()
	rt := New(reg, DefaultConfig())
	e := envelope.New(envelope.KindTask)
	e.Cancel()

	out := rt.Execute(context.Background(), e)
	assert.Equal(t, envelope.StateRevoked, out.State)
}

func TestExecuteHonorsExpiry(t *testing.T) {
	reg := NewRegistry()
	rt := New(reg, DefaultConfig())
	e := envelope.New(envelope.KindTask)
	e.ExpiresAt = time.Now().Add(-time.Second)

	out := rt.Execute(context.Background(), e)
	assert.Equal(t, envelope.StateExpired, out.State)
}
