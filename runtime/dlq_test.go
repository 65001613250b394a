package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch.evalgo.org/envelope"
)

// TestDLQPreservesOriginalIDAndPayload covers Testable Property 3: a
// dead-lettered envelope preserves the terminally-undeliverable
// envelope's own id and payload.
func TestDLQPreservesOriginalIDAndPayload(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{
		name:    "always-fails",
		handles: func(*Action) bool { return true },
		result:  &Result{Status: StatusFailed},
		err:     &Error{Message: "permanent failure", Code: "FATAL"},
	})
	rt := New(reg, DefaultConfig())

	e := envelope.New(envelope.KindTask)
	e.MaxAttempts = 1
	e.Payload = []byte(`{"order_id":"o-123"}`)
	e.RoutingKey = "orders.create"
	originalID := e.ID

	out := rt.Execute(context.Background(), e)
	require.Equal(t, envelope.StateDeadLettered, out.State)
	assert.Equal(t, originalID, out.OriginalID)
	assert.Equal(t, e.Payload, out.Payload)
	assert.Equal(t, "orders.create", out.RoutingKey)
	assert.NotEqual(t, originalID, out.ID, "DLQ envelope gets its own id")
	assert.Contains(t, out.Reason, "permanent failure")
}

func TestDLQNotSynthesizedWhileAttemptsRemain(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExecutor{
		name:    "always-fails",
		handles: func(*Action) bool { return true },
		result:  &Result{Status: StatusFailed},
		err:     &Error{Message: "transient"},
	})
	rt := New(reg, DefaultConfig())

	e := envelope.New(envelope.KindTask)
	e.MaxAttempts = 3

	out := rt.Execute(context.Background(), e)
	assert.Equal(t, envelope.StatePending, out.State)
	assert.Empty(t, out.OriginalID)
}
