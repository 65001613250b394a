package workerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dispatch.evalgo.org/envelope"
)

func TestMonitorReclaimsLostWorkerInBackground(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.MissedHeartbeatsMax = 1
	p := New(cfg)
	p.Register("w1", []string{"q"}, nil, envelope.ResourceAsk{Slots: 1})
	p.Lease("w1", "env-1")
	p.mu.Lock()
	p.workers["w1"].LastHeartbeat = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	var reclaimedEnvs []string
	done := make(chan struct{})
	m := NewMonitor(p, func(workerID string, envIDs []string) {
		reclaimedEnvs = append(reclaimedEnvs, envIDs...)
		close(done)
	})
	m.Start()
	defer m.Stop()

	select {
	case <-done:
		assert.Equal(t, []string{"env-1"}, reclaimedEnvs)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reclaim callback to fire")
	}
}
