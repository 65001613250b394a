package workerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/reason"
)

func TestPlaceFiltersByQueueCapabilityAndResources(t *testing.T) {
	p := New(DefaultConfig())
	p.Register("w1", []string{"default"}, []string{"gpu"}, envelope.ResourceAsk{Slots: 2})
	p.Register("w2", []string{"default"}, nil, envelope.ResourceAsk{Slots: 2})

	id, err := p.Place("default", []string{"gpu"}, envelope.ResourceAsk{Slots: 1})
	require.NoError(t, err)
	assert.Equal(t, "w1", id)
}

func TestPlaceReturnsPlacementUnavailable(t *testing.T) {
	p := New(DefaultConfig())
	p.Register("w1", []string{"other"}, nil, envelope.ResourceAsk{Slots: 1})

	_, err := p.Place("default", nil, envelope.ResourceAsk{Slots: 1})
	require.Error(t, err)
	rerr, ok := err.(*reason.Error)
	require.True(t, ok)
	assert.Equal(t, reason.PlacementUnavailable, rerr.Reason)
}

func TestPlaceLeastLoadedPrefersLessUtilized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyLeastLoaded
	p := New(cfg)
	p.Register("busy", []string{"q"}, nil, envelope.ResourceAsk{Slots: 10})
	p.Register("idle", []string{"q"}, nil, envelope.ResourceAsk{Slots: 10})

	_, err := p.Place("q", nil, envelope.ResourceAsk{Slots: 9})
	require.NoError(t, err)
	w, _ := p.Get("busy")
	if w.AvailableResources.Slots == 1 {
		// busy got reserved first; now idle should be chosen next.
		id, err := p.Place("q", nil, envelope.ResourceAsk{Slots: 1})
		require.NoError(t, err)
		assert.Equal(t, "idle", id)
	}
}

func TestResourceReservationReleasedOnComplete(t *testing.T) {
	p := New(DefaultConfig())
	p.Register("w1", []string{"q"}, nil, envelope.ResourceAsk{Slots: 1})

	ask := envelope.ResourceAsk{Slots: 1}
	id, err := p.Place("q", nil, ask)
	require.NoError(t, err)
	p.Lease(id, "env-1")

	_, err = p.Place("q", nil, ask)
	assert.Error(t, err, "no remaining slots while leased")

	p.Release(id, "env-1", ask)
	_, err = p.Place("q", nil, ask)
	assert.NoError(t, err, "slot freed after release")
}

func TestReclaimExpiredTransitionsOfflineAndReturnsLeases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Second
	cfg.MissedHeartbeatsMax = 2
	p := New(cfg)
	p.Register("w1", []string{"q"}, nil, envelope.ResourceAsk{Slots: 1})
	p.Lease("w1", "env-1")

	past := time.Now().Add(-10 * time.Second)
	p.mu.Lock()
	p.workers["w1"].LastHeartbeat = past
	p.mu.Unlock()

	reclaimed := p.ReclaimExpired(time.Now())
	assert.Equal(t, []string{"env-1"}, reclaimed["w1"])

	w, _ := p.Get("w1")
	assert.Equal(t, StateOffline, w.State)
	assert.Equal(t, 1, w.AvailableResources.Slots)
}

func TestHeartbeatBringsWorkerBackOnline(t *testing.T) {
	p := New(DefaultConfig())
	p.Register("w1", []string{"q"}, nil, envelope.ResourceAsk{Slots: 1})
	p.mu.Lock()
	p.workers["w1"].State = StateOffline
	p.mu.Unlock()

	p.Heartbeat("w1")
	w, _ := p.Get("w1")
	assert.Equal(t, StateOnline, w.State)
}

func TestDrainExcludesWorkerFromNewPlacements(t *testing.T) {
	p := New(DefaultConfig())
	p.Register("w1", []string{"q"}, nil, envelope.ResourceAsk{Slots: 1})
	p.Drain("w1")

	_, err := p.Place("q", nil, envelope.ResourceAsk{Slots: 1})
	assert.Error(t, err)
}
