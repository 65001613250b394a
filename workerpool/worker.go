// Package workerpool implements the Worker Pool Manager (spec §4.4):
// worker registration and capability-label matching (grounded on
// registry.Registry.FindByCapability), placement strategy selection, and
// heartbeat-based liveness with lease reclaim. It keeps worker records
// only; the workers' own processing loops run outside this package.
package workerpool

import (
	"time"

	"dispatch.evalgo.org/envelope"
)

// State is a worker's liveness state.
type State string

const (
	StateOnline  State = "online"
	StateDraining State = "draining"
	StateOffline State = "offline"
)

// Worker is a registered execution agent advertising queue subscriptions,
// capability labels, and a resource budget (spec §3 Worker record).
type Worker struct {
	ID                 string
	SubscribedQueues   []string
	CapabilityLabels   []string
	TotalResources     envelope.ResourceAsk
	AvailableResources envelope.ResourceAsk
	State              State
	LastHeartbeat      time.Time
	ActiveLeases       map[string]struct{} // envelope IDs currently leased to this worker
}

func newWorker(id string, queues, capabilities []string, resources envelope.ResourceAsk) *Worker {
	return &Worker{
		ID:                 id,
		SubscribedQueues:   append([]string(nil), queues...),
		CapabilityLabels:   append([]string(nil), capabilities...),
		TotalResources:     resources,
		AvailableResources: resources,
		State:              StateOnline,
		LastHeartbeat:      time.Now(),
		ActiveLeases:       make(map[string]struct{}),
	}
}

// hasCapabilities reports whether this worker's capability label set is a
// superset of required (spec §4.4: "labels superset-match required
// capabilities").
func (w *Worker) hasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(w.CapabilityLabels))
	for _, c := range w.CapabilityLabels {
		set[c] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

// subscribesTo reports whether this worker is subscribed to queueName.
func (w *Worker) subscribesTo(queueName string) bool {
	for _, q := range w.SubscribedQueues {
		if q == queueName {
			return true
		}
	}
	return false
}

// fitsResources reports whether this worker's available resource budget
// can satisfy ask.
func (w *Worker) fitsResources(ask envelope.ResourceAsk) bool {
	return w.AvailableResources.CPUShares >= ask.CPUShares &&
		w.AvailableResources.MemoryBytes >= ask.MemoryBytes &&
		w.AvailableResources.Slots >= ask.Slots
}

func (w *Worker) reserve(ask envelope.ResourceAsk) {
	w.AvailableResources.CPUShares -= ask.CPUShares
	w.AvailableResources.MemoryBytes -= ask.MemoryBytes
	w.AvailableResources.Slots -= ask.Slots
}

func (w *Worker) release(ask envelope.ResourceAsk) {
	w.AvailableResources.CPUShares += ask.CPUShares
	w.AvailableResources.MemoryBytes += ask.MemoryBytes
	w.AvailableResources.Slots += ask.Slots
	if w.AvailableResources.CPUShares > w.TotalResources.CPUShares {
		w.AvailableResources.CPUShares = w.TotalResources.CPUShares
	}
	if w.AvailableResources.MemoryBytes > w.TotalResources.MemoryBytes {
		w.AvailableResources.MemoryBytes = w.TotalResources.MemoryBytes
	}
	if w.AvailableResources.Slots > w.TotalResources.Slots {
		w.AvailableResources.Slots = w.TotalResources.Slots
	}
}

// loadFraction is used by the least-loaded placement strategy: the
// fraction of slot capacity currently in use.
func (w *Worker) loadFraction() float64 {
	if w.TotalResources.Slots == 0 {
		return 0
	}
	used := w.TotalResources.Slots - w.AvailableResources.Slots
	return float64(used) / float64(w.TotalResources.Slots)
}
