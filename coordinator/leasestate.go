// Package coordinator tracks the state of leases offered to workers by the
// Worker Pool Manager, independent of the transport (HTTP polling today)
// that carries lease offers and acknowledgements.
package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// LeaseState represents the current state of a lease offered to a worker
// over the coordination channel (spec §4.4 Worker Pool Manager). This is
// the transport-facing counterpart of envelope.State: where envelope.State
// tracks an envelope's lifecycle inside the engine, LeaseState tracks what
// the remote worker has acknowledged about one outstanding lease.
type LeaseState string

const (
	LeaseOffered   LeaseState = "offered"
	LeaseAccepted  LeaseState = "accepted"
	LeaseRejected  LeaseState = "rejected"
	LeaseRunning   LeaseState = "running"
	LeaseCompleted LeaseState = "completed"
	LeaseFailed    LeaseState = "failed"
	LeaseRevoked   LeaseState = "revoked"
)

// ValidTransitions defines which lease state transitions are allowed.
var ValidTransitions = map[LeaseState][]LeaseState{
	LeaseOffered:  {LeaseAccepted, LeaseRejected, LeaseRevoked},
	LeaseAccepted: {LeaseRunning, LeaseRevoked},
	LeaseRunning:  {LeaseCompleted, LeaseFailed, LeaseRevoked},
	// Terminal states: completed, failed, rejected, revoked (no transitions out)
}

// IsTerminal returns true if the lease state is a terminal state.
func (s LeaseState) IsTerminal() bool {
	return s == LeaseCompleted || s == LeaseFailed || s == LeaseRejected || s == LeaseRevoked
}

// CanTransitionTo checks if a transition to the target state is valid.
func (s LeaseState) CanTransitionTo(target LeaseState) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, valid := range validTargets {
		if valid == target {
			return true
		}
	}
	return false
}

// LeaseRecord represents the state of one outstanding lease offered to a
// specific worker.
type LeaseRecord struct {
	EnvelopeID    string
	WorkerID      string
	State         LeaseState
	PreviousState LeaseState
	ChangedAt     time.Time
	Reason        string
}

// LeaseStateManager tracks LeaseRecords for every lease currently
// outstanding across the worker population, the direct generalization of
// the teacher's PhaseManager (there: one state machine per workflow;
// here: one state machine per outstanding lease).
type LeaseStateManager struct {
	mu             sync.RWMutex
	leases         map[string]*LeaseRecord
	onStateChanged func(record *LeaseRecord)
}

// NewLeaseStateManager creates a new LeaseStateManager.
func NewLeaseStateManager() *LeaseStateManager {
	return &LeaseStateManager{
		leases: make(map[string]*LeaseRecord),
	}
}

// OnStateChanged sets a callback invoked whenever a lease transitions.
func (lm *LeaseStateManager) OnStateChanged(fn func(record *LeaseRecord)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.onStateChanged = fn
}

// Offer registers a newly offered lease.
func (lm *LeaseStateManager) Offer(envelopeID, workerID string) *LeaseRecord {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	record := &LeaseRecord{
		EnvelopeID: envelopeID,
		WorkerID:   workerID,
		State:      LeaseOffered,
		ChangedAt:  time.Now(),
	}
	lm.leases[envelopeID] = record
	return record
}

// GetState returns a copy of the lease record for envelopeID.
func (lm *LeaseStateManager) GetState(envelopeID string) (*LeaseRecord, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	record, ok := lm.leases[envelopeID]
	if !ok {
		return nil, false
	}
	copy := *record
	return &copy, true
}

// TransitionTo attempts to transition a lease to a new state.
func (lm *LeaseStateManager) TransitionTo(envelopeID string, newState LeaseState, reason string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	record, ok := lm.leases[envelopeID]
	if !ok {
		return fmt.Errorf("lease not found: %s", envelopeID)
	}

	if !record.State.CanTransitionTo(newState) {
		return fmt.Errorf("invalid lease transition from %s to %s for envelope %s",
			record.State, newState, envelopeID)
	}

	record.PreviousState = record.State
	record.State = newState
	record.ChangedAt = time.Now()
	record.Reason = reason

	if lm.onStateChanged != nil {
		go lm.onStateChanged(record)
	}

	return nil
}

// Revoke transitions a lease to revoked regardless of which non-terminal
// state it is in, used when a worker's heartbeat expires (spec §4.4
// "a worker whose lease is not renewed within the heartbeat timeout is
// treated as lost").
func (lm *LeaseStateManager) Revoke(envelopeID, reason string) error {
	lm.mu.RLock()
	record, ok := lm.leases[envelopeID]
	lm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("lease not found: %s", envelopeID)
	}
	if record.State.IsTerminal() {
		return fmt.Errorf("lease %s is already in terminal state %s", envelopeID, record.State)
	}
	return lm.TransitionTo(envelopeID, LeaseRevoked, reason)
}

// RemoveLease stops tracking a lease, once its terminal outcome has been
// recorded elsewhere (e.g. folded into envelope state or workerpool.Pool).
func (lm *LeaseStateManager) RemoveLease(envelopeID string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.leases, envelopeID)
}

// ActiveLeases returns every lease not yet in a terminal state.
func (lm *LeaseStateManager) ActiveLeases() []*LeaseRecord {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	var active []*LeaseRecord
	for _, record := range lm.leases {
		if !record.State.IsTerminal() {
			copy := *record
			active = append(active, &copy)
		}
	}
	return active
}

// LeasesForWorker returns every non-terminal lease currently assigned to
// workerID, used to build the heartbeat-expiry reclaim set.
func (lm *LeaseStateManager) LeasesForWorker(workerID string) []*LeaseRecord {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	var out []*LeaseRecord
	for _, record := range lm.leases {
		if record.WorkerID == workerID && !record.State.IsTerminal() {
			copy := *record
			out = append(out, &copy)
		}
	}
	return out
}
