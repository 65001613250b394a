package scheduler

import (
	"sync"
	"time"
)

// TimerKind distinguishes workflow timer roles (spec §4.4 timers: duration,
// date, and boundary-event variants).
type TimerKind string

const (
	TimerDuration TimerKind = "duration"
	TimerDate     TimerKind = "date"
	TimerBoundary TimerKind = "boundary"
)

// Timer is a single pending workflow timer, fired by FireAt and identified
// by the workflow instance and node it belongs to.
type Timer struct {
	ID         string
	WorkflowID string
	NodeID     string
	Kind       TimerKind
	FireAt     time.Time
	cancelled  bool
}

// TimerRegistry tracks pending workflow timers and answers which have
// become due. Timers created from ISO8601 durations are resolved through
// ParseISO8601Duration at registration time.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*Timer
}

// NewTimerRegistry creates an empty timer registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[string]*Timer)}
}

// ScheduleDuration registers a timer that fires after an ISO8601 duration
// elapses from now.
func (r *TimerRegistry) ScheduleDuration(id, workflowID, nodeID string, duration string, kind TimerKind) error {
	d, err := ParseISO8601Duration(duration)
	if err != nil {
		return err
	}
	r.schedule(id, workflowID, nodeID, time.Now().Add(d), kind)
	return nil
}

// ScheduleAt registers a timer that fires at an absolute time.
func (r *TimerRegistry) ScheduleAt(id, workflowID, nodeID string, at time.Time, kind TimerKind) {
	r.schedule(id, workflowID, nodeID, at, kind)
}

func (r *TimerRegistry) schedule(id, workflowID, nodeID string, fireAt time.Time, kind TimerKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[id] = &Timer{ID: id, WorkflowID: workflowID, NodeID: nodeID, Kind: kind, FireAt: fireAt}
}

// Cancel removes a pending timer, used when a boundary event's owning
// activity completes before the timer fires.
func (r *TimerRegistry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, id)
}

// DueTimers returns and removes every timer whose FireAt has elapsed.
func (r *TimerRegistry) DueTimers(now time.Time) []*Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Timer
	for id, t := range r.timers {
		if !t.FireAt.After(now) {
			due = append(due, t)
			delete(r.timers, id)
		}
	}
	return due
}

// Pending reports the number of timers still awaiting their fire time.
func (r *TimerRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
