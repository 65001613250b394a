package workflow

import (
	"fmt"
	"sync"
	"time"
)

// Instance is one running execution of a Graph: a set of tokens advancing
// through nodes, a variable scope, and a bounded history. Token
// propagation is processed synchronously via an internal work queue,
// matching the teacher's preference for synchronous, easily-testable
// execution over callback-driven async flows.
type Instance struct {
	ID    string
	Graph *Graph

	mu          sync.Mutex
	queue       []NodeHandle
	joinCounts  map[NodeHandle]int
	pendingHuman map[NodeHandle]bool
	pendingEvent map[NodeHandle][]EdgeHandle // event-based gateway: candidate edges awaiting selection
	variables   map[string]interface{}
	completed   bool
	cancelled   bool

	history *History
}

// NewInstance creates a new instance of graph with a fresh variable
// scope seeded from initialVars (copied, not aliased).
func NewInstance(g *Graph, instanceID string, initialVars map[string]interface{}) *Instance {
	vars := make(map[string]interface{}, len(initialVars))
	for k, v := range initialVars {
		vars[k] = v
	}
	return &Instance{
		ID:           instanceID,
		Graph:        g,
		joinCounts:   make(map[NodeHandle]int),
		pendingHuman: make(map[NodeHandle]bool),
		pendingEvent: make(map[NodeHandle][]EdgeHandle),
		variables:    vars,
		history:      NewHistory(500),
	}
}

// Start places a token on every start event and drains the queue.
func (inst *Instance) Start() error {
	if err := inst.Graph.Validate(); err != nil {
		return err
	}
	inst.mu.Lock()
	for _, h := range inst.Graph.StartNodes() {
		inst.queue = append(inst.queue, h)
	}
	inst.mu.Unlock()
	return inst.drain()
}

// IsCompleted reports whether every token has reached an end event.
func (inst *Instance) IsCompleted() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.completed
}

// Cancelled reports whether Cancel was called.
func (inst *Instance) Cancelled() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.cancelled
}

// Cancel clears the pending work queue and any human/event waits,
// terminating the instance's frontier immediately rather than letting
// in-flight tokens continue (Testable Property 7: cancel terminates the
// frontier within a bounded number of ticks — here, zero further ticks).
func (inst *Instance) Cancel() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.cancelled = true
	inst.queue = nil
	inst.pendingHuman = make(map[NodeHandle]bool)
	inst.pendingEvent = make(map[NodeHandle][]EdgeHandle)
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventCancelled, Detail: "instance cancelled"})
}

// Variables returns a copy of the instance's current variable scope.
func (inst *Instance) Variables() map[string]interface{} {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make(map[string]interface{}, len(inst.variables))
	for k, v := range inst.variables {
		out[k] = v
	}
	return out
}

// SetVariable writes a variable, last-writer-wins (Open Question #5
// decision in SPEC_FULL.md §9), recording an audit event when the write
// overwrites an existing value so concurrent-write races remain visible
// in history even though the last writer always wins.
func (inst *Instance) SetVariable(key string, value interface{}) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if _, existed := inst.variables[key]; existed {
		inst.history.Record(HistoryEvent{At: time.Now(), Type: EventVariableRace, Detail: fmt.Sprintf("variable %q overwritten", key)})
	}
	inst.variables[key] = value
}

// History returns the instance's history log.
func (inst *Instance) History() *History { return inst.history }

// PendingHumanTasks lists node IDs of human tasks currently awaiting
// completion.
func (inst *Instance) PendingHumanTasks() []string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	var out []string
	for h := range inst.pendingHuman {
		out = append(out, inst.Graph.Node(h).ID)
	}
	return out
}

// CompleteHumanTask resumes execution past a paused human task node.
func (inst *Instance) CompleteHumanTask(nodeID string) error {
	inst.mu.Lock()
	h, ok := inst.Graph.NodeByID(nodeID)
	if !ok || !inst.pendingHuman[h] {
		inst.mu.Unlock()
		return fmt.Errorf("no pending human task %q", nodeID)
	}
	delete(inst.pendingHuman, h)
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventNodeCompleted, NodeID: nodeID})
	inst.enqueueOutgoing(h)
	inst.mu.Unlock()
	return inst.drain()
}

// FireTimer delivers a timer event (duration or boundary) to its node.
// For a boundary timer, this cancels the owning task's pending-human
// wait (if any) and follows the boundary edge instead of the task's
// normal outgoing edge.
func (inst *Instance) FireTimer(nodeID string) error {
	inst.mu.Lock()
	h, ok := inst.Graph.NodeByID(nodeID)
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("unknown timer node %q", nodeID)
	}
	node := inst.Graph.Node(h)
	if node.Event == EventBoundary {
		if ownerH, ok := inst.Graph.NodeByID(node.BoundaryOf); ok {
			delete(inst.pendingHuman, ownerH)
		}
	}
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventTimerFired, NodeID: nodeID})
	inst.queue = append(inst.queue, h)
	inst.mu.Unlock()
	return inst.drain()
}

// SelectEventBasedBranch resolves a pending event-based gateway by
// choosing the edge leading to targetNodeID; every other candidate edge
// is discarded.
func (inst *Instance) SelectEventBasedBranch(gatewayNodeID, targetNodeID string) error {
	inst.mu.Lock()
	gh, ok := inst.Graph.NodeByID(gatewayNodeID)
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("unknown gateway %q", gatewayNodeID)
	}
	candidates, ok := inst.pendingEvent[gh]
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("gateway %q has no pending branch selection", gatewayNodeID)
	}
	var chosen *EdgeHandle
	for _, eh := range candidates {
		e := inst.Graph.Edge(eh)
		if inst.Graph.Node(e.To).ID == targetNodeID {
			c := eh
			chosen = &c
			break
		}
	}
	delete(inst.pendingEvent, gh)
	if chosen == nil {
		inst.mu.Unlock()
		return fmt.Errorf("node %q is not a candidate branch of gateway %q", targetNodeID, gatewayNodeID)
	}
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventGatewayTaken, NodeID: gatewayNodeID, Detail: targetNodeID})
	inst.queue = append(inst.queue, inst.Graph.Edge(*chosen).To)
	inst.mu.Unlock()
	return inst.drain()
}

// drain processes the work queue until empty, paused on a human task, or
// paused on an event-based gateway selection. Caller must not hold inst.mu.
func (inst *Instance) drain() error {
	for {
		inst.mu.Lock()
		if inst.cancelled || len(inst.queue) == 0 {
			inst.checkCompletionLocked()
			inst.mu.Unlock()
			return nil
		}
		h := inst.queue[0]
		inst.queue = inst.queue[1:]
		inst.mu.Unlock()

		if err := inst.processNode(h); err != nil {
			return err
		}
	}
}

func (inst *Instance) checkCompletionLocked() {
	if len(inst.queue) == 0 && len(inst.pendingHuman) == 0 && len(inst.pendingEvent) == 0 {
		inst.completed = true
	}
}

func (inst *Instance) processNode(h NodeHandle) error {
	node := inst.Graph.Node(h)
	inst.mu.Lock()
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventNodeEntered, NodeID: node.ID})
	inst.mu.Unlock()

	switch node.Kind {
	case NodeEvent:
		if node.Event == EventEnd {
			return nil // token consumed, no outgoing
		}
		inst.enqueueOutgoing(h)
		return nil

	case NodeHumanTask:
		inst.mu.Lock()
		inst.pendingHuman[h] = true
		inst.mu.Unlock()
		return nil // waits for CompleteHumanTask

	case NodeTask:
		inst.mu.Lock()
		inst.history.Record(HistoryEvent{At: time.Now(), Type: EventNodeCompleted, NodeID: node.ID})
		inst.mu.Unlock()
		inst.enqueueOutgoing(h)
		return nil

	case NodeGateway:
		return inst.processGateway(h, node)

	default:
		return fmt.Errorf("unknown node kind %q for node %q", node.Kind, node.ID)
	}
}

func (inst *Instance) processGateway(h NodeHandle, node *Node) error {
	incoming := inst.Graph.Incoming(h)

	switch node.Gateway {
	case GatewayExclusive:
		return inst.fireExclusiveOrInclusive(h, node, false)

	case GatewayInclusive:
		return inst.fireExclusiveOrInclusive(h, node, true)

	case GatewayParallel:
		if len(incoming) > 1 {
			inst.mu.Lock()
			inst.joinCounts[h]++
			reached := inst.joinCounts[h] >= len(incoming)
			if reached {
				inst.joinCounts[h] = 0
			}
			inst.mu.Unlock()
			if !reached {
				return nil
			}
			inst.mu.Lock()
			inst.history.Record(HistoryEvent{At: time.Now(), Type: EventGatewayTaken, NodeID: node.ID, Detail: "parallel join"})
			inst.mu.Unlock()
		}
		inst.enqueueOutgoing(h)
		return nil

	case GatewayEventBased:
		candidates := inst.Graph.Outgoing(h)
		inst.mu.Lock()
		inst.pendingEvent[h] = candidates
		inst.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown gateway kind %q on node %q", node.Gateway, node.ID)
	}
}

// fireExclusiveOrInclusive evaluates outgoing edge guards in declaration
// order. Exclusive takes the first match (or the default edge);
// inclusive takes every match (or the default edge if none match).
func (inst *Instance) fireExclusiveOrInclusive(h NodeHandle, node *Node, inclusive bool) error {
	vars := inst.Variables()
	var defaultEdge *EdgeHandle
	var matched []EdgeHandle

	for _, eh := range inst.Graph.Outgoing(h) {
		e := inst.Graph.Edge(eh)
		if e.Default {
			ehCopy := eh
			defaultEdge = &ehCopy
			continue
		}
		if e.Guard == "" {
			matched = append(matched, eh)
			if !inclusive {
				break
			}
			continue
		}
		ok, err := EvalGuard(e.Guard, vars)
		if err != nil {
			return fmt.Errorf("gateway %q: %w", node.ID, err)
		}
		if ok {
			matched = append(matched, eh)
			if !inclusive {
				break
			}
		}
	}

	if len(matched) == 0 && defaultEdge != nil {
		matched = []EdgeHandle{*defaultEdge}
	}
	if len(matched) == 0 {
		return fmt.Errorf("gateway %q: no outgoing edge matched and no default edge declared", node.ID)
	}

	inst.mu.Lock()
	inst.history.Record(HistoryEvent{At: time.Now(), Type: EventGatewayTaken, NodeID: node.ID, Detail: fmt.Sprintf("%d branch(es)", len(matched))})
	for _, eh := range matched {
		inst.queue = append(inst.queue, inst.Graph.Edge(eh).To)
	}
	inst.mu.Unlock()
	return nil
}

// enqueueOutgoing queues every outgoing edge's target node.
func (inst *Instance) enqueueOutgoing(h NodeHandle) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for _, eh := range inst.Graph.Outgoing(h) {
		inst.queue = append(inst.queue, inst.Graph.Edge(eh).To)
	}
}
