// Package workflow implements the Workflow Interpreter (spec §4.6): a
// BPMN-style graph of task/gateway/event nodes, executed with exclusive,
// parallel, inclusive, and event-based gateway semantics, guard
// expressions, timers, boundary events, and human tasks.
//
// The graph is stored in an arena indexed by integer handles rather than
// pointers or a graph database (Design Notes §9 explicitly supersedes the
// teacher's cayleygraph-backed semantic/workflowgraph.go): handles are
// stable across the lifetime of a Graph and cheap to pass around an
// Instance's token set.
package workflow

import "fmt"

// NodeKind distinguishes the three BPMN-style node families.
type NodeKind string

const (
	NodeTask      NodeKind = "task"
	NodeHumanTask NodeKind = "human-task"
	NodeGateway   NodeKind = "gateway"
	NodeEvent     NodeKind = "event"
)

// GatewayKind selects a gateway's split/join behavior.
type GatewayKind string

const (
	GatewayExclusive  GatewayKind = "exclusive"
	GatewayParallel   GatewayKind = "parallel"
	GatewayInclusive  GatewayKind = "inclusive"
	GatewayEventBased GatewayKind = "event-based"
)

// EventKind distinguishes event node roles.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventEnd      EventKind = "end"
	EventTimer    EventKind = "timer"
	EventMessage  EventKind = "message"
	EventBoundary EventKind = "boundary"
)

// NodeHandle is a stable arena index identifying a node within one Graph.
type NodeHandle int

// EdgeHandle is a stable arena index identifying an edge within one Graph.
type EdgeHandle int

// Node is one vertex of a workflow graph.
type Node struct {
	ID      string
	Name    string
	Kind    NodeKind
	Gateway GatewayKind // meaningful only when Kind == NodeGateway
	Event   EventKind   // meaningful only when Kind == NodeEvent

	// RoutingKey names the work a Task/HumanTask node performs once
	// tokened; unused by gateway/event nodes.
	RoutingKey string

	// TimerDuration is an ISO8601 duration, used by EventTimer and
	// EventBoundary nodes with a timer trigger.
	TimerDuration string

	// BoundaryOf names the task node a boundary event is attached to, by
	// node ID; empty for non-boundary nodes.
	BoundaryOf string

	outgoing []EdgeHandle
	incoming []EdgeHandle
}

// Edge connects two nodes, optionally gated by a guard expression
// evaluated against the instance's variable scope (spec §4.6 Guards).
type Edge struct {
	From    NodeHandle
	To      NodeHandle
	Guard   string // empty means unconditional
	Default bool   // taken when no other guarded edge matches (exclusive/inclusive)
}

// Graph is an arena of nodes and edges forming one workflow definition.
// A Graph is immutable once built; Instances reference it without
// copying.
type Graph struct {
	ID    string
	Name  string
	nodes []Node
	edges []Edge
	byID  map[string]NodeHandle
}

// NewGraph creates an empty graph.
func NewGraph(id, name string) *Graph {
	return &Graph{ID: id, Name: name, byID: make(map[string]NodeHandle)}
}

// AddNode appends a node and returns its handle.
func (g *Graph) AddNode(n Node) NodeHandle {
	h := NodeHandle(len(g.nodes))
	g.nodes = append(g.nodes, n)
	if n.ID != "" {
		g.byID[n.ID] = h
	}
	return h
}

// AddEdge appends an edge and records it on both endpoints' adjacency
// lists, returning its handle.
func (g *Graph) AddEdge(e Edge) EdgeHandle {
	h := EdgeHandle(len(g.edges))
	g.edges = append(g.edges, e)
	g.nodes[e.From].outgoing = append(g.nodes[e.From].outgoing, h)
	g.nodes[e.To].incoming = append(g.nodes[e.To].incoming, h)
	return h
}

// Node returns the node at handle h.
func (g *Graph) Node(h NodeHandle) *Node { return &g.nodes[h] }

// Edge returns the edge at handle h.
func (g *Graph) Edge(h EdgeHandle) *Edge { return &g.edges[h] }

// NodeByID looks up a node's handle by its declared ID.
func (g *Graph) NodeByID(id string) (NodeHandle, bool) {
	h, ok := g.byID[id]
	return h, ok
}

// Outgoing returns the outgoing edge handles for a node.
func (g *Graph) Outgoing(h NodeHandle) []EdgeHandle { return g.nodes[h].outgoing }

// Incoming returns the incoming edge handles for a node.
func (g *Graph) Incoming(h NodeHandle) []EdgeHandle { return g.nodes[h].incoming }

// StartNodes returns every event node of kind EventStart.
func (g *Graph) StartNodes() []NodeHandle {
	var out []NodeHandle
	for i, n := range g.nodes {
		if n.Kind == NodeEvent && n.Event == EventStart {
			out = append(out, NodeHandle(i))
		}
	}
	return out
}

// Validate checks structural invariants: at least one start event exists,
// and every boundary event's BoundaryOf names a node of this graph (of any
// kind). Edge endpoints are not checked here; AddEdge takes them as
// handles.
func (g *Graph) Validate() error {
	if len(g.StartNodes()) == 0 {
		return fmt.Errorf("workflow %q has no start event", g.ID)
	}
	for _, n := range g.nodes {
		if n.Kind == NodeEvent && n.Event == EventBoundary {
			if _, ok := g.byID[n.BoundaryOf]; !ok {
				return fmt.Errorf("boundary event %q attached to unknown node %q", n.ID, n.BoundaryOf)
			}
		}
	}
	return nil
}
