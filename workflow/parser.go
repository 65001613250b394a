package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Parsing accepts two JSON definition shapes and normalizes both into a
// Graph, mirroring the teacher's ParseWorkflow dispatch-by-declared-type
// pattern (its @type switch over ItemList/HowTo/ScheduledAction/
// MapAction) but retargeted to this package's node/edge arena model and
// a "kind" discriminator instead of JSON-LD's "@type".
//
// "graph" is the general form: explicit nodes and edges. "sequence" is a
// shorthand for the common case of a strictly linear pipeline of tasks,
// expanded into an equivalent graph with implicit start/end events --
// the direct analogue of the teacher's ItemList shorthand.

type definitionEnvelope struct {
	Kind string `json:"kind"`
}

type nodeDef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Gateway       string `json:"gateway,omitempty"`
	Event         string `json:"event,omitempty"`
	RoutingKey    string `json:"routingKey,omitempty"`
	TimerDuration string `json:"timerDuration,omitempty"`
	BoundaryOf    string `json:"boundaryOf,omitempty"`
}

type edgeDef struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Guard   string `json:"guard,omitempty"`
	Default bool   `json:"default,omitempty"`
}

type graphDefinition struct {
	Kind  string    `json:"kind"`
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Nodes []nodeDef `json:"nodes"`
	Edges []edgeDef `json:"edges"`
}

type sequenceDefinition struct {
	Kind  string   `json:"kind"`
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

// ParseGraph parses a workflow definition document into a Graph,
// dispatching on its declared "kind".
func ParseGraph(data []byte) (*Graph, error) {
	var env definitionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to detect workflow definition kind: %w", err)
	}

	switch env.Kind {
	case "graph":
		return parseGraphDefinition(data)
	case "sequence":
		return parseSequenceDefinition(data)
	default:
		return nil, fmt.Errorf("unsupported workflow definition kind: %q", env.Kind)
	}
}

func parseGraphDefinition(data []byte) (*Graph, error) {
	var def graphDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}
	if def.ID == "" {
		return nil, fmt.Errorf("graph definition must declare an id")
	}
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("graph %q has no nodes", def.ID)
	}

	logrus.WithField("workflow", def.ID).Debug("parsing graph workflow definition")

	g := NewGraph(def.ID, def.Name)
	for _, nd := range def.Nodes {
		if nd.ID == "" {
			return nil, fmt.Errorf("graph %q: node missing id", def.ID)
		}
		n := Node{
			ID:            nd.ID,
			Name:          nd.Name,
			Kind:          NodeKind(nd.Kind),
			Gateway:       GatewayKind(nd.Gateway),
			Event:         EventKind(nd.Event),
			RoutingKey:    nd.RoutingKey,
			TimerDuration: nd.TimerDuration,
			BoundaryOf:    nd.BoundaryOf,
		}
		switch n.Kind {
		case NodeTask, NodeHumanTask, NodeGateway, NodeEvent:
		default:
			return nil, fmt.Errorf("graph %q: node %q has unknown kind %q", def.ID, nd.ID, nd.Kind)
		}
		g.AddNode(n)
	}

	for _, ed := range def.Edges {
		from, ok := g.NodeByID(ed.From)
		if !ok {
			return nil, fmt.Errorf("graph %q: edge references unknown node %q", def.ID, ed.From)
		}
		to, ok := g.NodeByID(ed.To)
		if !ok {
			return nil, fmt.Errorf("graph %q: edge references unknown node %q", def.ID, ed.To)
		}
		g.AddEdge(Edge{From: from, To: to, Guard: ed.Guard, Default: ed.Default})
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// parseSequenceDefinition expands a flat task list into start -> task1 ->
// task2 -> ... -> end, the linear-pipeline shorthand analogous to the
// teacher's ItemList handling.
func parseSequenceDefinition(data []byte) (*Graph, error) {
	var def sequenceDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse sequence definition: %w", err)
	}
	if def.ID == "" {
		return nil, fmt.Errorf("sequence definition must declare an id")
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("sequence %q has no tasks", def.ID)
	}

	logrus.WithField("workflow", def.ID).Debug("parsing sequence workflow definition")

	g := NewGraph(def.ID, def.Name)
	start := g.AddNode(Node{ID: "start", Kind: NodeEvent, Event: EventStart})
	prev := start
	for i, routingKey := range def.Tasks {
		nodeID := fmt.Sprintf("task-%d", i)
		h := g.AddNode(Node{ID: nodeID, Name: routingKey, Kind: NodeTask, RoutingKey: routingKey})
		g.AddEdge(Edge{From: prev, To: h})
		prev = h
	}
	end := g.AddNode(Node{ID: "end", Kind: NodeEvent, Event: EventEnd})
	g.AddEdge(Edge{From: prev, To: end})

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
