package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBoundaryTimerGraph builds start -> pack (human task) -> ship -> end,
// with a boundary timer on pack that routes to escalate -> end if it fires
// before pack is completed.
func buildBoundaryTimerGraph() *Graph {
	g := NewGraph("fulfillment-demo", "Fulfillment demo")
	start := g.AddNode(Node{ID: "start", Kind: NodeEvent, Event: EventStart})
	pack := g.AddNode(Node{ID: "pack", Kind: NodeHumanTask, RoutingKey: "task.pack"})
	timeout := g.AddNode(Node{ID: "pack-timeout", Kind: NodeEvent, Event: EventBoundary, BoundaryOf: "pack", TimerDuration: "PT1H"})
	escalate := g.AddNode(Node{ID: "escalate", Kind: NodeTask, RoutingKey: "task.escalate"})
	ship := g.AddNode(Node{ID: "ship", Kind: NodeTask, RoutingKey: "task.ship"})
	end := g.AddNode(Node{ID: "end", Kind: NodeEvent, Event: EventEnd})

	g.AddEdge(Edge{From: start, To: pack})
	g.AddEdge(Edge{From: pack, To: ship})
	g.AddEdge(Edge{From: timeout, To: escalate})
	g.AddEdge(Edge{From: escalate, To: end})
	g.AddEdge(Edge{From: ship, To: end})
	return g
}

func TestBoundaryTimerRoutesToEscalationPath(t *testing.T) {
	g := buildBoundaryTimerGraph()
	inst := NewInstance(g, "inst-1", nil)
	require.NoError(t, inst.Start())
	require.Contains(t, inst.PendingHumanTasks(), "pack")

	require.NoError(t, inst.FireTimer("pack-timeout"))

	assert.True(t, inst.IsCompleted())
	assert.Empty(t, inst.PendingHumanTasks(), "boundary firing must cancel the owning human task's wait")

	var entered []string
	for _, ev := range inst.History().Events() {
		if ev.Type == EventNodeEntered {
			entered = append(entered, ev.NodeID)
		}
	}
	assert.Contains(t, entered, "escalate")
	assert.NotContains(t, entered, "ship", "the normal-path task must not run once the boundary timer has fired")
}

func TestHumanTaskCompletionBeforeTimeoutTakesNormalPath(t *testing.T) {
	g := buildBoundaryTimerGraph()
	inst := NewInstance(g, "inst-1", nil)
	require.NoError(t, inst.Start())

	require.NoError(t, inst.CompleteHumanTask("pack"))
	assert.True(t, inst.IsCompleted())

	var entered []string
	for _, ev := range inst.History().Events() {
		if ev.Type == EventNodeEntered {
			entered = append(entered, ev.NodeID)
		}
	}
	assert.Contains(t, entered, "ship")
	assert.NotContains(t, entered, "escalate")
}

func TestFireTimerRejectsUnknownNode(t *testing.T) {
	g := buildBoundaryTimerGraph()
	inst := NewInstance(g, "inst-1", nil)
	require.NoError(t, inst.Start())

	err := inst.FireTimer("does-not-exist")
	assert.Error(t, err)
}
