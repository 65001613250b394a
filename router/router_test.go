package router

import (
	"testing"

	"dispatch.evalgo.org/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTopicFanOut is scenario S1 from spec §8.
func TestTopicFanOut(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "ex_topic", Kind: topology.ExchangeTopic}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "qA"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "qB"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "qC"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "bA", Source: "ex_topic", Destination: "qA", Pattern: "a.*.z"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "bB", Source: "ex_topic", Destination: "qB", Pattern: "a.#"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "bC", Source: "ex_topic", Destination: "qC", Pattern: "#.z"}))

	snap := reg.Snapshot()

	res := Route(snap, "ex_topic", "a.b.z", nil, "")
	assert.ElementsMatch(t, []string{"qA", "qB", "qC"}, res.Queues)

	res = Route(snap, "ex_topic", "a.b.c", nil, "")
	assert.ElementsMatch(t, []string{"qB"}, res.Queues)

	res = Route(snap, "ex_topic", "x.y.z", nil, "")
	assert.ElementsMatch(t, []string{"qC"}, res.Queues)

	res = Route(snap, "ex_topic", "b.c", nil, "")
	assert.Empty(t, res.Queues)
	assert.Equal(t, ReasonNoBindingMatch, res.Reason)
}

func TestDirectExchange(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "ex", Kind: topology.ExchangeDirect}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "q1"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "b1", Source: "ex", Destination: "q1", RoutingKey: "orders.created"}))
	snap := reg.Snapshot()

	res := Route(snap, "ex", "orders.created", nil, "")
	assert.Equal(t, []string{"q1"}, res.Queues)

	res = Route(snap, "ex", "orders.updated", nil, "")
	assert.Empty(t, res.Queues)
}

func TestFanoutExchangeAlwaysMatches(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "ex", Kind: topology.ExchangeFanout}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "q1"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "q2"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "b1", Source: "ex", Destination: "q1"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "b2", Source: "ex", Destination: "q2"}))
	snap := reg.Snapshot()

	res := Route(snap, "ex", "anything", nil, "")
	assert.ElementsMatch(t, []string{"q1", "q2"}, res.Queues)
}

func TestHeadersExchange(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "ex", Kind: topology.ExchangeHeaders}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "qAll"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "qAny"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{
		ID: "bAll", Source: "ex", Destination: "qAll",
		HeadersSelector: topology.HeadersMatchAll,
		HeadersPairs:    map[string]string{"region": "eu", "tier": "gold"},
	}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{
		ID: "bAny", Source: "ex", Destination: "qAny",
		HeadersSelector: topology.HeadersMatchAny,
		HeadersPairs:    map[string]string{"region": "eu", "tier": "gold"},
	}))
	snap := reg.Snapshot()

	res := Route(snap, "ex", "", map[string]string{"region": "eu", "tier": "gold"}, "")
	assert.ElementsMatch(t, []string{"qAll", "qAny"}, res.Queues)

	res = Route(snap, "ex", "", map[string]string{"region": "eu"}, "")
	assert.ElementsMatch(t, []string{"qAny"}, res.Queues)
}

func TestNoExchangeFallsBackToAlternateOnce(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "alt", Kind: topology.ExchangeFanout}))
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "primary", Kind: topology.ExchangeDirect, Alternate: "alt"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "q1"}))
	require.NoError(t, reg.DeclareBinding(topology.Binding{ID: "b1", Source: "alt", Destination: "q1"}))
	snap := reg.Snapshot()

	res := Route(snap, "primary", "missed", nil, "")
	assert.Equal(t, []string{"q1"}, res.Queues)
}

func TestMissingExchangeReportsReason(t *testing.T) {
	reg := topology.New()
	snap := reg.Snapshot()
	res := Route(snap, "nope", "k", nil, "")
	assert.Equal(t, ReasonNoExchange, res.Reason)
}

func TestMatchTopicSegments(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"a.*.z", "a.b.z", true},
		{"a.#", "a.b.z", true},
		{"a.#", "a", true}, // '#' matches zero trailing segments (Open Question #2: assumed yes)
		{"#.z", "x.y.z", true},
		{"#", "anything.at.all", true},
		{"#", "", true},
		{"a.b.#", "a.b", true}, // trailing '#' matches zero segments
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchTopic(c.pattern, c.key), "pattern=%s key=%s", c.pattern, c.key)
	}
}

func TestRouteConsultsTaskRouteRules(t *testing.T) {
	reg := topology.New()
	require.NoError(t, reg.DeclareExchange(topology.Exchange{Name: "ex", Kind: topology.ExchangeDirect}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "high"}))
	require.NoError(t, reg.DeclareQueue(topology.Queue{Name: "default"}))
	require.NoError(t, reg.DeclareTask(topology.TaskDefinition{Name: "send-email", TargetQueue: "default"}))
	require.NoError(t, reg.DeclareRoute(topology.RouteRule{ID: "r1", Pattern: "send-*", Queue: "high", Priority: 1}))
	snap := reg.Snapshot()

	res := Route(snap, "ex", "no-binding-here", nil, "send-email")
	assert.Contains(t, res.Queues, "high")
}
