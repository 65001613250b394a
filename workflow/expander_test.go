package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandGeneratesUniqueInstanceIDs(t *testing.T) {
	g := buildHumanTaskGraph()
	a := Expand(g, nil)
	b := Expand(g, nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Same(t, g, a.Graph)
}

func TestPrefixIdentifierRoundTrips(t *testing.T) {
	g := buildHumanTaskGraph()
	inst := Expand(g, nil)

	timerID := inst.TimerID("pack-timeout")
	assert.Contains(t, timerID, inst.ID)

	nodeID, ok := inst.UnprefixTimerID(timerID)
	assert.True(t, ok)
	assert.Equal(t, "pack-timeout", nodeID)
}

func TestUnprefixTimerIDRejectsForeignInstance(t *testing.T) {
	g := buildHumanTaskGraph()
	inst := Expand(g, nil)
	_, ok := inst.UnprefixTimerID("some-other-instance--pack-timeout")
	assert.False(t, ok)
}

func TestPrefixIdentifierEmptyIsEmpty(t *testing.T) {
	assert.Equal(t, "", PrefixIdentifier("inst-1", ""))
}
