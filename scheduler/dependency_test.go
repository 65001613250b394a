package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDependencyGateUnsatisfiedUntilRecorded(t *testing.T) {
	g := NewDependencyGate()
	assert.False(t, g.Satisfied([]string{"extract"}))

	g.RecordOutcome("extract", OutcomeSuccess)
	assert.True(t, g.Satisfied([]string{"extract"}))
}

func TestDependencyGateRequiresAllSucceeded(t *testing.T) {
	g := NewDependencyGate()
	g.RecordOutcome("extract", OutcomeSuccess)
	g.RecordOutcome("transform", OutcomeFailure)

	assert.False(t, g.Satisfied([]string{"extract", "transform"}))

	g.RecordOutcome("transform", OutcomeSuccess)
	assert.True(t, g.Satisfied([]string{"extract", "transform"}))
}

func TestDependencyGateEmptyDependsOnAlwaysSatisfied(t *testing.T) {
	g := NewDependencyGate()
	assert.True(t, g.Satisfied(nil))
}

func TestDependencyGateLatestOutcomeWins(t *testing.T) {
	g := NewDependencyGate()
	g.RecordOutcome("job", OutcomeSuccess)
	g.RecordOutcome("job", OutcomeFailure)
	assert.Equal(t, OutcomeFailure, g.Outcome("job"))
	assert.False(t, g.Satisfied([]string{"job"}))
}
